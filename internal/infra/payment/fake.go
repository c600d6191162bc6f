package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"
)

const FakeSignatureHeader = "X-Fake-Signature"

// FakeGateway は外部に出ないゲートウェイ（ローカル開発用）。
// Webhook は本文の HMAC-SHA256 を16進で署名ヘッダに入れる。
type FakeGateway struct {
	secret  string
	baseURL string
}

func NewFakeGateway(secret, baseURL string) *FakeGateway {
	return &FakeGateway{secret: secret, baseURL: baseURL}
}

func (g *FakeGateway) CreateSession(ctx context.Context, in usecase.PaymentSessionInput) (usecase.PaymentSession, error) {
	if err := ctx.Err(); err != nil {
		return usecase.PaymentSession{}, err
	}
	id := "fake_cs_" + in.OrderID
	redirect, err := url.JoinPath(g.baseURL, "fake-checkout", id)
	if err != nil {
		return usecase.PaymentSession{}, fmt.Errorf("fake checkout url: %w", err)
	}
	return usecase.PaymentSession{ID: id, RedirectURL: redirect}, nil
}

type fakeEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

func (g *FakeGateway) ParseEvent(payload []byte, signature string) (usecase.PaymentEvent, error) {
	if !hmac.Equal([]byte(g.Sign(payload)), []byte(signature)) {
		return usecase.PaymentEvent{}, ErrInvalidSignature
	}
	var ev fakeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return usecase.PaymentEvent{}, fmt.Errorf("decode fake event: %w", err)
	}
	t := usecase.PaymentEventType(ev.Type)
	switch t {
	case usecase.PaymentSucceeded, usecase.PaymentFailed:
	default:
		t = usecase.PaymentIgnored
	}
	return usecase.PaymentEvent{ID: ev.ID, Type: t, SessionID: ev.SessionID, OrderID: ev.OrderID}, nil
}

// Sign はテストやローカルの送信側で使う署名
func (g *FakeGateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
