package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"golang.org/x/text/currency"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

const StripeSignatureHeader = "Stripe-Signature"

// Stripe Checkout を使う決済ゲートウェイ
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	currency      currency.Unit
}

func NewStripeGateway(secretKey, webhookSecret string, cur currency.Unit) *StripeGateway {
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		currency:      cur,
	}
}

// CreateSession は注文IDを client_reference_id にしてセッションを作る
func (g *StripeGateway) CreateSession(ctx context.Context, in usecase.PaymentSessionInput) (usecase.PaymentSession, error) {
	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(in.Lines))
	for _, l := range in.Lines {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(strings.ToLower(g.currency.String())),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(l.Name),
				},
				UnitAmount: stripe.Int64(MinorUnits(l.UnitPrice, g.currency)),
			},
			Quantity: stripe.Int64(l.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:         items,
		SuccessURL:        stripe.String(in.SuccessURL),
		CancelURL:         stripe.String(in.CancelURL),
		ClientReferenceID: stripe.String(in.OrderID),
	}
	if in.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(in.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("order_id", in.OrderID)
	// 同じ注文で二重にセッションを作らない
	params.SetIdempotencyKey("checkout:" + in.OrderID)

	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return usecase.PaymentSession{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	return usecase.PaymentSession{ID: s.ID, RedirectURL: s.URL}, nil
}

// ParseEvent は署名を検証してイベントを決済結果に変換する
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (usecase.PaymentEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return usecase.PaymentEvent{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return toPaymentEvent(ev)
}

func toPaymentEvent(ev stripe.Event) (usecase.PaymentEvent, error) {
	out := usecase.PaymentEvent{ID: ev.ID, Type: usecase.PaymentIgnored}
	if !strings.HasPrefix(string(ev.Type), "checkout.session.") {
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return usecase.PaymentEvent{}, fmt.Errorf("decode checkout session: %w", err)
	}
	out.SessionID = s.ID
	out.OrderID = lo.CoalesceOrEmpty(s.ClientReferenceID, s.Metadata["order_id"])

	switch string(ev.Type) {
	case "checkout.session.completed":
		// 銀行振込などは後から async_payment_* が来る
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			out.Type = usecase.PaymentSucceeded
		}
	case "checkout.session.async_payment_succeeded":
		out.Type = usecase.PaymentSucceeded
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		out.Type = usecase.PaymentFailed
	}
	return out, nil
}

// MinorUnits は金額を通貨の最小単位（kuruş, cent）にする
func MinorUnits(amount decimal.Decimal, cur currency.Unit) int64 {
	scale, _ := currency.Standard.Rounding(cur)
	return amount.Shift(int32(scale)).Round(0).IntPart()
}
