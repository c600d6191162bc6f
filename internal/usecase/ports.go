package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// 決済ゲートウェイへ渡す明細
type PaymentLine struct {
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

type PaymentSessionInput struct {
	OrderID       string
	Lines         []PaymentLine
	AmountDue     decimal.Decimal
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type PaymentSession struct {
	ID          string
	RedirectURL string
}

// 外部の決済ゲートウェイ
type PaymentGateway interface {
	CreateSession(ctx context.Context, in PaymentSessionInput) (PaymentSession, error)
}

type PaymentEventType string

const (
	PaymentSucceeded PaymentEventType = "succeeded"
	PaymentFailed    PaymentEventType = "failed"
	PaymentIgnored   PaymentEventType = "ignored"
)

// 署名検証済みの決済イベント
type PaymentEvent struct {
	ID        string
	Type      PaymentEventType
	SessionID string
	OrderID   string
}

var ErrLockNotAcquired = errors.New("lock not acquired")

// 複数インスタンス間の排他
type Locker interface {
	// 取れなければ ErrLockNotAcquired
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}
