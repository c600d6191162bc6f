package repository

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page       int
	Limit      int
	Status     string
	CustomerID *string
	From       *time.Time
	To         *time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, order model.Order) error
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	// 行ロック付き
	FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error)
	// 決済セッション参照で検索（Webhook 用、行ロック付き）
	FindBySessionIDForUpdate(ctx context.Context, sessionID string) (model.Order, error)

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, key string) (model.Order, bool, error)

	// version が一致したときだけ更新する。一致しなければ ErrConflict
	UpdateStatus(ctx context.Context, orderID string, expectedVersion int64, status model.OrderStatus) error
	AttachPaymentSession(ctx context.Context, orderID string, sessionID string, paymentURL string) error

	// paid 以降の注文数
	CountPaidByCustomer(ctx context.Context, customerID string) (int64, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
