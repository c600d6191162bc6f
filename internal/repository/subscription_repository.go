package repository

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

type SubscriptionRepository interface {
	Create(ctx context.Context, s model.Subscription) error
	FindByID(ctx context.Context, id string) (model.Subscription, error)
	FindByIDForUpdate(ctx context.Context, id string) (model.Subscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]model.Subscription, error)
	// active かつ next_delivery_date <= asOf
	ListDue(ctx context.Context, asOf time.Time, limit int) ([]model.Subscription, error)
	// status / next_delivery_date を更新。version 不一致は ErrConflict
	Update(ctx context.Context, s model.Subscription, expectedVersion int64) error
}

type DeliveryRepository interface {
	// (subscription_id, scheduled_date) が重複したら ErrDuplicate
	Create(ctx context.Context, d model.SubscriptionDelivery) error
	FindByID(ctx context.Context, id string) (model.SubscriptionDelivery, error)
	FindBySubscriptionAndDate(ctx context.Context, subscriptionID string, date time.Time) (model.SubscriptionDelivery, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]model.SubscriptionDelivery, error)
	UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus) error
	AttachOrder(ctx context.Context, id string, orderID string) error
	// scheduled のまま注文が付いていない配送（scheduled_date <= asOf、古い順）
	ListUnordered(ctx context.Context, asOf time.Time, limit int) ([]model.SubscriptionDelivery, error)
}
