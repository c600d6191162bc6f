package repository

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionGormRepository struct {
	db *gorm.DB
}

func NewSubscriptionGormRepository(db *gorm.DB) *SubscriptionGormRepository {
	return &SubscriptionGormRepository{db: db}
}

func (r *SubscriptionGormRepository) Create(ctx context.Context, s model.Subscription) error {
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (r *SubscriptionGormRepository) FindByID(ctx context.Context, id string) (model.Subscription, error) {
	var s model.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return model.Subscription{}, mapError(err)
	}
	return s, nil
}

func (r *SubscriptionGormRepository) FindByIDForUpdate(ctx context.Context, id string) (model.Subscription, error) {
	var s model.Subscription
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return model.Subscription{}, mapError(err)
	}
	return s, nil
}

func (r *SubscriptionGormRepository) ListByCustomer(ctx context.Context, customerID string) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubscriptionGormRepository) ListDue(ctx context.Context, asOf time.Time, limit int) ([]model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []model.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_delivery_date <= ?", model.SubscriptionStatusActive, model.DateOf(asOf)).
		Order("next_delivery_date asc, id asc").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubscriptionGormRepository) Update(ctx context.Context, s model.Subscription, expectedVersion int64) error {
	res := r.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("id = ? AND version = ?", s.ID, expectedVersion).
		Updates(map[string]any{
			"status":             s.Status,
			"next_delivery_date": model.DateOf(s.NextDeliveryDate),
			"quantity":           s.Quantity,
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

type DeliveryGormRepository struct {
	db *gorm.DB
}

func NewDeliveryGormRepository(db *gorm.DB) *DeliveryGormRepository {
	return &DeliveryGormRepository{db: db}
}

// ON CONFLICT DO NOTHING で重複生成を防ぐ（トランザクションは中断しない）
func (r *DeliveryGormRepository) Create(ctx context.Context, d model.SubscriptionDelivery) error {
	d.ScheduledDate = model.DateOf(d.ScheduledDate)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&d)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrDuplicate
	}
	return nil
}

func (r *DeliveryGormRepository) FindByID(ctx context.Context, id string) (model.SubscriptionDelivery, error) {
	var d model.SubscriptionDelivery
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return model.SubscriptionDelivery{}, mapError(err)
	}
	return d, nil
}

func (r *DeliveryGormRepository) FindBySubscriptionAndDate(ctx context.Context, subscriptionID string, date time.Time) (model.SubscriptionDelivery, error) {
	var d model.SubscriptionDelivery
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND scheduled_date = ?", subscriptionID, model.DateOf(date)).
		First(&d).Error
	if err != nil {
		return model.SubscriptionDelivery{}, mapError(err)
	}
	return d, nil
}

func (r *DeliveryGormRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]model.SubscriptionDelivery, error) {
	var ds []model.SubscriptionDelivery
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("scheduled_date asc").
		Find(&ds).Error
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (r *DeliveryGormRepository) UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus) error {
	res := r.db.WithContext(ctx).Model(&model.SubscriptionDelivery{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *DeliveryGormRepository) AttachOrder(ctx context.Context, id string, orderID string) error {
	res := r.db.WithContext(ctx).Model(&model.SubscriptionDelivery{}).
		Where("id = ?", id).
		Update("order_id", orderID)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *DeliveryGormRepository) ListUnordered(ctx context.Context, asOf time.Time, limit int) ([]model.SubscriptionDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	ds := []model.SubscriptionDelivery{}
	err := r.db.WithContext(ctx).
		Where("status = ? AND order_id IS NULL AND scheduled_date <= ?", model.DeliveryStatusScheduled, model.DateOf(asOf)).
		Order("scheduled_date asc, id asc").
		Limit(limit).
		Find(&ds).Error
	if err != nil {
		return nil, mapError(err)
	}
	return ds, nil
}
