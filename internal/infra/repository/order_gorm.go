package repository

import (
	"context"
	"fmt"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderGormRepository struct {
	db *gorm.DB
}

func NewOrderGormRepository(db *gorm.DB) *OrderGormRepository {
	return &OrderGormRepository{db: db}
}

func (r *OrderGormRepository) Create(ctx context.Context, order model.Order) error {
	// 冪等キーが競合したら何もしない（呼び出し側で再検索）
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&order)
	if res.Error != nil {
		return fmt.Errorf("orders.Create: %w", mapError(res.Error))
	}
	if res.RowsAffected == 0 {
		return repo.ErrDuplicate
	}
	return nil
}

func (r *OrderGormRepository) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	var o model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).First(&o).Error; err != nil {
		return model.Order{}, mapError(err)
	}
	return o, nil
}

func (r *OrderGormRepository) FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if err != nil {
		return model.Order{}, mapError(err)
	}
	return o, nil
}

func (r *OrderGormRepository) FindBySessionIDForUpdate(ctx context.Context, sessionID string) (model.Order, error) {
	var o model.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_session_id = ?", sessionID).
		First(&o).Error
	if err != nil {
		return model.Order{}, mapError(err)
	}
	return o, nil
}

func (r *OrderGormRepository) FindByIdempotencyKey(ctx context.Context, key string) (model.Order, bool, error) {
	var o model.Order
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&o).Error
	if err != nil {
		if mapError(err) == repo.ErrNotFound {
			return model.Order{}, false, nil
		}
		return model.Order{}, false, err
	}
	return o, true, nil
}

func (r *OrderGormRepository) UpdateStatus(ctx context.Context, orderID string, expectedVersion int64, status model.OrderStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND version = ?", orderID, expectedVersion).
		Updates(map[string]any{
			"status":  status,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *OrderGormRepository) AttachPaymentSession(ctx context.Context, orderID string, sessionID string, paymentURL string) error {
	res := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_session_id IS NULL", orderID).
		Updates(map[string]any{
			"payment_session_id": sessionID,
			"payment_url":        paymentURL,
		})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *OrderGormRepository) CountPaidByCustomer(ctx context.Context, customerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("customer_id = ? AND status IN ?", customerID, []model.OrderStatus{
			model.OrderStatusPaid, model.OrderStatusPreparing, model.OrderStatusShipped, model.OrderStatusDelivered,
		}).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *OrderGormRepository) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Order{})

	//status 絞り込み
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}

	//期間絞り込み
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Order{}, 0, err
	}

	var items []model.Order
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("created_at desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Order{}, 0, err
	}

	return items, total, nil
}
