package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

const itemBatchSize = 100

type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

// 呼び出し側のスライスは書き換えない
func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := lo.Map(items, func(it model.OrderItem, _ int) model.OrderItem {
		it.OrderID = orderID
		return it
	})
	return mapError(r.db.WithContext(ctx).CreateInBatches(&rows, itemBatchSize).Error)
}

func (r *OrderItemGormRepository) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	items := []model.OrderItem{}
	if err := r.db.WithContext(ctx).Where(&model.OrderItem{OrderID: orderID}).Order("id").Find(&items).Error; err != nil {
		return nil, mapError(err)
	}
	return items, nil
}
