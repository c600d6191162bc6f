package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

// カタログの参照だけを約束。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	Create(ctx context.Context, p model.Product) (model.Product, error)
}
