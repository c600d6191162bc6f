package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"gorm.io/gorm"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 0件更新なら商品の有無で NotFound と Conflict を分ける
func (r *InventoryGormRepository) SetStock(ctx context.Context, productID int64, newStock int64, expectedVersion int64) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Product{}).
		Where("id = ? AND version = ?", productID, expectedVersion).
		Updates(map[string]any{
			"stock":   newStock,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var p model.Product
	if err := db.Select("id").Where("id = ?", productID).Take(&p).Error; err != nil {
		return mapError(err)
	}
	return repo.ErrConflict
}

// 在庫が足りるときだけ減らす
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))

	if res.Error != nil {
		return false, mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し（キャンセル）
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", qty))

	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	return mapError(r.db.WithContext(ctx).Create(&adj).Error)
}

func (r *InventoryGormRepository) ListAdjustments(ctx context.Context, productID int64) ([]model.InventoryAdjustment, error) {
	adjs := []model.InventoryAdjustment{}
	if err := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("id").Find(&adjs).Error; err != nil {
		return nil, mapError(err)
	}
	return adjs, nil
}
