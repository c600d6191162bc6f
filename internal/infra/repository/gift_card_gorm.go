package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"

	"gorm.io/gorm"
)

type GiftCardGormRepository struct {
	db *gorm.DB
}

func NewGiftCardGormRepository(db *gorm.DB) *GiftCardGormRepository {
	return &GiftCardGormRepository{db: db}
}

func (r *GiftCardGormRepository) Create(ctx context.Context, g model.GiftCard) error {
	if err := r.db.WithContext(ctx).Create(&g).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (r *GiftCardGormRepository) FindByCode(ctx context.Context, code string) (model.GiftCard, error) {
	var g model.GiftCard
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&g).Error; err != nil {
		return model.GiftCard{}, mapError(err)
	}
	return g, nil
}

func (r *GiftCardGormRepository) FindByID(ctx context.Context, id string) (model.GiftCard, error) {
	var g model.GiftCard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&g).Error; err != nil {
		return model.GiftCard{}, mapError(err)
	}
	return g, nil
}
