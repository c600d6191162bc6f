package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

type GiftCardRepository interface {
	Create(ctx context.Context, g model.GiftCard) error
	FindByCode(ctx context.Context, code string) (model.GiftCard, error)
	FindByID(ctx context.Context, id string) (model.GiftCard, error)
}
