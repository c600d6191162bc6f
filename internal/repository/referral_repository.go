package repository

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

type ReferralRepository interface {
	CreateCode(ctx context.Context, c model.ReferralCode) error
	FindCodeByCode(ctx context.Context, code string) (model.ReferralCode, error)
	IncrementCodeUses(ctx context.Context, codeID string) error

	// 被紹介者が既にいれば ErrDuplicate
	Create(ctx context.Context, r model.Referral) error
	FindByReferredForUpdate(ctx context.Context, referredID string) (model.Referral, error)

	// reward_given=false のときだけ completed にする。更新できたら true
	MarkCompleted(ctx context.Context, referralID string, orderID string, at time.Time) (bool, error)
	// cutoff より前の pending を expired にする
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
