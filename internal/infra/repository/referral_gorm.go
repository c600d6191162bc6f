package repository

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralGormRepository struct {
	db *gorm.DB
}

func NewReferralGormRepository(db *gorm.DB) *ReferralGormRepository {
	return &ReferralGormRepository{db: db}
}

func (r *ReferralGormRepository) CreateCode(ctx context.Context, c model.ReferralCode) error {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return mapError(err)
	}
	return nil
}

func (r *ReferralGormRepository) FindCodeByCode(ctx context.Context, code string) (model.ReferralCode, error) {
	var c model.ReferralCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return model.ReferralCode{}, mapError(err)
	}
	return c, nil
}

func (r *ReferralGormRepository) IncrementCodeUses(ctx context.Context, codeID string) error {
	res := r.db.WithContext(ctx).Model(&model.ReferralCode{}).
		Where("id = ?", codeID).
		Update("uses_count", gorm.Expr("uses_count + 1"))
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *ReferralGormRepository) Create(ctx context.Context, ref model.Referral) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ref)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrDuplicate
	}
	return nil
}

func (r *ReferralGormRepository) FindByReferredForUpdate(ctx context.Context, referredID string) (model.Referral, error) {
	var ref model.Referral
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("referred_id = ?", referredID).
		First(&ref).Error
	if err != nil {
		return model.Referral{}, mapError(err)
	}
	return ref, nil
}

// reward_given = false の条件付き更新なので二重に報酬が出ない
func (r *ReferralGormRepository) MarkCompleted(ctx context.Context, referralID string, orderID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Referral{}).
		Where("id = ? AND reward_given = ? AND status = ?", referralID, false, model.ReferralStatusPending).
		Updates(map[string]any{
			"status":       model.ReferralStatusCompleted,
			"reward_given": true,
			"order_id":     orderID,
			"completed_at": at,
		})
	if res.Error != nil {
		return false, mapError(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *ReferralGormRepository) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Referral{}).
		Where("status = ? AND created_at < ?", model.ReferralStatusPending, cutoff).
		Update("status", model.ReferralStatusExpired)
	if res.Error != nil {
		return 0, mapError(res.Error)
	}
	return res.RowsAffected, nil
}
