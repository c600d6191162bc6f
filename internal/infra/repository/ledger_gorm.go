package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerGormRepository struct {
	db *gorm.DB
}

func NewLedgerGormRepository(db *gorm.DB) *LedgerGormRepository {
	return &LedgerGormRepository{db: db}
}

func (r *LedgerGormRepository) CreateAccount(ctx context.Context, a model.LedgerAccount) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&a)
	if res.Error != nil {
		return fmt.Errorf("ledger.CreateAccount: %w", mapError(res.Error))
	}
	if res.RowsAffected == 0 {
		return repo.ErrDuplicate
	}
	return nil
}

func (r *LedgerGormRepository) FindAccount(ctx context.Context, accountID string) (model.LedgerAccount, error) {
	var a model.LedgerAccount
	if err := r.db.WithContext(ctx).Where("id = ?", accountID).First(&a).Error; err != nil {
		return model.LedgerAccount{}, mapError(err)
	}
	return a, nil
}

// SELECT ... FOR UPDATE で同じ口座への記帳を直列化する。
// 他の口座とは競合しない。
func (r *LedgerGormRepository) FindAccountForUpdate(ctx context.Context, accountID string) (model.LedgerAccount, error) {
	var a model.LedgerAccount
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", accountID).
		First(&a).Error
	if err != nil {
		return model.LedgerAccount{}, mapError(err)
	}
	return a, nil
}

func (r *LedgerGormRepository) FindAccountByCustomer(ctx context.Context, customerID string, kind model.LedgerAccountKind) (model.LedgerAccount, error) {
	var a model.LedgerAccount
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND kind = ?", customerID, kind).
		First(&a).Error
	if err != nil {
		return model.LedgerAccount{}, mapError(err)
	}
	return a, nil
}

func (r *LedgerGormRepository) UpdateAccount(ctx context.Context, a model.LedgerAccount, expectedVersion int64) error {
	res := r.db.WithContext(ctx).Model(&model.LedgerAccount{}).
		Where("id = ? AND version = ?", a.ID, expectedVersion).
		Updates(map[string]any{
			"balance":         a.Balance,
			"lifetime_earned": a.LifetimeEarned,
			"tier":            a.Tier,
			"version":         gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrConflict
	}
	return nil
}

func (r *LedgerGormRepository) AppendTransaction(ctx context.Context, t model.LedgerTransaction) error {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&t)
	if res.Error != nil {
		return fmt.Errorf("ledger.AppendTransaction: %w", mapError(res.Error))
	}
	if res.RowsAffected == 0 {
		return repo.ErrDuplicate
	}
	return nil
}

func (r *LedgerGormRepository) FindTransactionByKey(ctx context.Context, key string) (model.LedgerTransaction, bool, error) {
	var t model.LedgerTransaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.LedgerTransaction{}, false, nil
	}
	if err != nil {
		return model.LedgerTransaction{}, false, err
	}
	return t, true, nil
}

func (r *LedgerGormRepository) ListTransactions(ctx context.Context, accountID string) ([]model.LedgerTransaction, error) {
	var txs []model.LedgerTransaction
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at asc, id asc").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
