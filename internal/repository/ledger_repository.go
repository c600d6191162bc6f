package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

// 口座と取引の永続化。取引は追記のみ。
type LedgerRepository interface {
	CreateAccount(ctx context.Context, a model.LedgerAccount) error
	FindAccount(ctx context.Context, accountID string) (model.LedgerAccount, error)
	// 行ロック付き。同じ口座への記帳を直列にする
	FindAccountForUpdate(ctx context.Context, accountID string) (model.LedgerAccount, error)
	FindAccountByCustomer(ctx context.Context, customerID string, kind model.LedgerAccountKind) (model.LedgerAccount, error)

	// balance / lifetime_earned / tier を更新。version 不一致は ErrConflict
	UpdateAccount(ctx context.Context, a model.LedgerAccount, expectedVersion int64) error

	// idempotency_key が重複したら ErrDuplicate
	AppendTransaction(ctx context.Context, t model.LedgerTransaction) error
	FindTransactionByKey(ctx context.Context, key string) (model.LedgerTransaction, bool, error)
	// created_at 昇順
	ListTransactions(ctx context.Context, accountID string) ([]model.LedgerTransaction, error)
}
