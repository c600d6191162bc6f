package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/shopspring/decimal"
)

// 記帳の入力
type PostInput struct {
	AccountID string
	Delta     decimal.Decimal
	Kind      model.TxKind
	OrderID   *string
	// 同じキーでの再記帳は何もせず既存の取引を返す
	IdempotencyKey string
	Note           string
}

type LedgerUsecase struct {
	tx         repo.TransactionManager
	idGen      IDGenerator
	clock      Clock
	maxRetries int
	log        *slog.Logger
}

func NewLedgerUsecase(tx repo.TransactionManager, idGen IDGenerator, clock Clock, maxRetries int, log *slog.Logger) *LedgerUsecase {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &LedgerUsecase{tx: tx, idGen: idGen, clock: clock, maxRetries: maxRetries, log: log}
}

// Post は1件記帳する。競合したら決められた回数だけやり直す。
func (u *LedgerUsecase) Post(ctx context.Context, in PostInput) (model.LedgerTransaction, error) {
	var out model.LedgerTransaction
	err := u.withRetry(ctx, "ledger.Post", func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			t, err := u.PostTx(ctx, r, in)
			out = t
			return err
		})
	})
	if err != nil {
		return model.LedgerTransaction{}, err
	}
	return out, nil
}

// PostTx は呼び出し側のトランザクション内で記帳する。
// 口座行をロックしてから残高を確認するので、同じ口座への記帳は直列になる。
func (u *LedgerUsecase) PostTx(ctx context.Context, r repo.TxRepos, in PostInput) (model.LedgerTransaction, error) {
	if in.AccountID == "" {
		return model.LedgerTransaction{}, newError(ErrValidation, "account_id is required")
	}
	if err := in.Kind.CheckDelta(in.Delta); err != nil {
		return model.LedgerTransaction{}, newError(ErrValidation, err.Error())
	}

	acct, err := r.Ledger().FindAccountForUpdate(ctx, in.AccountID)
	if err != nil {
		return model.LedgerTransaction{}, dbError(err)
	}

	// ロック取得後に冪等キーを確認する
	var key *string
	if in.IdempotencyKey != "" {
		existing, found, err := r.Ledger().FindTransactionByKey(ctx, in.IdempotencyKey)
		if err != nil {
			return model.LedgerTransaction{}, dbError(err)
		}
		if found {
			// キーは口座をまたいで使えない
			if existing.AccountID != in.AccountID {
				return model.LedgerTransaction{}, newError(ErrValidation, "idempotency key already used by another account")
			}
			return existing, nil
		}
		k := in.IdempotencyKey
		key = &k
	}

	// 残高は0未満にしない（全部反映か、何もしないか）
	newBalance := acct.Balance.Add(in.Delta)
	if newBalance.IsNegative() {
		return model.LedgerTransaction{}, newError(ErrInsufficientBalance, "insufficient balance")
	}

	version := acct.Version
	acct.Balance = newBalance
	if acct.Kind == model.LedgerAccountLoyalty && in.Kind.CountsTowardLifetime() && in.Delta.IsPositive() {
		acct.LifetimeEarned = acct.LifetimeEarned.Add(in.Delta)
		acct.Tier = model.TierFor(acct.LifetimeEarned)
	}
	if err := r.Ledger().UpdateAccount(ctx, acct, version); err != nil {
		return model.LedgerTransaction{}, dbError(err)
	}

	t := model.LedgerTransaction{
		ID:             u.idGen.NewID(),
		AccountID:      acct.ID,
		Delta:          in.Delta,
		Kind:           in.Kind,
		OrderID:        in.OrderID,
		IdempotencyKey: key,
		BalanceAfter:   newBalance,
		Note:           in.Note,
		CreatedAt:      u.clock.Now(),
	}
	if err := r.Ledger().AppendTransaction(ctx, t); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return model.LedgerTransaction{}, newError(ErrPersistenceConflict, "duplicate transaction, retry")
		}
		return model.LedgerTransaction{}, dbError(err)
	}
	return t, nil
}

// 口座を作る（残高0）
func (u *LedgerUsecase) OpenAccountTx(ctx context.Context, r repo.TxRepos, kind model.LedgerAccountKind, customerID *string) (model.LedgerAccount, error) {
	now := u.clock.Now()
	a := model.LedgerAccount{
		ID:             u.idGen.NewID(),
		Kind:           kind,
		CustomerID:     customerID,
		Balance:        decimal.Zero,
		LifetimeEarned: decimal.Zero,
		Tier:           model.TierBronze,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.Ledger().CreateAccount(ctx, a); err != nil {
		return model.LedgerAccount{}, err
	}
	return a, nil
}

type LedgerAccountOutput struct {
	ID             string          `json:"id"`
	Kind           string          `json:"kind"`
	Balance        decimal.Decimal `json:"balance"`
	LifetimeEarned decimal.Decimal `json:"lifetime_earned"`
	Tier           string          `json:"tier"`
	Version        int64           `json:"version"`
}

type VerifyOutput struct {
	AccountID  string          `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	Replayed   decimal.Decimal `json:"replayed"`
	TxCount    int             `json:"tx_count"`
	Consistent bool            `json:"consistent"`
}

func (u *LedgerUsecase) Account(ctx context.Context, accountID string) (LedgerAccountOutput, error) {
	var out LedgerAccountOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		a, err := r.Ledger().FindAccount(ctx, accountID)
		if err != nil {
			return dbError(err)
		}
		out = toLedgerAccountOutput(a)
		return nil
	})
	return out, err
}

func (u *LedgerUsecase) History(ctx context.Context, accountID string) ([]model.LedgerTransaction, error) {
	var out []model.LedgerTransaction
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Ledger().FindAccount(ctx, accountID); err != nil {
			return dbError(err)
		}
		txs, err := r.Ledger().ListTransactions(ctx, accountID)
		if err != nil {
			return dbError(err)
		}
		out = txs
		return nil
	})
	return out, err
}

// Verify は取引を足し直して残高と一致するか確認する
func (u *LedgerUsecase) Verify(ctx context.Context, accountID string) (VerifyOutput, error) {
	var out VerifyOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		a, err := r.Ledger().FindAccount(ctx, accountID)
		if err != nil {
			return dbError(err)
		}
		txs, err := r.Ledger().ListTransactions(ctx, accountID)
		if err != nil {
			return dbError(err)
		}
		replayed := model.ReplayBalance(txs)
		out = VerifyOutput{
			AccountID:  a.ID,
			Balance:    a.Balance,
			Replayed:   replayed,
			TxCount:    len(txs),
			Consistent: replayed.Equal(a.Balance),
		}
		return nil
	})
	if err == nil && !out.Consistent {
		u.log.ErrorContext(ctx, "ledger balance mismatch",
			slog.String("account_id", accountID),
			slog.String("balance", out.Balance.String()),
			slog.String("replayed", out.Replayed.String()))
	}
	return out, err
}

type AdminAdjustInput struct {
	Delta decimal.Decimal
	Note  string
}

// 管理者による手動調整（bonus として記帳し、監査ログを残す）
func (u *LedgerUsecase) AdminAdjust(ctx context.Context, actorID string, accountID string, in AdminAdjustInput) (model.LedgerTransaction, error) {
	if actorID == "" {
		return model.LedgerTransaction{}, newError(ErrUnauthorized, "unauthorized")
	}

	var out model.LedgerTransaction
	err := u.withRetry(ctx, "ledger.AdminAdjust", func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			before, err := r.Ledger().FindAccountForUpdate(ctx, accountID)
			if err != nil {
				return dbError(err)
			}

			t, err := u.PostTx(ctx, r, PostInput{
				AccountID: accountID,
				Delta:     in.Delta,
				Kind:      model.TxKindBonus,
				Note:      in.Note,
			})
			if err != nil {
				return err
			}

			beforeJSON, _ := json.Marshal(map[string]string{"balance": before.Balance.String()})
			afterJSON, _ := json.Marshal(map[string]string{"balance": t.BalanceAfter.String(), "delta": in.Delta.String(), "note": in.Note})
			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorID:      actorID,
				Action:       model.AuditActionAdjustLedger,
				ResourceType: model.AuditResourceLedgerAccount,
				ResourceID:   accountID,
				BeforeJSON:   string(beforeJSON),
				AfterJSON:    string(afterJSON),
				CreatedAt:    u.clock.Now(),
			}); err != nil {
				return dbError(err)
			}
			out = t
			return nil
		})
	})
	return out, err
}

// 競合だけをやり直す。それ以外はそのまま返す
func (u *LedgerUsecase) withRetry(ctx context.Context, op string, fn func() error) error {
	return retryOnConflict(ctx, u.log, op, u.maxRetries, fn)
}

func retryOnConflict(ctx context.Context, log *slog.Logger, op string, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isConflict(err) {
			return err
		}
		log.WarnContext(ctx, "conflict, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		if attempt == maxAttempts {
			break
		}
		backoff := time.Duration(attempt*10+rand.IntN(10)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	return newError(ErrPersistenceConflict, "conflict, retry")
}

func toLedgerAccountOutput(a model.LedgerAccount) LedgerAccountOutput {
	return LedgerAccountOutput{
		ID:             a.ID,
		Kind:           string(a.Kind),
		Balance:        a.Balance,
		LifetimeEarned: a.LifetimeEarned,
		Tier:           string(a.Tier),
		Version:        a.Version,
	}
}
