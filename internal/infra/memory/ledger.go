package memory

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
)

type ledgerRepo struct{ s *state }

// (kind, customer_id) は customer_id がある口座だけ一意
func (r ledgerRepo) CreateAccount(ctx context.Context, a model.LedgerAccount) error {
	if _, ok := r.s.accounts[a.ID]; ok {
		return repo.ErrDuplicate
	}
	if a.CustomerID != nil {
		for _, e := range r.s.accounts {
			if e.Kind == a.Kind && e.CustomerID != nil && *e.CustomerID == *a.CustomerID {
				return repo.ErrDuplicate
			}
		}
	}
	if a.Version == 0 {
		a.Version = 1
	}
	r.s.accounts[a.ID] = a
	return nil
}

func (r ledgerRepo) FindAccount(ctx context.Context, accountID string) (model.LedgerAccount, error) {
	a, ok := r.s.accounts[accountID]
	if !ok {
		return model.LedgerAccount{}, repo.ErrNotFound
	}
	return a, nil
}

func (r ledgerRepo) FindAccountForUpdate(ctx context.Context, accountID string) (model.LedgerAccount, error) {
	return r.FindAccount(ctx, accountID)
}

func (r ledgerRepo) FindAccountByCustomer(ctx context.Context, customerID string, kind model.LedgerAccountKind) (model.LedgerAccount, error) {
	a, ok := lo.Find(lo.Values(r.s.accounts), func(a model.LedgerAccount) bool {
		return a.Kind == kind && a.CustomerID != nil && *a.CustomerID == customerID
	})
	if !ok {
		return model.LedgerAccount{}, repo.ErrNotFound
	}
	return a, nil
}

func (r ledgerRepo) UpdateAccount(ctx context.Context, a model.LedgerAccount, expectedVersion int64) error {
	cur, ok := r.s.accounts[a.ID]
	if !ok || cur.Version != expectedVersion {
		return repo.ErrConflict
	}
	cur.Balance = a.Balance
	cur.LifetimeEarned = a.LifetimeEarned
	cur.Tier = a.Tier
	cur.Version = expectedVersion + 1
	r.s.accounts[a.ID] = cur
	return nil
}

func (r ledgerRepo) AppendTransaction(ctx context.Context, t model.LedgerTransaction) error {
	if t.IdempotencyKey != nil {
		if _, found, _ := r.FindTransactionByKey(ctx, *t.IdempotencyKey); found {
			return repo.ErrDuplicate
		}
	}
	r.s.transactions = append(r.s.transactions, t)
	return nil
}

func (r ledgerRepo) FindTransactionByKey(ctx context.Context, key string) (model.LedgerTransaction, bool, error) {
	t, ok := lo.Find(r.s.transactions, func(t model.LedgerTransaction) bool {
		return t.IdempotencyKey != nil && *t.IdempotencyKey == key
	})
	return t, ok, nil
}

func (r ledgerRepo) ListTransactions(ctx context.Context, accountID string) ([]model.LedgerTransaction, error) {
	return lo.Filter(r.s.transactions, func(t model.LedgerTransaction, _ int) bool {
		return t.AccountID == accountID
	}), nil
}

type giftCardRepo struct{ s *state }

func (r giftCardRepo) Create(ctx context.Context, g model.GiftCard) error {
	for _, e := range r.s.giftCards {
		if e.ID == g.ID || e.Code == g.Code || e.AccountID == g.AccountID {
			return repo.ErrDuplicate
		}
	}
	r.s.giftCards[g.ID] = g
	return nil
}

func (r giftCardRepo) FindByCode(ctx context.Context, code string) (model.GiftCard, error) {
	g, ok := lo.Find(lo.Values(r.s.giftCards), func(g model.GiftCard) bool { return g.Code == code })
	if !ok {
		return model.GiftCard{}, repo.ErrNotFound
	}
	return g, nil
}

func (r giftCardRepo) FindByID(ctx context.Context, id string) (model.GiftCard, error) {
	g, ok := r.s.giftCards[id]
	if !ok {
		return model.GiftCard{}, repo.ErrNotFound
	}
	return g, nil
}

type referralRepo struct{ s *state }

func (r referralRepo) CreateCode(ctx context.Context, c model.ReferralCode) error {
	for _, e := range r.s.referralCodes {
		if e.ID == c.ID || e.Code == c.Code {
			return repo.ErrDuplicate
		}
	}
	r.s.referralCodes[c.ID] = c
	return nil
}

func (r referralRepo) FindCodeByCode(ctx context.Context, code string) (model.ReferralCode, error) {
	c, ok := lo.Find(lo.Values(r.s.referralCodes), func(c model.ReferralCode) bool { return c.Code == code })
	if !ok {
		return model.ReferralCode{}, repo.ErrNotFound
	}
	return c, nil
}

func (r referralRepo) IncrementCodeUses(ctx context.Context, codeID string) error {
	c, ok := r.s.referralCodes[codeID]
	if !ok {
		return repo.ErrNotFound
	}
	c.UsesCount++
	r.s.referralCodes[codeID] = c
	return nil
}

func (r referralRepo) Create(ctx context.Context, ref model.Referral) error {
	for _, e := range r.s.referrals {
		if e.ID == ref.ID || e.ReferredID == ref.ReferredID {
			return repo.ErrDuplicate
		}
	}
	r.s.referrals[ref.ID] = ref
	return nil
}

func (r referralRepo) FindByReferredForUpdate(ctx context.Context, referredID string) (model.Referral, error) {
	ref, ok := lo.Find(lo.Values(r.s.referrals), func(x model.Referral) bool { return x.ReferredID == referredID })
	if !ok {
		return model.Referral{}, repo.ErrNotFound
	}
	return ref, nil
}

func (r referralRepo) MarkCompleted(ctx context.Context, referralID string, orderID string, at time.Time) (bool, error) {
	ref, ok := r.s.referrals[referralID]
	if !ok || ref.RewardGiven || ref.Status != model.ReferralStatusPending {
		return false, nil
	}
	ref.Status = model.ReferralStatusCompleted
	ref.RewardGiven = true
	ref.OrderID = lo.ToPtr(orderID)
	ref.CompletedAt = lo.ToPtr(at)
	ref.UpdatedAt = at
	r.s.referrals[referralID] = ref
	return true, nil
}

func (r referralRepo) ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, ref := range r.s.referrals {
		if ref.Status == model.ReferralStatusPending && ref.CreatedAt.Before(cutoff) {
			ref.Status = model.ReferralStatusExpired
			r.s.referrals[id] = ref
			n++
		}
	}
	return n, nil
}
