// Package repotest は TransactionManager の実装が満たすべき振る舞いをまとめたテスト群。
// メモリ実装と Postgres 実装の両方から呼ぶ。
package repotest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory は空のストアを返す
type Factory func(t *testing.T) repo.TransactionManager

var errRollback = errors.New("rollback")

// 比較用。DB を通ると時刻の精度とロケーションが変わる
var cmpOpts = []cmp.Option{
	cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
	cmpopts.EquateApproxTime(time.Millisecond),
	cmpopts.IgnoreFields(model.LedgerTransaction{}, "CreatedAt"),
}

func Run(t *testing.T, newStore Factory) {
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("stock", func(t *testing.T) { testStock(t, newStore(t)) })
	t.Run("orders", func(t *testing.T) { testOrders(t, newStore(t)) })
	t.Run("ledger", func(t *testing.T) { testLedger(t, newStore(t)) })
	t.Run("referrals", func(t *testing.T) { testReferrals(t, newStore(t)) })
	t.Run("deliveries", func(t *testing.T) { testDeliveries(t, newStore(t)) })
}

func within(t *testing.T, tx repo.TransactionManager, fn func(r repo.TxRepos) error) {
	t.Helper()
	require.NoError(t, tx.WithinTx(context.Background(), fn))
}

func createProduct(t *testing.T, tx repo.TransactionManager, stock int64) model.Product {
	t.Helper()
	var p model.Product
	within(t, tx, func(r repo.TxRepos) error {
		var err error
		p, err = r.Products().Create(context.Background(), model.Product{
			Name:     gofakeit.Dessert(),
			Price:    decimal.NewFromFloat(gofakeit.Price(1, 50)).Round(2),
			Stock:    stock,
			IsActive: true,
			Version:  1,
		})
		return err
	})
	return p
}

func newOrder(customerID *string, key *string) model.Order {
	now := time.Now().UTC()
	return model.Order{
		ID:             uuid.NewString(),
		CustomerID:     customerID,
		CustomerName:   gofakeit.Name(),
		CustomerEmail:  gofakeit.Email(),
		Subtotal:       decimal.RequireFromString("10.00"),
		Tax:            decimal.RequireFromString("1.80"),
		Total:          decimal.RequireFromString("11.80"),
		GiftCardAmount: decimal.Zero,
		AmountDue:      decimal.RequireFromString("11.80"),
		Status:         model.OrderStatusPending,
		IdempotencyKey: key,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func testRollback(t *testing.T, tx repo.TransactionManager) {
	ctx := context.Background()
	p := createProduct(t, tx, 5)

	err := tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 5)
		require.NoError(t, err)
		require.True(t, ok)
		return errRollback
	})
	require.ErrorIs(t, err, errRollback)

	within(t, tx, func(r repo.TxRepos) error {
		got, err := r.Products().FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 5, got.Stock)
		return nil
	})
}

func testStock(t *testing.T, tx repo.TransactionManager) {
	ctx := context.Background()
	p := createProduct(t, tx, 3)

	within(t, tx, func(r repo.TxRepos) error {
		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 4)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = r.Inventory().DecreaseStockIfEnough(ctx, p.ID, 3)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, r.Inventory().IncreaseStock(ctx, p.ID, 1))
		assert.ErrorIs(t, r.Inventory().IncreaseStock(ctx, p.ID+1000, 1), repo.ErrNotFound)

		assert.ErrorIs(t, r.Inventory().SetStock(ctx, p.ID, 10, p.Version+1), repo.ErrConflict)
		assert.ErrorIs(t, r.Inventory().SetStock(ctx, p.ID+1000, 10, 1), repo.ErrNotFound)
		require.NoError(t, r.Inventory().SetStock(ctx, p.ID, 10, p.Version))

		got, err := r.Products().FindByID(ctx, p.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 10, got.Stock)
		assert.Equal(t, p.Version+1, got.Version)
		return nil
	})

	err := tx.WithinTx(ctx, func(r repo.TxRepos) error {
		_, err := r.Products().FindByID(ctx, p.ID+1000)
		return err
	})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func testOrders(t *testing.T, tx repo.TransactionManager) {
	ctx := context.Background()
	customer := lo.ToPtr(gofakeit.UUID())
	key := lo.ToPtr("checkout-" + gofakeit.UUID())

	first := newOrder(customer, key)
	within(t, tx, func(r repo.TxRepos) error {
		require.NoError(t, r.Orders().Create(ctx, first))
		// 同じ冪等キーは2件目を作らない
		assert.ErrorIs(t, r.Orders().Create(ctx, newOrder(customer, key)), repo.ErrDuplicate)

		found, ok, err := r.Orders().FindByIdempotencyKey(ctx, *key)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, first.ID, found.ID)

		_, ok, err = r.Orders().FindByIdempotencyKey(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})

	session := "cs_" + gofakeit.UUID()
	within(t, tx, func(r repo.TxRepos) error {
		require.NoError(t, r.Orders().AttachPaymentSession(ctx, first.ID, session, "https://pay.example/"+session))
		// 2回目は付け替えない
		assert.ErrorIs(t, r.Orders().AttachPaymentSession(ctx, first.ID, "cs_other", ""), repo.ErrConflict)

		o, err := r.Orders().FindBySessionIDForUpdate(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, first.ID, o.ID)

		_, err = r.Orders().FindBySessionIDForUpdate(ctx, "cs_missing")
		assert.ErrorIs(t, err, repo.ErrNotFound)
		return nil
	})

	within(t, tx, func(r repo.TxRepos) error {
		assert.ErrorIs(t, r.Orders().UpdateStatus(ctx, first.ID, first.Version+1, model.OrderStatusPaid), repo.ErrConflict)
		require.NoError(t, r.Orders().UpdateStatus(ctx, first.ID, first.Version, model.OrderStatusPaid))

		n, err := r.Orders().CountPaidByCustomer(ctx, *customer)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		return nil
	})

	items := []model.OrderItem{
		{OrderID: first.ID, ProductID: 1, ProductNameSnapshot: "Glazed", UnitPriceSnapshot: decimal.RequireFromString("2.50"), Quantity: 2},
		{OrderID: first.ID, ProductID: 2, ProductNameSnapshot: "Boston Cream", UnitPriceSnapshot: decimal.RequireFromString("5.00"), Quantity: 1},
	}
	within(t, tx, func(r repo.TxRepos) error {
		require.NoError(t, r.OrderItems().CreateBulk(ctx, first.ID, items))
		got, err := r.OrderItems().ListByOrderID(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		total := lo.Reduce(got, func(acc decimal.Decimal, it model.OrderItem, _ int) decimal.Decimal {
			return acc.Add(it.LineTotal())
		}, decimal.Zero)
		assert.Equal(t, "10.00", total.StringFixed(2))
		return nil
	})

	within(t, tx, func(r repo.TxRepos) error {
		second := newOrder(customer, nil)
		second.CreatedAt = first.CreatedAt.Add(time.Minute)
		require.NoError(t, r.Orders().Create(ctx, second))
		require.NoError(t, r.Orders().Create(ctx, newOrder(nil, nil)))

		orders, total, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 10, CustomerID: customer})
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, orders, 2)
		assert.Equal(t, second.ID, orders[0].ID)

		paid, _, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 10, Status: string(model.OrderStatusPaid)})
		require.NoError(t, err)
		assert.Len(t, paid, 1)
		return nil
	})
}

func testLedger(t *testing.T, tx repo.TransactionManager) {
	ctx := context.Background()
	customer := lo.ToPtr(gofakeit.UUID())
	acc := model.LedgerAccount{
		ID:             uuid.NewString(),
		Kind:           model.LedgerAccountLoyalty,
		CustomerID:     customer,
		Balance:        decimal.Zero,
		LifetimeEarned: decimal.Zero,
		Tier:           model.TierBronze,
		Version:        1,
	}
	within(t, tx, func(r repo.TxRepos) error {
		require.NoError(t, r.Ledger().CreateAccount(ctx, acc))
		dup := acc
		dup.ID = uuid.NewString()
		// 顧客ごと種類ごとに1口座
		assert.ErrorIs(t, r.Ledger().CreateAccount(ctx, dup), repo.ErrDuplicate)

		got, err := r.Ledger().FindAccountByCustomer(ctx, *customer, model.LedgerAccountLoyalty)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, got.ID)

		_, err = r.Ledger().FindAccountByCustomer(ctx, *customer, model.LedgerAccountGiftCard)
		assert.ErrorIs(t, err, repo.ErrNotFound)
		return nil
	})

	base := time.Now().UTC().Truncate(time.Second)
	txs := []model.LedgerTransaction{
		{ID: uuid.NewString(), AccountID: acc.ID, Delta: decimal.RequireFromString("12"), Kind: model.TxKindEarned, IdempotencyKey: lo.ToPtr("accrual:" + gofakeit.UUID()), BalanceAfter: decimal.RequireFromString("12"), CreatedAt: base},
		{ID: uuid.NewString(), AccountID: acc.ID, Delta: decimal.RequireFromString("-5"), Kind: model.TxKindRedeemed, BalanceAfter: decimal.RequireFromString("7"), CreatedAt: base.Add(time.Second)},
	}
	within(t, tx, func(r repo.TxRepos) error {
		for _, lt := range txs {
			require.NoError(t, r.Ledger().AppendTransaction(ctx, lt))
		}
		again := txs[0]
		again.ID = uuid.NewString()
		assert.ErrorIs(t, r.Ledger().AppendTransaction(ctx, again), repo.ErrDuplicate)

		byKey, ok, err := r.Ledger().FindTransactionByKey(ctx, *txs[0].IdempotencyKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, txs[0].ID, byKey.ID)

		listed, err := r.Ledger().ListTransactions(ctx, acc.ID)
		require.NoError(t, err)
		if diff := cmp.Diff(txs, listed, cmpOpts...); diff != "" {
			t.Errorf("transactions mismatch (-want +got):\n%s", diff)
		}
		assert.True(t, model.ReplayBalance(listed).Equal(decimal.RequireFromString("7")))
		return nil
	})

	within(t, tx, func(r repo.TxRepos) error {
		cur, err := r.Ledger().FindAccountForUpdate(ctx, acc.ID)
		require.NoError(t, err)
		cur.Balance = decimal.RequireFromString("7")
		cur.LifetimeEarned = decimal.RequireFromString("12")
		assert.ErrorIs(t, r.Ledger().UpdateAccount(ctx, cur, cur.Version+1), repo.ErrConflict)
		require.NoError(t, r.Ledger().UpdateAccount(ctx, cur, cur.Version))

		after, err := r.Ledger().FindAccount(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "7.00", after.Balance.StringFixed(2))
		assert.Equal(t, cur.Version+1, after.Version)
		return nil
	})
}

func testReferrals(t *testing.T, tx repo.TransactionManager) {
	ctx := context.Background()
	code := model.ReferralCode{
		ID:           uuid.NewString(),
		Code:         "REF" + gofakeit.LetterN(8),
		ReferrerID:   gofakeit.UUID(),
		RewardPoints: 100,
		IsActive:     true,
	}
	old := time.Now().UTC().Add(-48 * time.Hour)
	fresh := model.Referral{
		ID:           uuid.NewString(),
		CodeID:       code.ID,
		ReferrerID:   code.ReferrerID,
		ReferredID:   gofakeit.UUID(),
		Status:       model.ReferralStatusPending,
		RewardPoints: 100,
		CreatedAt:    time.Now().UTC(),
	}
	stale := fresh
	stale.ID, stale.ReferredID, stale.CreatedAt = uuid.NewString(), gofakeit.UUID(), old

	within(t, tx, func(r repo.TxRepos) error {
		require.NoError(t, r.Referrals().CreateCode(ctx, code))
		require.NoError(t, r.Referrals().IncrementCodeUses(ctx, code.ID))
		got, err := r.Referrals().FindCodeByCode(ctx, code.Code)
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.UsesCount)

		require.NoError(t, r.Referrals().Create(ctx, fresh))
		require.NoError(t, r.Referrals().Create(ctx, stale))
		// 同じ人は二度紹介されない
		again := fresh
		again.ID = uuid.NewString()
		assert.ErrorIs(t, r.Referrals().Create(ctx, again), repo.ErrDuplicate)
		return nil
	})

	within(t, tx, func(r repo.TxRepos) error {
		orderID := uuid.NewString()
		done, err := r.Referrals().MarkCompleted(ctx, fresh.ID, orderID, time.Now().UTC())
		require.NoError(t, err)
		assert.True(t, done)
		done, err = r.Referrals().MarkCompleted(ctx, fresh.ID, orderID, time.Now().UTC())
		require.NoError(t, err)
		assert.False(t, done)

		n, err := r.Referrals().ExpirePendingBefore(ctx, old.Add(time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		got, err := r.Referrals().FindByReferredForUpdate(ctx, stale.ReferredID)
		require.NoError(t, err)
		assert.Equal(t, model.ReferralStatusExpired, got.Status)
		return nil
	})
}

func testDeliveries(t *testing.T, tx repo.TransactionManager) {
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	sub := model.Subscription{
		ID:               uuid.NewString(),
		CustomerID:       gofakeit.UUID(),
		CustomerName:     gofakeit.Name(),
		CustomerEmail:    gofakeit.Email(),
		ProductID:        1,
		Plan:             model.PlanWeekly,
		Quantity:         2,
		PricePerDelivery: decimal.RequireFromString("9.00"),
		Status:           model.SubscriptionStatusActive,
		NextDeliveryDate: day,
		Version:          1,
	}
	d := model.SubscriptionDelivery{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		ScheduledDate:  day,
		Status:         model.DeliveryStatusScheduled,
	}

	within(t, tx, func(r repo.TxRepos) error {
		require.NoError(t, r.Subscriptions().Create(ctx, sub))
		require.NoError(t, r.Deliveries().Create(ctx, d))
		dup := d
		dup.ID = uuid.NewString()
		assert.ErrorIs(t, r.Deliveries().Create(ctx, dup), repo.ErrDuplicate)

		due, err := r.Subscriptions().ListDue(ctx, day, 10)
		require.NoError(t, err)
		assert.True(t, lo.ContainsBy(due, func(s model.Subscription) bool { return s.ID == sub.ID }))
		notYet, err := r.Subscriptions().ListDue(ctx, day.AddDate(0, 0, -1), 10)
		require.NoError(t, err)
		assert.False(t, lo.ContainsBy(notYet, func(s model.Subscription) bool { return s.ID == sub.ID }))

		unordered, err := r.Deliveries().ListUnordered(ctx, day, 10)
		require.NoError(t, err)
		assert.True(t, lo.ContainsBy(unordered, func(x model.SubscriptionDelivery) bool { return x.ID == d.ID }))
		return nil
	})

	within(t, tx, func(r repo.TxRepos) error {
		orderID := uuid.NewString()
		require.NoError(t, r.Deliveries().AttachOrder(ctx, d.ID, orderID))
		require.NoError(t, r.Deliveries().UpdateStatus(ctx, d.ID, model.DeliveryStatusPreparing))

		got, err := r.Deliveries().FindBySubscriptionAndDate(ctx, sub.ID, day)
		require.NoError(t, err)
		assert.Equal(t, model.DeliveryStatusPreparing, got.Status)
		assert.Equal(t, orderID, lo.FromPtr(got.OrderID))

		unordered, err := r.Deliveries().ListUnordered(ctx, day, 10)
		require.NoError(t, err)
		assert.False(t, lo.ContainsBy(unordered, func(x model.SubscriptionDelivery) bool { return x.ID == d.ID }))

		assert.ErrorIs(t, r.Deliveries().UpdateStatus(ctx, uuid.NewString(), model.DeliveryStatusSkipped), repo.ErrNotFound)

		cur, err := r.Subscriptions().FindByIDForUpdate(ctx, sub.ID)
		require.NoError(t, err)
		cur.NextDeliveryDate = cur.Advance()
		assert.ErrorIs(t, r.Subscriptions().Update(ctx, cur, cur.Version+1), repo.ErrConflict)
		require.NoError(t, r.Subscriptions().Update(ctx, cur, cur.Version))
		return nil
	})
}
