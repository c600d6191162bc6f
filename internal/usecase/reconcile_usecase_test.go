package usecase_test

import (
	"context"
	"testing"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlePaymentEvent_SucceededIsIdempotent(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 5)

	out, err := e.checkout.Checkout(context.Background(), checkoutInput(p.ID, 2, lo.ToPtr(customerID)))
	require.NoError(t, err)

	first, err := e.reconcile.HandlePaymentEvent(context.Background(), paid(out.OrderID))
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.Equal(t, "paid", first.Status)
	// floor(23.60 / 10 * 1)
	assert.Equal(t, "2", first.PointsAccrued.String())

	for i := 0; i < 3; i++ {
		again, err := e.reconcile.HandlePaymentEvent(context.Background(), paid(out.OrderID))
		require.NoError(t, err)
		assert.False(t, again.Applied)
		assert.Equal(t, "paid", again.Status)
	}

	loyalty, err := e.rewards.Loyalty(context.Background(), customerID)
	require.NoError(t, err)
	assert.Equal(t, "2", loyalty.Balance.String())

	history, err := e.rewards.LoyaltyHistory(context.Background(), customerID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.TxKindEarned, history[0].Kind)
	assert.Equal(t, out.OrderID, lo.FromPtr(history[0].OrderID))

	assert.EqualValues(t, 3, e.stockOf(t, p.ID))
}

func TestHandlePaymentEvent_GuestEarnsNothing(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 5)

	out, err := e.checkout.Checkout(context.Background(), checkoutInput(p.ID, 2, nil))
	require.NoError(t, err)

	res, err := e.reconcile.HandlePaymentEvent(context.Background(), paid(out.OrderID))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.PointsAccrued.IsZero())
}

func TestHandlePaymentEvent_FailedReleasesStock(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 5)
	e.issueCard(t, "GIFT-5", "5.00")

	in := checkoutInput(p.ID, 2, lo.ToPtr(customerID))
	in.GiftCardCode = "GIFT-5"
	out, err := e.checkout.Checkout(context.Background(), in)
	require.NoError(t, err)
	require.EqualValues(t, 3, e.stockOf(t, p.ID))
	require.True(t, e.cardBalance(t, "GIFT-5").IsZero())

	res, err := e.reconcile.HandlePaymentEvent(context.Background(), failed(out.OrderID))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "cancelled", res.Status)
	assert.EqualValues(t, 5, e.stockOf(t, p.ID))
	assert.Equal(t, "5.00", e.cardBalance(t, "GIFT-5").StringFixed(2))

	// 再送しても2回は戻さない
	res, err = e.reconcile.HandlePaymentEvent(context.Background(), failed(out.OrderID))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.EqualValues(t, 5, e.stockOf(t, p.ID))
	assert.Equal(t, "5.00", e.cardBalance(t, "GIFT-5").StringFixed(2))

	// 取消後の成功通知では復活しない
	res, err = e.reconcile.HandlePaymentEvent(context.Background(), paid(out.OrderID))
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, "cancelled", res.Status)
}

func TestHandlePaymentEvent_UnknownSession(t *testing.T) {
	e := newEnv(t)

	_, err := e.reconcile.HandlePaymentEvent(context.Background(), usecase.PaymentEvent{
		Type:      usecase.PaymentSucceeded,
		SessionID: "cs_unknown",
	})
	assert.ErrorIs(t, err, usecase.ErrNotFound)

	_, err = e.reconcile.HandlePaymentEvent(context.Background(), usecase.PaymentEvent{Type: usecase.PaymentSucceeded})
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestHandlePaymentEvent_CompletesReferralOnce(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 50)

	const referrer = "cust-referrer"
	code, err := e.rewards.CreateReferralCode(context.Background(), referrer, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 100, code.RewardPoints)

	_, err = e.rewards.RegisterReferral(context.Background(), code.Code, customerID)
	require.NoError(t, err)

	first, err := e.checkout.Checkout(context.Background(), checkoutInput(p.ID, 1, lo.ToPtr(customerID)))
	require.NoError(t, err)
	res, err := e.reconcile.HandlePaymentEvent(context.Background(), paid(first.OrderID))
	require.NoError(t, err)
	assert.True(t, res.ReferralCompleted)

	res, err = e.reconcile.HandlePaymentEvent(context.Background(), paid(first.OrderID))
	require.NoError(t, err)
	assert.False(t, res.ReferralCompleted)

	// 2回目の注文では報酬なし
	second, err := e.checkout.Checkout(context.Background(), checkoutInput(p.ID, 1, lo.ToPtr(customerID)))
	require.NoError(t, err)
	res, err = e.reconcile.HandlePaymentEvent(context.Background(), paid(second.OrderID))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.ReferralCompleted)

	loyalty, err := e.rewards.Loyalty(context.Background(), referrer)
	require.NoError(t, err)
	assert.Equal(t, "100", loyalty.Balance.String())

	history, err := e.rewards.LoyaltyHistory(context.Background(), referrer)
	require.NoError(t, err)
	require.Len(t, history, 1)
	// 報酬は earned。紹介分はメモで区別する
	assert.Equal(t, model.TxKindEarned, history[0].Kind)
	assert.Contains(t, history[0].Note, "referral ")
}
