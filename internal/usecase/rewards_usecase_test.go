package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoyalty_NewCustomerIsBronze(t *testing.T) {
	e := newEnv(t)

	out, err := e.rewards.Loyalty(context.Background(), customerID)
	require.NoError(t, err)
	assert.Equal(t, "bronze", out.Tier)
	assert.Equal(t, "1", out.Multiplier.String())
	assert.Equal(t, "silver", out.NextTier)
	assert.Equal(t, "500", out.PointsToNextTier.String())
	assert.True(t, out.Balance.IsZero())
}

// 段階は累計獲得で決まり、使っても下がらない
func TestLoyalty_TierFollowsLifetimeEarned(t *testing.T) {
	e := newEnv(t)
	acct, err := e.rewards.Loyalty(context.Background(), customerID)
	require.NoError(t, err)

	_, err = e.ledger.AdminAdjust(context.Background(), adminID, acct.AccountID, usecase.AdminAdjustInput{
		Delta: dec("600"),
		Note:  "welcome",
	})
	require.NoError(t, err)

	_, err = e.rewards.RedeemPoints(context.Background(), customerID, 550, nil)
	require.NoError(t, err)

	out, err := e.rewards.Loyalty(context.Background(), customerID)
	require.NoError(t, err)
	assert.Equal(t, "50", out.Balance.String())
	assert.Equal(t, "600", out.LifetimeEarned.String())
	assert.Equal(t, "silver", out.Tier)
	assert.Equal(t, "gold", out.NextTier)
	assert.Equal(t, "1400", out.PointsToNextTier.String())
}

func TestAccrual_UsesTierMultiplier(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Catering Box", "100.00", 10)

	acct, err := e.rewards.Loyalty(context.Background(), customerID)
	require.NoError(t, err)
	_, err = e.ledger.AdminAdjust(context.Background(), adminID, acct.AccountID, usecase.AdminAdjustInput{Delta: dec("2000")})
	require.NoError(t, err)

	out, err := e.checkout.Checkout(context.Background(), checkoutInput(p.ID, 1, lo.ToPtr(customerID)))
	require.NoError(t, err)
	res, err := e.reconcile.HandlePaymentEvent(context.Background(), paid(out.OrderID))
	require.NoError(t, err)

	// gold: floor(118.00 / 10 * 1.5)
	assert.Equal(t, "17", res.PointsAccrued.String())
}

func TestRedeemPoints(t *testing.T) {
	e := newEnv(t)
	acct, err := e.rewards.Loyalty(context.Background(), customerID)
	require.NoError(t, err)
	_, err = e.ledger.AdminAdjust(context.Background(), adminID, acct.AccountID, usecase.AdminAdjustInput{Delta: dec("100")})
	require.NoError(t, err)

	t.Run("insufficient balance changes nothing", func(t *testing.T) {
		_, err := e.rewards.RedeemPoints(context.Background(), customerID, 101, nil)
		assert.ErrorIs(t, err, usecase.ErrInsufficientBalance)

		out, err := e.rewards.Loyalty(context.Background(), customerID)
		require.NoError(t, err)
		assert.Equal(t, "100", out.Balance.String())
	})

	t.Run("same order reference redeems once", func(t *testing.T) {
		ref := "7f1c2b9e-4d3a-4c55-9a0e-2b6f8d1e3c47"
		first, err := e.rewards.RedeemPoints(context.Background(), customerID, 30, lo.ToPtr(ref))
		require.NoError(t, err)
		second, err := e.rewards.RedeemPoints(context.Background(), customerID, 30, lo.ToPtr(ref))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		out, err := e.rewards.Loyalty(context.Background(), customerID)
		require.NoError(t, err)
		assert.Equal(t, "70", out.Balance.String())
	})

	t.Run("non positive points", func(t *testing.T) {
		_, err := e.rewards.RedeemPoints(context.Background(), customerID, 0, nil)
		assert.ErrorIs(t, err, usecase.ErrValidation)
	})

	t.Run("order reference must be an order id", func(t *testing.T) {
		_, err := e.rewards.RedeemPoints(context.Background(), customerID, 10, lo.ToPtr("order-x"))
		assert.ErrorIs(t, err, usecase.ErrValidation)

		out, err := e.rewards.Loyalty(context.Background(), customerID)
		require.NoError(t, err)
		assert.Equal(t, "70", out.Balance.String())
	})
}

func TestRegisterReferral_Rules(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 10)

	code, err := e.rewards.CreateReferralCode(context.Background(), "cust-referrer", 250)
	require.NoError(t, err)
	assert.EqualValues(t, 250, code.RewardPoints)

	t.Run("self referral", func(t *testing.T) {
		_, err := e.rewards.RegisterReferral(context.Background(), code.Code, "cust-referrer")
		assert.ErrorIs(t, err, usecase.ErrValidation)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := e.rewards.RegisterReferral(context.Background(), "REF-NOPE", customerID)
		assert.ErrorIs(t, err, usecase.ErrNotFound)
	})

	t.Run("only once per customer", func(t *testing.T) {
		ref, err := e.rewards.RegisterReferral(context.Background(), code.Code, customerID)
		require.NoError(t, err)
		assert.Equal(t, model.ReferralStatusPending, ref.Status)

		_, err = e.rewards.RegisterReferral(context.Background(), code.Code, customerID)
		assert.ErrorIs(t, err, usecase.ErrValidation)
	})

	t.Run("customer with a paid order", func(t *testing.T) {
		out, err := e.checkout.Checkout(context.Background(), checkoutInput(p.ID, 1, lo.ToPtr("cust-old")))
		require.NoError(t, err)
		_, err = e.reconcile.HandlePaymentEvent(context.Background(), paid(out.OrderID))
		require.NoError(t, err)

		_, err = e.rewards.RegisterReferral(context.Background(), code.Code, "cust-old")
		assert.ErrorIs(t, err, usecase.ErrValidation)
	})
}

func TestExpireReferrals(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 10)

	code, err := e.rewards.CreateReferralCode(context.Background(), "cust-referrer", 0)
	require.NoError(t, err)
	_, err = e.rewards.RegisterReferral(context.Background(), code.Code, customerID)
	require.NoError(t, err)

	n, err := e.rewards.ExpireReferrals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Set(day0.Add(31 * 24 * time.Hour))
	n, err = e.rewards.ExpireReferrals(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// 期限切れの後に払っても報酬なし
	out, err := e.checkout.Checkout(context.Background(), checkoutInput(p.ID, 1, lo.ToPtr(customerID)))
	require.NoError(t, err)
	res, err := e.reconcile.HandlePaymentEvent(context.Background(), paid(out.OrderID))
	require.NoError(t, err)
	assert.False(t, res.ReferralCompleted)
}

func TestIssueGiftCard(t *testing.T) {
	e := newEnv(t)

	out := e.issueCard(t, " welcome-25 ", "25.00")
	assert.Equal(t, "WELCOME-25", out.Code)
	assert.Equal(t, "25.00", out.Balance.StringFixed(2))
	assert.True(t, out.Usable)

	_, err := e.rewards.IssueGiftCard(context.Background(), adminID, usecase.IssueGiftCardInput{
		Code:   "WELCOME-25",
		Amount: dec("10"),
	})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = e.rewards.IssueGiftCard(context.Background(), adminID, usecase.IssueGiftCardInput{Amount: dec("0")})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = e.rewards.IssueGiftCard(context.Background(), adminID, usecase.IssueGiftCardInput{
		Amount:    dec("10"),
		ExpiresAt: lo.ToPtr(day0.Add(-time.Hour)),
	})
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestGiftCard_ExpiredIsNotApplied(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 10)

	_, err := e.rewards.IssueGiftCard(context.Background(), adminID, usecase.IssueGiftCardInput{
		Code:      "SHORT",
		Amount:    dec("50"),
		ExpiresAt: lo.ToPtr(day0.Add(24 * time.Hour)),
	})
	require.NoError(t, err)

	e.clock.Set(day0.Add(48 * time.Hour))
	in := checkoutInput(p.ID, 1, nil)
	in.GiftCardCode = "SHORT"
	out, err := e.checkout.Checkout(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "gift card inactive or expired", out.GiftCardError)
	assert.Equal(t, "50.00", e.cardBalance(t, "SHORT").StringFixed(2))
}
