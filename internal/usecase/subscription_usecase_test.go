package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func createSubscription(t *testing.T, e *env, productID int64, plan string, qty int64, start string) usecase.SubscriptionOutput {
	t.Helper()
	out, err := e.subscriptions.Create(context.Background(), customerID, usecase.CreateSubscriptionInput{
		CustomerName:  "Ayse Yilmaz",
		CustomerEmail: "ayse@example.com",
		ProductID:     productID,
		Plan:          plan,
		Quantity:      qty,
		StartDate:     lo.ToPtr(date(start)),
	})
	require.NoError(t, err)
	return out
}

func TestSubscriptionCreate(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 100)

	out := createSubscription(t, e, p.ID, "weekly", 3, "2024-01-01")
	assert.Equal(t, "active", out.Status)
	assert.Equal(t, "2024-01-01", out.NextDeliveryDate)
	assert.Equal(t, "30.00", out.PricePerDelivery.StringFixed(2))
	assert.Equal(t, "120.00", out.MonthlyPrice.StringFixed(2))

	tests := []struct {
		name string
		in   usecase.CreateSubscriptionInput
	}{
		{"invalid plan", usecase.CreateSubscriptionInput{CustomerName: "a", CustomerEmail: "a@example.com", ProductID: p.ID, Plan: "daily", Quantity: 1}},
		{"zero quantity", usecase.CreateSubscriptionInput{CustomerName: "a", CustomerEmail: "a@example.com", ProductID: p.ID, Plan: "weekly", Quantity: 0}},
		{"start in the past", usecase.CreateSubscriptionInput{CustomerName: "a", CustomerEmail: "a@example.com", ProductID: p.ID, Plan: "weekly", Quantity: 1, StartDate: lo.ToPtr(date("2023-12-31"))}},
		{"unknown product", usecase.CreateSubscriptionInput{CustomerName: "a", CustomerEmail: "a@example.com", ProductID: 999, Plan: "weekly", Quantity: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.subscriptions.Create(context.Background(), customerID, tt.in)
			assert.ErrorIs(t, err, usecase.ErrValidation)
		})
	}
}

func TestGenerateDelivery_WeeklySchedule(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 100)
	sub := createSubscription(t, e, p.ID, "weekly", 1, "2024-01-01")

	want := []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"}
	for _, d := range want {
		got, err := e.subscriptions.GenerateDelivery(context.Background(), sub.ID, date(d))
		require.NoError(t, err)
		assert.Equal(t, d, got.ScheduledDate.Format(time.DateOnly))
		assert.Equal(t, model.DeliveryStatusScheduled, got.Status)
	}

	// 同じ日付でもう一度
	_, err := e.subscriptions.GenerateDelivery(context.Background(), sub.ID, date("2024-01-22"))
	assert.ErrorIs(t, err, usecase.ErrDuplicateSchedule)

	// 予定より先の日付
	_, err = e.subscriptions.GenerateDelivery(context.Background(), sub.ID, date("2024-02-05"))
	assert.ErrorIs(t, err, usecase.ErrValidation)

	deliveries, err := e.subscriptions.Deliveries(context.Background(), customerID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, want, lo.Map(deliveries, func(d model.SubscriptionDelivery, _ int) string {
		return d.ScheduledDate.Format(time.DateOnly)
	}))

	subs, err := e.subscriptions.List(context.Background(), customerID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "2024-01-29", subs[0].NextDeliveryDate)
}

func TestGenerateDelivery_MonthlyClampsToMonthEnd(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 100)
	sub := createSubscription(t, e, p.ID, "monthly", 1, "2024-01-31")

	_, err := e.subscriptions.GenerateDelivery(context.Background(), sub.ID, date("2024-01-31"))
	require.NoError(t, err)

	subs, err := e.subscriptions.List(context.Background(), customerID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", subs[0].NextDeliveryDate)
}

func TestSubscriptionTransitions(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 100)
	sub := createSubscription(t, e, p.ID, "biweekly", 1, "2024-01-01")
	ctx := context.Background()

	out, err := e.subscriptions.Pause(ctx, customerID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "paused", out.Status)

	_, err = e.subscriptions.Pause(ctx, customerID, sub.ID)
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition)

	_, err = e.subscriptions.GenerateDelivery(ctx, sub.ID, date("2024-01-01"))
	assert.ErrorIs(t, err, usecase.ErrSubscriptionInactive)

	out, err = e.subscriptions.Resume(ctx, customerID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", out.Status)

	// 他人の定期便は見えない
	_, err = e.subscriptions.Cancel(ctx, "cust-other", sub.ID)
	assert.ErrorIs(t, err, usecase.ErrNotFound)

	out, err = e.subscriptions.Cancel(ctx, customerID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out.Status)

	_, err = e.subscriptions.Resume(ctx, customerID, sub.ID)
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition)
	_, err = e.subscriptions.Cancel(ctx, customerID, sub.ID)
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition)
}

func TestSkipDelivery(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 100)
	sub := createSubscription(t, e, p.ID, "weekly", 1, "2024-01-01")

	d, err := e.subscriptions.GenerateDelivery(context.Background(), sub.ID, date("2024-01-01"))
	require.NoError(t, err)

	skipped, err := e.subscriptions.SkipDelivery(context.Background(), customerID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusSkipped, skipped.Status)

	_, err = e.subscriptions.SkipDelivery(context.Background(), customerID, d.ID)
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition)
}

func TestRunDue_CreatesDeliveriesAndOrders(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 100)
	sub := createSubscription(t, e, p.ID, "weekly", 2, "2024-01-01")

	res, err := e.subscriptions.RunDue(context.Background(), date("2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Subscriptions)
	assert.Equal(t, 3, res.Deliveries)
	assert.Equal(t, 3, res.Orders)
	assert.Empty(t, res.Failures)
	assert.EqualValues(t, 94, e.stockOf(t, p.ID))

	deliveries, err := e.subscriptions.Deliveries(context.Background(), customerID, sub.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 3)
	for _, d := range deliveries {
		assert.NotNil(t, d.OrderID)
	}

	orders, err := e.orders.ListMyOrders(context.Background(), customerID, 1, 20)
	require.NoError(t, err)
	require.Len(t, orders, 3)
	for _, o := range orders {
		assert.Equal(t, "pending", o.Status)
		assert.Equal(t, "23.60", o.Total.StringFixed(2))
	}

	// 2回目は何も作らない
	res, err = e.subscriptions.RunDue(context.Background(), date("2024-01-15"))
	require.NoError(t, err)
	assert.Zero(t, res.Subscriptions)
	assert.Zero(t, res.Deliveries)
}

func TestRunDue_OutOfStockIsReported(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "10.00", 1)
	sub := createSubscription(t, e, p.ID, "weekly", 2, "2024-01-01")

	res, err := e.subscriptions.RunDue(context.Background(), date("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deliveries)
	assert.Zero(t, res.Orders)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0], sub.ID)

	// 配送は残り、次回日付は進む
	deliveries, err := e.subscriptions.Deliveries(context.Background(), customerID, sub.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Nil(t, deliveries[0].OrderID)
}

func TestRunDue_RetriesDeliveryWithoutOrder(t *testing.T) {
	gw := &GatewayMock{}
	gw.On("CreateSession", mock.Anything, mock.Anything).
		Return(usecase.PaymentSession{}, errors.New("gateway timeout")).Once()
	gw.On("CreateSession", mock.Anything, mock.Anything).
		Return(usecase.PaymentSession{ID: "cs_retry", RedirectURL: "http://pay.test/cs_retry"}, nil).Once()

	e := newEnv(t, withGateway(gw))
	p := e.seedProduct(t, "Glazed", "10.00", 100)
	sub := createSubscription(t, e, p.ID, "weekly", 2, "2024-01-01")
	ctx := context.Background()

	res, err := e.subscriptions.RunDue(ctx, date("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deliveries)
	assert.Zero(t, res.Orders)
	require.Len(t, res.Failures, 1)

	// 次の実行で注文を作り直す
	res, err = e.subscriptions.RunDue(ctx, date("2024-01-01"))
	require.NoError(t, err)
	assert.Zero(t, res.Deliveries)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 1, res.Orders)
	assert.Empty(t, res.Failures)
	gw.AssertExpectations(t)

	deliveries, err := e.subscriptions.Deliveries(ctx, customerID, sub.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	require.NotNil(t, deliveries[0].OrderID)
	assert.Equal(t, "pending", e.order(t, *deliveries[0].OrderID).Status)

	// 生きている注文は1件だけ、在庫も1回分
	orders, err := e.orders.ListMyOrders(ctx, customerID, 1, 20)
	require.NoError(t, err)
	live := lo.Filter(orders, func(o usecase.OrderOutput, _ int) bool { return o.Status != "cancelled" })
	assert.Len(t, live, 1)
	assert.EqualValues(t, 98, e.stockOf(t, p.ID))

	res, err = e.subscriptions.RunDue(ctx, date("2024-01-01"))
	require.NoError(t, err)
	assert.Zero(t, res.Retried)
	assert.Zero(t, res.Orders)
}

func TestRunDue_SkipsLockedSubscriptions(t *testing.T) {
	locker := &LockerMock{}
	locker.On("Lock", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, usecase.ErrLockNotAcquired)

	e := newEnv(t, withLocker(locker))
	p := e.seedProduct(t, "Glazed", "10.00", 100)
	sub := createSubscription(t, e, p.ID, "weekly", 1, "2024-01-01")

	res, err := e.subscriptions.RunDue(context.Background(), date("2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Locked)
	assert.Zero(t, res.Deliveries)
	locker.AssertCalled(t, "Lock", mock.Anything, "subscription:"+sub.ID, mock.Anything)
}

func TestRunDue_CatchUpIsBounded(t *testing.T) {
	e := newEnv(t)
	p := e.seedProduct(t, "Glazed", "1.00", 1000)
	createSubscription(t, e, p.ID, "weekly", 1, "2024-01-01")

	// 20週止まっていた
	res, err := e.subscriptions.RunDue(context.Background(), date("2024-05-20"))
	require.NoError(t, err)
	assert.Equal(t, 8, res.Deliveries)

	subs, err := e.subscriptions.List(context.Background(), customerID)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-26", subs[0].NextDeliveryDate)
}
