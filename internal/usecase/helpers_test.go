package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/lock"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/logging"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/memory"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/payment"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/validator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// Clock / Gateway / Locker mocks
// =====================

// 進められる時計
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type GatewayMock struct{ mock.Mock }

func (m *GatewayMock) CreateSession(ctx context.Context, in usecase.PaymentSessionInput) (usecase.PaymentSession, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(usecase.PaymentSession)
	return s, args.Error(1)
}

type LockerMock struct{ mock.Mock }

func (m *LockerMock) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(func(context.Context) error)
	return unlock, args.Error(1)
}

// =====================
// Fixture
// =====================

const (
	adminID    = "admin-1"
	customerID = "cust-1"
	webhookKey = "whsec_test"
)

var day0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	store   *memory.Store
	clock   *testClock
	gateway *payment.FakeGateway

	ledger        *usecase.LedgerUsecase
	rewards       *usecase.RewardsUsecase
	reconcile     *usecase.ReconcileUsecase
	checkout      *usecase.CheckoutUsecase
	orders        *usecase.OrderUsecase
	adminOrders   *usecase.AdminOrderUsecase
	inventory     *usecase.InventoryUsecase
	subscriptions *usecase.SubscriptionUsecase
}

type envOption func(*envConfig)

type envConfig struct {
	gateway usecase.PaymentGateway
	locker  usecase.Locker
}

func withGateway(g usecase.PaymentGateway) envOption {
	return func(c *envConfig) { c.gateway = g }
}

func withLocker(l usecase.Locker) envOption {
	return func(c *envConfig) { c.locker = l }
}

// メモリストアの上に usecase を全部組み立てる
func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	e := &env{
		store:   memory.NewStore(),
		clock:   newTestClock(day0),
		gateway: payment.NewFakeGateway(webhookKey, "http://pay.test"),
	}
	cfg := envConfig{gateway: e.gateway, locker: lock.NewLocalLocker()}
	for _, o := range opts {
		o(&cfg)
	}

	log := logging.Discard()
	ids := usecase.UUIDGenerator{}
	e.ledger = usecase.NewLedgerUsecase(e.store, ids, e.clock, 3, log)
	e.rewards = usecase.NewRewardsUsecase(e.store, e.ledger, ids, e.clock, log, 30*24*time.Hour, 100)
	e.reconcile = usecase.NewReconcileUsecase(e.store, e.rewards, e.clock, log, 3)
	e.checkout = usecase.NewCheckoutUsecase(
		e.store, e.rewards, e.reconcile, cfg.gateway, validator.NewCheckoutValidator(),
		ids, e.clock, log, "http://shop.test/success", "http://shop.test/cancel",
	)
	e.orders = usecase.NewOrderUsecase(e.store)
	e.adminOrders = usecase.NewAdminOrderUsecase(e.store, e.reconcile, e.clock, log, 3)
	e.inventory = usecase.NewInventoryUsecase(e.store, e.clock, log)
	e.subscriptions = usecase.NewSubscriptionUsecase(e.store, e.checkout, cfg.locker, ids, e.clock, log, 3)
	return e
}

func (e *env) seedProduct(t *testing.T, name string, price string, stock int64) model.Product {
	t.Helper()
	return e.store.SeedProduct(model.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	})
}

func (e *env) stockOf(t *testing.T, productID int64) int64 {
	t.Helper()
	p, err := e.inventory.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

func (e *env) issueCard(t *testing.T, code string, amount string) usecase.GiftCardOutput {
	t.Helper()
	out, err := e.rewards.IssueGiftCard(context.Background(), adminID, usecase.IssueGiftCardInput{
		Code:   code,
		Amount: decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return out
}

func (e *env) cardBalance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	out, err := e.rewards.GiftCardBalance(context.Background(), code)
	require.NoError(t, err)
	return out.Balance
}

func (e *env) order(t *testing.T, orderID string) usecase.OrderOutput {
	t.Helper()
	out, err := e.adminOrders.List(context.Background(), repoFilterAll())
	require.NoError(t, err)
	for _, o := range out.Items {
		if o.ID == orderID {
			return o
		}
	}
	t.Fatalf("order %s not found", orderID)
	return usecase.OrderOutput{}
}

func checkoutInput(productID, qty int64, customer *string) usecase.CheckoutInput {
	return usecase.CheckoutInput{
		Items: []usecase.CartLine{{ProductID: productID, Quantity: qty}},
		Customer: usecase.CustomerInfo{
			CustomerID: customer,
			Name:       "Ayse Yilmaz",
			Email:      "ayse@example.com",
		},
	}
}

func paid(sessionOrderID string) usecase.PaymentEvent {
	return usecase.PaymentEvent{ID: "evt_" + sessionOrderID, Type: usecase.PaymentSucceeded, SessionID: "fake_cs_" + sessionOrderID}
}

func failed(sessionOrderID string) usecase.PaymentEvent {
	return usecase.PaymentEvent{ID: "evt_f_" + sessionOrderID, Type: usecase.PaymentFailed, SessionID: "fake_cs_" + sessionOrderID}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func repoFilterAll() repo.AdminOrderListFilter {
	return repo.AdminOrderListFilter{Page: 1, Limit: 100}
}
