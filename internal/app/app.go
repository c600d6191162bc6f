package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/handler"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/db"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/lock"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/memory"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/payment"
	infraRepo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/repository"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/validator"
)

// App はプロセスが使う部品一式（api と scheduler で共有）
type App struct {
	Config config.Config
	Log    *slog.Logger

	Tx      repo.TransactionManager
	Gateway usecase.PaymentGateway
	Parser  handler.PaymentEventParser
	// Parser が読む署名ヘッダー
	SignatureHeader string
	Locker          usecase.Locker

	Ledger        *usecase.LedgerUsecase
	Rewards       *usecase.RewardsUsecase
	Reconcile     *usecase.ReconcileUsecase
	Checkout      *usecase.CheckoutUsecase
	Orders        *usecase.OrderUsecase
	AdminOrders   *usecase.AdminOrderUsecase
	Inventory     *usecase.InventoryUsecase
	Subscriptions *usecase.SubscriptionUsecase

	closers []func() error
}

// Option はテストで部品を差し替えるため
type Option func(*App)

func WithStore(tx repo.TransactionManager) Option {
	return func(a *App) { a.Tx = tx }
}

func WithLocker(l usecase.Locker) Option {
	return func(a *App) { a.Locker = l }
}

// New は設定に従って永続化・決済・ロックを選び、usecase を組み立てる。
func New(cfg config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Log: log}
	for _, opt := range opts {
		opt(a)
	}

	if a.Tx == nil {
		tx, err := a.openStore()
		if err != nil {
			return nil, err
		}
		a.Tx = tx
	}

	switch cfg.PaymentDriver {
	case config.PaymentDriverFake:
		g := payment.NewFakeGateway(cfg.FakePaymentSecret, cfg.PublicBaseURL)
		a.Gateway, a.Parser, a.SignatureHeader = g, g, payment.FakeSignatureHeader
	default:
		g := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Currency)
		a.Gateway, a.Parser, a.SignatureHeader = g, g, payment.StripeSignatureHeader
	}

	if a.Locker == nil {
		if cfg.RedisAddr != "" {
			rdb := lock.NewRedis(cfg.RedisAddr)
			if err := rdb.Ping(context.Background()).Err(); err != nil {
				_ = rdb.Close()
				return nil, fmt.Errorf("redis ping: %w", err)
			}
			a.closers = append(a.closers, rdb.Close)
			a.Locker = lock.NewRedsyncLocker(rdb, "donut:")
		} else {
			log.Warn("REDIS_ADDR is empty, using in-process lock")
			a.Locker = lock.NewLocalLocker()
		}
	}

	a.wire()
	return a, nil
}

func (a *App) openStore() (repo.TransactionManager, error) {
	if a.Config.StoreDriver == config.StoreDriverMemory {
		a.Log.Warn("STORE_DRIVER=memory, data is not persisted")
		return memory.NewStore(), nil
	}

	gormDB, err := db.Connect(a.Config, a.Log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return nil, fmt.Errorf("db.Migrate: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	a.closers = append(a.closers, sqlDB.Close)
	return infraRepo.NewTxManagerGorm(gormDB), nil
}

func (a *App) wire() {
	cfg := a.Config
	idGen := usecase.UUIDGenerator{}
	clock := usecase.SystemClock{}
	referralTTL := time.Duration(cfg.ReferralTTLDays) * 24 * time.Hour

	a.Ledger = usecase.NewLedgerUsecase(a.Tx, idGen, clock, cfg.LedgerMaxRetries, a.Log)
	a.Rewards = usecase.NewRewardsUsecase(a.Tx, a.Ledger, idGen, clock, a.Log, referralTTL, cfg.ReferralRewardPoints)
	a.Reconcile = usecase.NewReconcileUsecase(a.Tx, a.Rewards, clock, a.Log, cfg.LedgerMaxRetries)
	a.Checkout = usecase.NewCheckoutUsecase(
		a.Tx, a.Rewards, a.Reconcile, a.Gateway, validator.NewCheckoutValidator(),
		idGen, clock, a.Log, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL,
	)
	a.Orders = usecase.NewOrderUsecase(a.Tx)
	a.AdminOrders = usecase.NewAdminOrderUsecase(a.Tx, a.Reconcile, clock, a.Log, cfg.LedgerMaxRetries)
	a.Inventory = usecase.NewInventoryUsecase(a.Tx, clock, a.Log)
	a.Subscriptions = usecase.NewSubscriptionUsecase(a.Tx, a.Checkout, a.Locker, idGen, clock, a.Log, cfg.LedgerMaxRetries)
}

// Close は開いた接続を閉じる
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
