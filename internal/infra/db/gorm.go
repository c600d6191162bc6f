package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config, log *slog.Logger) (*gorm.DB, error) {
	gormLog := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("db.Connect: %w", err)
	}
	return db, nil
}

// DATABASE_URL があれば最優先で使う
func DSN(cfg config.Config) string {
	if cfg.DatabaseURL != "" {
		return cfg.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresSSLMode,
	)
}

// Migrate は全テーブルを作成・更新する
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Product{},
		&model.InventoryAdjustment{},
		&model.Order{},
		&model.OrderItem{},
		&model.LedgerAccount{},
		&model.LedgerTransaction{},
		&model.GiftCard{},
		&model.ReferralCode{},
		&model.Referral{},
		&model.Subscription{},
		&model.SubscriptionDelivery{},
		&model.AuditLog{},
	)
}
