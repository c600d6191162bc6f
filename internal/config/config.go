package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	PaymentDriverStripe = "stripe"
	PaymentDriverFake   = "fake"
)

// Configはアプリ全体の設定
type Config struct {
	Port     string // サーバーポート（8080）
	GoEnv    string // dev/prod
	LogLevel string // debug/info/warn/error

	StoreDriver string // postgres / memory

	DatabaseURL      string
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string

	JWTSecret string // IDプロバイダと共有する署名シークレット

	PaymentDriver       string
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            currency.Unit
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	FakePaymentSecret   string // PAYMENT_DRIVER=fake の署名鍵
	PublicBaseURL       string

	LedgerMaxRetries     int
	ReferralTTLDays      int
	ReferralRewardPoints int64

	RedisAddr     string // 空なら分散ロックなし
	SchedulerSpec string // cron（秒あり）
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port:     getenv("PORT", "8080"),
		GoEnv:    os.Getenv("GO_ENV"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		StoreDriver: getenv("STORE_DRIVER", StoreDriverPostgres),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		PaymentDriver:       getenv("PAYMENT_DRIVER", PaymentDriverStripe),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  os.Getenv("CHECKOUT_SUCCESS_URL"),
		CheckoutCancelURL:   os.Getenv("CHECKOUT_CANCEL_URL"),
		FakePaymentSecret:   getenv("FAKE_PAYMENT_SECRET", "dev_fake_secret"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		SchedulerSpec: getenv("SCHEDULER_SPEC", "0 0 * * * *"),
	}

	cfg.PublicBaseURL = getenv("PUBLIC_BASE_URL", "http://localhost:"+cfg.Port)

	var err error
	if cfg.LedgerMaxRetries, err = atoiDefault("LEDGER_MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if cfg.ReferralTTLDays, err = atoiDefault("REFERRAL_TTL_DAYS", 30); err != nil {
		return Config{}, err
	}
	points, err := atoiDefault("REFERRAL_REWARD_POINTS", 100)
	if err != nil {
		return Config{}, err
	}
	cfg.ReferralRewardPoints = int64(points)

	cur, err := currency.ParseISO(getenv("CURRENCY", "TRY"))
	if err != nil {
		return Config{}, fmt.Errorf("CURRENCY must be ISO 4217: %w", err)
	}
	cfg.Currency = cur

	//必須チェック
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	switch cfg.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			if cfg.PostgresPort, err = mustAtoi("POSTGRES_PORT"); err != nil {
				return Config{}, err
			}
			for key, v := range map[string]string{
				"POSTGRES_USER":     cfg.PostgresUser,
				"POSTGRES_PASSWORD": cfg.PostgresPassword,
				"POSTGRES_DB":       cfg.PostgresDB,
				"POSTGRES_HOST":     cfg.PostgresHost,
			} {
				if v == "" {
					return Config{}, fmt.Errorf("%s is required", key)
				}
			}
		}
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be %s or %s", StoreDriverPostgres, StoreDriverMemory)
	}
	if cfg.LedgerMaxRetries < 1 {
		return Config{}, fmt.Errorf("LEDGER_MAX_RETRIES must be >= 1")
	}

	return cfg, nil
}

// RequireAPI はHTTPサーバーにだけ必要な項目を確認する
func (c Config) RequireAPI() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.CheckoutSuccessURL == "" {
		return fmt.Errorf("CHECKOUT_SUCCESS_URL is required")
	}
	if c.CheckoutCancelURL == "" {
		return fmt.Errorf("CHECKOUT_CANCEL_URL is required")
	}
	switch c.PaymentDriver {
	case PaymentDriverFake:
		if c.IsProd() {
			return fmt.Errorf("PAYMENT_DRIVER=%s is not allowed in prod", PaymentDriverFake)
		}
	case PaymentDriverStripe:
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required")
		}
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
		}
	default:
		return fmt.Errorf("PAYMENT_DRIVER must be %s or %s", PaymentDriverStripe, PaymentDriverFake)
	}
	return nil
}

func (c Config) IsProd() bool {
	return strings.EqualFold(c.GoEnv, "prod")
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func atoiDefault(key string, def int) (int, error) {
	if os.Getenv(key) == "" {
		return def, nil
	}
	return mustAtoi(key)
}
