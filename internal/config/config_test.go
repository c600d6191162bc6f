package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "dev")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 3, cfg.LedgerMaxRetries)
	assert.Equal(t, 30, cfg.ReferralTTLDays)
	assert.EqualValues(t, 100, cfg.ReferralRewardPoints)
	assert.Equal(t, "TRY", cfg.Currency.String())
	assert.Equal(t, "0 0 * * * *", cfg.SchedulerSpec)
}

func TestLoad_RequiredKeys(t *testing.T) {
	t.Run("GO_ENV", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		t.Setenv("STORE_DRIVER", "memory")
		_, err := Load()
		assert.EqualError(t, err, "GO_ENV is required")
	})

	t.Run("POSTGRES_PORT", func(t *testing.T) {
		t.Setenv("GO_ENV", "dev")
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "")
		t.Setenv("POSTGRES_PORT", "")
		_, err := Load()
		assert.EqualError(t, err, "POSTGRES_PORT is required")
	})

	t.Run("DATABASE_URL skips POSTGRES_*", func(t *testing.T) {
		t.Setenv("GO_ENV", "dev")
		t.Setenv("STORE_DRIVER", "postgres")
		t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/app")
		t.Setenv("POSTGRES_PORT", "")
		_, err := Load()
		assert.NoError(t, err)
	})
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("GO_ENV", "dev")
	t.Setenv("STORE_DRIVER", "memory")

	t.Run("currency", func(t *testing.T) {
		t.Setenv("CURRENCY", "XXXX")
		_, err := Load()
		assert.ErrorContains(t, err, "CURRENCY")
	})

	t.Run("retries", func(t *testing.T) {
		t.Setenv("LEDGER_MAX_RETRIES", "abc")
		_, err := Load()
		assert.ErrorContains(t, err, "LEDGER_MAX_RETRIES must be number")
	})
}

func TestRequireAPI(t *testing.T) {
	base := Config{
		GoEnv:              "dev",
		JWTSecret:          "secret",
		CheckoutSuccessURL: "https://shop.example/success",
		CheckoutCancelURL:  "https://shop.example/cancel",
		PaymentDriver:      PaymentDriverStripe,
	}

	cfg := base
	assert.EqualError(t, cfg.RequireAPI(), "STRIPE_SECRET_KEY is required")

	cfg.StripeSecretKey = "sk_test"
	cfg.StripeWebhookSecret = "whsec"
	assert.NoError(t, cfg.RequireAPI())

	fake := base
	fake.PaymentDriver = PaymentDriverFake
	assert.NoError(t, fake.RequireAPI())
	fake.GoEnv = "prod"
	assert.Error(t, fake.RequireAPI())
}
