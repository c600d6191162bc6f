package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{"pending->paid", OrderStatusPending, OrderStatusPaid, true},
		{"pending->cancelled", OrderStatusPending, OrderStatusCancelled, true},
		{"pending->shipped", OrderStatusPending, OrderStatusShipped, false},
		{"paid->preparing", OrderStatusPaid, OrderStatusPreparing, true},
		{"paid->cancelled", OrderStatusPaid, OrderStatusCancelled, true},
		{"paid->pending", OrderStatusPaid, OrderStatusPending, false},
		{"preparing->shipped", OrderStatusPreparing, OrderStatusShipped, true},
		{"preparing->cancelled", OrderStatusPreparing, OrderStatusCancelled, false},
		{"shipped->delivered", OrderStatusShipped, OrderStatusDelivered, true},
		{"shipped->cancelled", OrderStatusShipped, OrderStatusCancelled, false},
		{"paid->paid", OrderStatusPaid, OrderStatusPaid, false},
		{"cancelled->paid", OrderStatusCancelled, OrderStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		})
	}
}

// delivered からはどこにも行けない
func TestDeliveredIsTerminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusShipped.IsTerminal())

	for st := range orderTransitions {
		assert.ErrorIs(t, ValidateTransition(OrderStatusDelivered, st), ErrInvalidTransition, st)
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := ParseOrderStatus("preparing")
	require.True(t, ok)
	assert.Equal(t, OrderStatusPreparing, st)

	_, ok = ParseOrderStatus("PAID")
	assert.False(t, ok)
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		subtotal string
		tax      string
		total    string
	}{
		{"100", "18", "118"},
		{"45.50", "8.19", "53.69"},
		{"0.05", "0.01", "0.06"},
		{"33.33", "6", "39.33"},
	}

	for _, tt := range tests {
		t.Run(tt.subtotal, func(t *testing.T) {
			sub := decimal.RequireFromString(tt.subtotal)
			tax, total := ComputeTotals(sub)
			assert.True(t, tax.Equal(decimal.RequireFromString(tt.tax)), "tax=%s", tax)
			assert.True(t, total.Equal(decimal.RequireFromString(tt.total)), "total=%s", total)
			assert.True(t, total.Equal(sub.Add(tax)))
		})
	}
}
