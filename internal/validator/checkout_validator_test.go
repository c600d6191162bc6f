package validator

import (
	"context"
	"strings"
	"testing"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() usecase.CheckoutInput {
	return usecase.CheckoutInput{
		Items: []usecase.CartLine{{ProductID: 1, Quantity: 2}},
		Customer: usecase.CustomerInfo{
			Name:  "Ayşe Yılmaz",
			Email: "ayse@example.com",
			Phone: "+90 555 123 45 67",
		},
	}
}

func TestValidateCheckout_OK(t *testing.T) {
	v := NewCheckoutValidator()
	require.NoError(t, v.ValidateCheckout(context.Background(), validInput()))
}

func TestValidateCheckout_InvalidCart(t *testing.T) {
	v := NewCheckoutValidator()

	cases := map[string]func(in *usecase.CheckoutInput){
		"empty":         func(in *usecase.CheckoutInput) { in.Items = nil },
		"zero quantity": func(in *usecase.CheckoutInput) { in.Items[0].Quantity = 0 },
		"negative qty":  func(in *usecase.CheckoutInput) { in.Items[0].Quantity = -1 },
		"too many":      func(in *usecase.CheckoutInput) { in.Items[0].Quantity = 100 },
		"bad product":   func(in *usecase.CheckoutInput) { in.Items[0].ProductID = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			err := v.ValidateCheckout(context.Background(), in)
			assert.ErrorIs(t, err, usecase.ErrInvalidCart)
		})
	}
}

func TestValidateCheckout_Contact(t *testing.T) {
	v := NewCheckoutValidator()

	cases := map[string]func(in *usecase.CheckoutInput){
		"no name":       func(in *usecase.CheckoutInput) { in.Customer.Name = "  " },
		"bad email":     func(in *usecase.CheckoutInput) { in.Customer.Email = "ayse@" },
		"display email": func(in *usecase.CheckoutInput) { in.Customer.Email = "Ayse <ayse@example.com>" },
		"no tld":        func(in *usecase.CheckoutInput) { in.Customer.Email = "ayse@localhost" },
		"bad phone":     func(in *usecase.CheckoutInput) { in.Customer.Phone = "call me" },
		"long key":      func(in *usecase.CheckoutInput) { in.IdempotencyKey = strings.Repeat("k", 256) },
		"amount w/o code": func(in *usecase.CheckoutInput) {
			in.GiftCardAmount = &decimal.Decimal{}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput()
			mutate(&in)
			err := v.ValidateCheckout(context.Background(), in)
			assert.ErrorIs(t, err, usecase.ErrValidation)
		})
	}
}

func TestValidateCheckout_GiftCardAmount(t *testing.T) {
	v := NewCheckoutValidator()

	in := validInput()
	in.GiftCardCode = "GC-1"
	amt := decimal.RequireFromString("10.005")
	in.GiftCardAmount = &amt
	assert.ErrorIs(t, v.ValidateCheckout(context.Background(), in), usecase.ErrValidation)

	amt = decimal.RequireFromString("10.50")
	in.GiftCardAmount = &amt
	assert.NoError(t, v.ValidateCheckout(context.Background(), in))
}
