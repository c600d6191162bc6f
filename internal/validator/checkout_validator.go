package validator

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"
)

const (
	maxLines       = 50
	maxQuantity    = 99
	maxKeyLength   = 255
	maxFieldLength = 255
)

var phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{7,20}$`)

type checkoutValidator struct{}

// Usecaseは interface を依存注入
func NewCheckoutValidator() usecase.CheckoutValidator {
	return &checkoutValidator{}
}

// チェックアウトの入力を検証
func (v *checkoutValidator) ValidateCheckout(ctx context.Context, in usecase.CheckoutInput) error {
	// カート
	if len(in.Items) == 0 {
		return usecase.NewError(usecase.ErrInvalidCart, "cart is empty")
	}
	if len(in.Items) > maxLines {
		return usecase.NewError(usecase.ErrInvalidCart, fmt.Sprintf("cart has more than %d lines", maxLines))
	}
	for i, it := range in.Items {
		if it.ProductID <= 0 {
			return usecase.NewError(usecase.ErrInvalidCart, fmt.Sprintf("items[%d]: invalid product_id", i))
		}
		if it.Quantity <= 0 {
			return usecase.NewError(usecase.ErrInvalidCart, fmt.Sprintf("items[%d]: quantity must be positive", i))
		}
		if it.Quantity > maxQuantity {
			return usecase.NewError(usecase.ErrInvalidCart, fmt.Sprintf("items[%d]: quantity must be <= %d", i, maxQuantity))
		}
	}

	// 連絡先
	name := strings.TrimSpace(in.Customer.Name)
	if name == "" || len(name) > maxFieldLength {
		return usecase.NewError(usecase.ErrValidation, "invalid name")
	}
	if !isEmailLike(in.Customer.Email) {
		return usecase.NewError(usecase.ErrValidation, "invalid email")
	}
	if p := strings.TrimSpace(in.Customer.Phone); p != "" && !phonePattern.MatchString(p) {
		return usecase.NewError(usecase.ErrValidation, "invalid phone")
	}

	if len(in.IdempotencyKey) > maxKeyLength {
		return usecase.NewError(usecase.ErrValidation, "invalid idempotency key")
	}
	if in.GiftCardAmount != nil {
		if in.GiftCardCode == "" {
			return usecase.NewError(usecase.ErrValidation, "gift_card_code is required with gift_card_amount")
		}
		if !in.GiftCardAmount.IsPositive() || in.GiftCardAmount.Exponent() < -2 {
			return usecase.NewError(usecase.ErrValidation, "invalid gift_card_amount")
		}
	}
	return nil
}

// 簡易メール形式をチェック
func isEmailLike(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxFieldLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return strings.Contains(s[at+1:], ".")
}
