package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// 不正なステータス遷移
var ErrInvalidTransition = errors.New("invalid transition")

// 許可される遷移（一方向のみ）
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusShipped},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// 税率 18%
var TaxRate = decimal.RequireFromString("0.18")

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	_, ok := orderTransitions[st]
	return st, ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// 終端（delivered / cancelled）
func (s OrderStatus) IsTerminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// paid 以降（cancelled は含まない）
func (s OrderStatus) IsPaidOrLater() bool {
	switch s {
	case OrderStatusPaid, OrderStatusPreparing, OrderStatusShipped, OrderStatusDelivered:
		return true
	}
	return false
}

// ValidateTransition は from -> to が許可されていなければ ErrInvalidTransition を返す。
func ValidateTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// 注文。削除はしない（監査のため）。
type Order struct {
	ID         string  `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID *string `gorm:"type:varchar(255);index" json:"customer_id"`

	CustomerName  string `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail string `gorm:"type:varchar(255);not null" json:"customer_email"`
	CustomerPhone string `gorm:"type:varchar(50)" json:"customer_phone"`

	Subtotal decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Tax      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax"`
	Total    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`

	// ギフトカードで差し引いた額と、決済で実際に請求する額
	GiftCardID     *string         `gorm:"type:uuid" json:"gift_card_id,omitempty"`
	GiftCardAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"gift_card_amount"`
	AmountDue      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount_due"`

	Status           OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentSessionID *string     `gorm:"type:varchar(255);uniqueIndex" json:"payment_session_id,omitempty"`
	PaymentURL       string      `gorm:"type:text" json:"payment_url,omitempty"`

	IdempotencyKey         *string `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	SubscriptionDeliveryID *string `gorm:"type:uuid;index" json:"subscription_delivery_id,omitempty"`

	Version   int64     `gorm:"not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 小計から税・合計を出す。total = round(subtotal * 1.18, 2)
func ComputeTotals(subtotal decimal.Decimal) (tax decimal.Decimal, total decimal.Decimal) {
	total = subtotal.Mul(decimal.NewFromInt(1).Add(TaxRate)).Round(2)
	return total.Sub(subtotal), total
}
