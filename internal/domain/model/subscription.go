package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Plan string

const (
	PlanWeekly   Plan = "weekly"
	PlanBiweekly Plan = "biweekly"
	PlanMonthly  Plan = "monthly"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanWeekly, PlanBiweekly, PlanMonthly:
		return true
	}
	return false
}

// 月あたりの配送回数
func (p Plan) DeliveriesPerMonth() int64 {
	switch p {
	case PlanWeekly:
		return 4
	case PlanBiweekly:
		return 2
	default:
		return 1
	}
}

// Next は次回配送日。monthly は翌月の同日（月末を超える場合は月末）。
func (p Plan) Next(d time.Time) time.Time {
	d = DateOf(d)
	switch p {
	case PlanWeekly:
		return d.AddDate(0, 0, 7)
	case PlanBiweekly:
		return d.AddDate(0, 0, 14)
	default:
		y, m, day := d.Date()
		last := time.Date(y, m+2, 0, 0, 0, 0, 0, time.UTC).Day()
		if day > last {
			day = last
		}
		return time.Date(y, m+1, day, 0, 0, 0, 0, time.UTC)
	}
}

// 日付だけにする（UTC 0時）
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID               string             `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID       string             `gorm:"type:varchar(255);not null;index" json:"customer_id"`
	CustomerName     string             `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail    string             `gorm:"type:varchar(255);not null" json:"customer_email"`
	ProductID        int64              `gorm:"not null;index" json:"product_id"`
	Plan             Plan               `gorm:"type:varchar(20);not null" json:"plan"`
	Quantity         int64              `gorm:"not null" json:"quantity"`
	PricePerDelivery decimal.Decimal    `gorm:"type:numeric(12,2);not null" json:"price_per_delivery"`
	Status           SubscriptionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	NextDeliveryDate time.Time          `gorm:"type:date;not null;index" json:"next_delivery_date"`
	Version          int64              `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time          `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 次回配送日の次
func (s Subscription) Advance() time.Time {
	return s.Plan.Next(s.NextDeliveryDate)
}

func (s Subscription) MonthlyPrice() decimal.Decimal {
	return s.PricePerDelivery.Mul(decimal.NewFromInt(s.Plan.DeliveriesPerMonth()))
}

type DeliveryStatus string

const (
	DeliveryStatusScheduled DeliveryStatus = "scheduled"
	DeliveryStatusPreparing DeliveryStatus = "preparing"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusSkipped   DeliveryStatus = "skipped"
)

// (subscription_id, scheduled_date) は一意
type SubscriptionDelivery struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	SubscriptionID string         `gorm:"type:uuid;not null;uniqueIndex:idx_delivery_sub_date" json:"subscription_id"`
	ScheduledDate  time.Time      `gorm:"type:date;not null;uniqueIndex:idx_delivery_sub_date" json:"scheduled_date"`
	Status         DeliveryStatus `gorm:"type:varchar(20);not null" json:"status"`
	OrderID        *string        `gorm:"type:uuid" json:"order_id,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 注文の進行を配送に反映する
func DeliveryStatusFor(o OrderStatus) (DeliveryStatus, bool) {
	switch o {
	case OrderStatusPreparing, OrderStatusShipped:
		return DeliveryStatusPreparing, true
	case OrderStatusDelivered:
		return DeliveryStatusDelivered, true
	}
	return "", false
}
