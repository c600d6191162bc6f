package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ギフトカード。現在残高は AccountID の口座が持つ。
type GiftCard struct {
	ID             string          `gorm:"type:uuid;primaryKey" json:"id"`
	Code           string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	AccountID      string          `gorm:"type:uuid;not null;uniqueIndex" json:"account_id"`
	InitialBalance decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"initial_balance"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	IsActive       bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (g GiftCard) Usable(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.ExpiresAt == nil || now.Before(*g.ExpiresAt)
}
