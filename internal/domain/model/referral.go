package model

import "time"

type ReferralCode struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Code         string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"code"`
	ReferrerID   string    `gorm:"type:varchar(255);not null;index" json:"referrer_id"`
	RewardPoints int64     `gorm:"not null" json:"reward_points"`
	UsesCount    int64     `gorm:"not null;default:0" json:"uses_count"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

type ReferralStatus string

const (
	ReferralStatusPending   ReferralStatus = "pending"
	ReferralStatusCompleted ReferralStatus = "completed"
	ReferralStatusExpired   ReferralStatus = "expired"
)

// 紹介。被紹介者は一度しか紹介されない。
// RewardGiven は false -> true の一度きり。
type Referral struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	CodeID     string         `gorm:"type:uuid;not null;index" json:"code_id"`
	ReferrerID string         `gorm:"type:varchar(255);not null;index" json:"referrer_id"`
	ReferredID string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"referred_id"`
	Status     ReferralStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	// 登録時点のコードの報酬ポイント
	RewardPoints int64      `gorm:"not null" json:"reward_points"`
	RewardGiven  bool       `gorm:"not null;default:false" json:"reward_given"`
	OrderID      *string    `gorm:"type:uuid" json:"order_id,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
