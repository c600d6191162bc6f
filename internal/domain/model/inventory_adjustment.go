package model

import "time"

//在庫調整の履歴（予約・戻し・管理者編集）

type InventoryAdjustment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64     `gorm:"not null;index" json:"product_id"`
	ActorID   *string   `gorm:"type:varchar(255);index" json:"actor_id,omitempty"`
	OrderID   *string   `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Delta     int64     `gorm:"not null" json:"delta"`
	Reason    string    `gorm:"type:varchar(255);not null" json:"reason"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

const (
	InventoryReasonReserve = "checkout reserve"
	InventoryReasonRelease = "order released"
)
