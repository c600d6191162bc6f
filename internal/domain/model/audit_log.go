package model

import "time"

// 管理者の操作種別
type AuditAction string

const (
	//在庫を更新した操作。
	AuditActionUpdateStock AuditAction = "UPDATE_STOCK"
	//注文ステータスを更新した操作。
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	//ポイント・ギフトカード残高の手動調整。
	AuditActionAdjustLedger AuditAction = "ADJUST_LEDGER"
	//ギフトカード発行。
	AuditActionIssueGiftCard AuditAction = "ISSUE_GIFT_CARD"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourceProduct       AuditResourceType = "product"
	AuditResourceOrder         AuditResourceType = "order"
	AuditResourceLedgerAccount AuditResourceType = "ledger_account"
	AuditResourceGiftCard      AuditResourceType = "gift_card"
)

// 監査ログ（管理者操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作した管理者（IDプロバイダの sub）
	ActorID string `gorm:"type:varchar(255);not null;index" json:"actor_id"`

	Action       AuditAction       `gorm:"type:varchar(50);not null;index" json:"action"`
	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`
	ResourceID   string            `gorm:"type:varchar(255);not null;index" json:"resource_id"`

	//JSON文字列で保存する。
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
