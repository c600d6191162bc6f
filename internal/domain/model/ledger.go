package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerAccountKind string

const (
	LedgerAccountLoyalty  LedgerAccountKind = "loyalty"
	LedgerAccountGiftCard LedgerAccountKind = "gift_card"
)

// 残高口座。balance は取引の合計と常に一致する。
// ロイヤリティ口座のみ lifetime_earned と tier を持つ。
type LedgerAccount struct {
	ID             string            `gorm:"type:uuid;primaryKey" json:"id"`
	Kind           LedgerAccountKind `gorm:"type:varchar(20);not null;uniqueIndex:idx_ledger_owner_kind" json:"kind"`
	CustomerID     *string           `gorm:"type:varchar(255);uniqueIndex:idx_ledger_owner_kind" json:"customer_id,omitempty"`
	Balance        decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0" json:"balance"`
	LifetimeEarned decimal.Decimal   `gorm:"type:numeric(14,2);not null;default:0" json:"lifetime_earned"`
	Tier           Tier              `gorm:"type:varchar(20);not null;default:bronze" json:"tier"`
	Version        int64             `gorm:"not null;default:1" json:"version"`
	CreatedAt      time.Time         `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

type TxKind string

const (
	TxKindEarned     TxKind = "earned"
	TxKindRedeemed   TxKind = "redeemed"
	TxKindExpired    TxKind = "expired"
	TxKindBonus      TxKind = "bonus"
	TxKindReferral   TxKind = "referral"
	TxKindPurchase   TxKind = "purchase"
	TxKindRefund     TxKind = "refund"
	TxKindRedemption TxKind = "redemption"
	TxKindIssued     TxKind = "issued"
)

var ErrInvalidDelta = errors.New("invalid delta")

// 取引種別ごとの符号
const (
	signPositive = 1
	signNegative = -1
	signAny      = 0
)

var txKindSigns = map[TxKind]int{
	TxKindEarned:     signPositive,
	TxKindReferral:   signPositive,
	TxKindRefund:     signPositive,
	TxKindIssued:     signPositive,
	TxKindRedeemed:   signNegative,
	TxKindPurchase:   signNegative,
	TxKindRedemption: signNegative,
	TxKindExpired:    signNegative,
	TxKindBonus:      signAny,
}

func (k TxKind) Valid() bool {
	_, ok := txKindSigns[k]
	return ok
}

func (k TxKind) IsDebit() bool {
	return txKindSigns[k] == signNegative
}

// 累計獲得ポイントに数える種別
func (k TxKind) CountsTowardLifetime() bool {
	switch k {
	case TxKindEarned, TxKindReferral, TxKindBonus:
		return true
	}
	return false
}

// CheckDelta は 0 でないことと種別の符号を確認する。
func (k TxKind) CheckDelta(delta decimal.Decimal) error {
	sign, ok := txKindSigns[k]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDelta, k)
	}
	if delta.IsZero() {
		return fmt.Errorf("%w: zero delta", ErrInvalidDelta)
	}
	if sign == signPositive && delta.IsNegative() {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidDelta, k)
	}
	if sign == signNegative && delta.IsPositive() {
		return fmt.Errorf("%w: %s must be negative", ErrInvalidDelta, k)
	}
	return nil
}

// 追記のみの取引。更新・削除しない。
type LedgerTransaction struct {
	ID             string          `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID      string          `gorm:"type:uuid;not null;index:idx_ledger_tx_account_created" json:"account_id"`
	Delta          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"delta"`
	Kind           TxKind          `gorm:"type:varchar(20);not null" json:"kind"`
	OrderID        *string         `gorm:"type:uuid;index" json:"order_id,omitempty"`
	IdempotencyKey *string         `gorm:"type:varchar(255);uniqueIndex" json:"idempotency_key,omitempty"`
	BalanceAfter   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"balance_after"`
	Note           string          `gorm:"type:varchar(255)" json:"note,omitempty"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_ledger_tx_account_created" json:"created_at"`
}

// 取引を時系列で足し直した残高
func ReplayBalance(txs []LedgerTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(t.Delta)
	}
	return sum
}
