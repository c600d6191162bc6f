package repository

import (
	"context"

	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders        repo.OrderRepository
	orderItems    repo.OrderItemRepository
	products      repo.ProductRepository
	inventory     repo.InventoryRepository
	ledger        repo.LedgerRepository
	giftCards     repo.GiftCardRepository
	referrals     repo.ReferralRepository
	subscriptions repo.SubscriptionRepository
	deliveries    repo.DeliveryRepository
	auditLogs     repo.AuditLogRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository               { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository       { return r.orderItems }
func (r *txReposGorm) Products() repo.ProductRepository           { return r.products }
func (r *txReposGorm) Inventory() repo.InventoryRepository        { return r.inventory }
func (r *txReposGorm) Ledger() repo.LedgerRepository              { return r.ledger }
func (r *txReposGorm) GiftCards() repo.GiftCardRepository         { return r.giftCards }
func (r *txReposGorm) Referrals() repo.ReferralRepository         { return r.referrals }
func (r *txReposGorm) Subscriptions() repo.SubscriptionRepository { return r.subscriptions }
func (r *txReposGorm) Deliveries() repo.DeliveryRepository        { return r.deliveries }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

func newTxRepos(db *gorm.DB) *txReposGorm {
	return &txReposGorm{
		orders:        NewOrderGormRepository(db),
		orderItems:    NewOrderItemGormRepository(db),
		products:      NewProductGormRepository(db),
		inventory:     NewInventoryGormRepository(db),
		ledger:        NewLedgerGormRepository(db),
		giftCards:     NewGiftCardGormRepository(db),
		referrals:     NewReferralGormRepository(db),
		subscriptions: NewSubscriptionGormRepository(db),
		deliveries:    NewDeliveryGormRepository(db),
		auditLogs:     NewAuditLogGormRepository(db),
	}
}

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		return fn(newTxRepos(tx))
	})
	// commit 時のシリアライズ失敗も ErrConflict にする
	return mapError(err)
}
