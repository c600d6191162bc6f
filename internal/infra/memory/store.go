package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"
)

// Store はプロセス内の TransactionManager。
// WithinTx はストア全体を1つのロックで直列にし、fn が失敗したら変更を捨てる。
type Store struct {
	mu   sync.Mutex
	data *state
}

type state struct {
	products      map[int64]model.Product
	orders        map[string]model.Order
	orderItems    map[string][]model.OrderItem
	adjustments   []model.InventoryAdjustment
	accounts      map[string]model.LedgerAccount
	transactions  []model.LedgerTransaction
	giftCards     map[string]model.GiftCard
	referralCodes map[string]model.ReferralCode
	referrals     map[string]model.Referral
	subscriptions map[string]model.Subscription
	deliveries    map[string]model.SubscriptionDelivery
	auditLogs     []model.AuditLog

	nextProductID int64
	nextItemID    int64
	nextAdjID     int64
	nextAuditID   int64
}

func NewStore() *Store {
	return &Store{data: &state{
		products:      map[int64]model.Product{},
		orders:        map[string]model.Order{},
		orderItems:    map[string][]model.OrderItem{},
		accounts:      map[string]model.LedgerAccount{},
		giftCards:     map[string]model.GiftCard{},
		referralCodes: map[string]model.ReferralCode{},
		referrals:     map[string]model.Referral{},
		subscriptions: map[string]model.Subscription{},
		deliveries:    map[string]model.SubscriptionDelivery{},
	}}
}

// 値はコピーで持つので map と slice の複製で足りる
func (s *state) clone() *state {
	c := *s
	c.products = maps.Clone(s.products)
	c.orders = maps.Clone(s.orders)
	c.orderItems = maps.Clone(s.orderItems)
	c.adjustments = slices.Clone(s.adjustments)
	c.accounts = maps.Clone(s.accounts)
	c.transactions = slices.Clone(s.transactions)
	c.giftCards = maps.Clone(s.giftCards)
	c.referralCodes = maps.Clone(s.referralCodes)
	c.referrals = maps.Clone(s.referrals)
	c.subscriptions = maps.Clone(s.subscriptions)
	c.deliveries = maps.Clone(s.deliveries)
	c.auditLogs = slices.Clone(s.auditLogs)
	return &c
}

func (st *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	work := st.data.clone()
	if err := fn(&txRepos{s: work}); err != nil {
		return err
	}
	st.data = work
	return nil
}

// SeedProduct は商品を登録する（ローカル起動・テスト用）
func (st *Store) SeedProduct(p model.Product) model.Product {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.data.insertProduct(p)
}

type txRepos struct {
	s *state
}

func (r *txRepos) Orders() repo.OrderRepository               { return orderRepo{r.s} }
func (r *txRepos) OrderItems() repo.OrderItemRepository       { return orderItemRepo{r.s} }
func (r *txRepos) Products() repo.ProductRepository           { return productRepo{r.s} }
func (r *txRepos) Inventory() repo.InventoryRepository        { return inventoryRepo{r.s} }
func (r *txRepos) Ledger() repo.LedgerRepository              { return ledgerRepo{r.s} }
func (r *txRepos) GiftCards() repo.GiftCardRepository         { return giftCardRepo{r.s} }
func (r *txRepos) Referrals() repo.ReferralRepository         { return referralRepo{r.s} }
func (r *txRepos) Subscriptions() repo.SubscriptionRepository { return subscriptionRepo{r.s} }
func (r *txRepos) Deliveries() repo.DeliveryRepository        { return deliveryRepo{r.s} }
func (r *txRepos) AuditLogs() repo.AuditLogRepository         { return auditLogRepo{r.s} }
