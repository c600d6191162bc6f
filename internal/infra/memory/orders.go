package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
)

type orderRepo struct{ s *state }

func (r orderRepo) Create(ctx context.Context, o model.Order) error {
	for _, e := range r.s.orders {
		if o.IdempotencyKey != nil && e.IdempotencyKey != nil && *e.IdempotencyKey == *o.IdempotencyKey {
			return repo.ErrDuplicate
		}
	}
	if _, ok := r.s.orders[o.ID]; ok {
		return repo.ErrDuplicate
	}
	if o.Version == 0 {
		o.Version = 1
	}
	r.s.orders[o.ID] = o
	return nil
}

func (r orderRepo) FindByID(ctx context.Context, orderID string) (model.Order, error) {
	o, ok := r.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

// ストア全体が直列なのでロックは不要
func (r orderRepo) FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error) {
	return r.FindByID(ctx, orderID)
}

func (r orderRepo) FindBySessionIDForUpdate(ctx context.Context, sessionID string) (model.Order, error) {
	for _, o := range r.s.orders {
		if o.PaymentSessionID != nil && *o.PaymentSessionID == sessionID {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r orderRepo) FindByIdempotencyKey(ctx context.Context, key string) (model.Order, bool, error) {
	for _, o := range r.s.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (r orderRepo) UpdateStatus(ctx context.Context, orderID string, expectedVersion int64, status model.OrderStatus) error {
	o, ok := r.s.orders[orderID]
	if !ok || o.Version != expectedVersion {
		return repo.ErrConflict
	}
	o.Status = status
	o.Version++
	r.s.orders[orderID] = o
	return nil
}

func (r orderRepo) AttachPaymentSession(ctx context.Context, orderID string, sessionID string, paymentURL string) error {
	o, ok := r.s.orders[orderID]
	if !ok || o.PaymentSessionID != nil {
		return repo.ErrConflict
	}
	for _, e := range r.s.orders {
		if e.PaymentSessionID != nil && *e.PaymentSessionID == sessionID {
			return repo.ErrDuplicate
		}
	}
	o.PaymentSessionID = lo.ToPtr(sessionID)
	o.PaymentURL = paymentURL
	r.s.orders[orderID] = o
	return nil
}

func (r orderRepo) CountPaidByCustomer(ctx context.Context, customerID string) (int64, error) {
	n := lo.CountBy(lo.Values(r.s.orders), func(o model.Order) bool {
		return o.CustomerID != nil && *o.CustomerID == customerID && o.Status.IsPaidOrLater()
	})
	return int64(n), nil
}

func (r orderRepo) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	matched := lo.Filter(lo.Values(r.s.orders), func(o model.Order, _ int) bool {
		switch {
		case f.Status != "" && string(o.Status) != f.Status:
			return false
		case f.CustomerID != nil && (o.CustomerID == nil || *o.CustomerID != *f.CustomerID):
			return false
		case f.From != nil && o.CreatedAt.Before(*f.From):
			return false
		case f.To != nil && o.CreatedAt.After(*f.To):
			return false
		}
		return true
	})
	// created_at desc
	slices.SortFunc(matched, func(a, b model.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := int64(len(matched))
	offset := (f.Page - 1) * f.Limit
	if offset >= len(matched) {
		return []model.Order{}, total, nil
	}
	end := min(offset+f.Limit, len(matched))
	return matched[offset:end], total, nil
}

type orderItemRepo struct{ s *state }

func (r orderItemRepo) CreateBulk(ctx context.Context, orderID string, items []model.OrderItem) error {
	stored := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		r.s.nextItemID++
		it.ID = r.s.nextItemID
		it.OrderID = orderID
		stored = append(stored, it)
	}
	r.s.orderItems[orderID] = append(slices.Clone(r.s.orderItems[orderID]), stored...)
	return nil
}

func (r orderItemRepo) ListByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	return slices.Clone(r.s.orderItems[orderID]), nil
}
