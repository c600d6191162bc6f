package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
)

type subscriptionRepo struct{ s *state }

func (r subscriptionRepo) Create(ctx context.Context, sub model.Subscription) error {
	if _, ok := r.s.subscriptions[sub.ID]; ok {
		return repo.ErrDuplicate
	}
	sub.NextDeliveryDate = model.DateOf(sub.NextDeliveryDate)
	if sub.Version == 0 {
		sub.Version = 1
	}
	r.s.subscriptions[sub.ID] = sub
	return nil
}

func (r subscriptionRepo) FindByID(ctx context.Context, id string) (model.Subscription, error) {
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return model.Subscription{}, repo.ErrNotFound
	}
	return sub, nil
}

func (r subscriptionRepo) FindByIDForUpdate(ctx context.Context, id string) (model.Subscription, error) {
	return r.FindByID(ctx, id)
}

func (r subscriptionRepo) ListByCustomer(ctx context.Context, customerID string) ([]model.Subscription, error) {
	subs := lo.Filter(lo.Values(r.s.subscriptions), func(sub model.Subscription, _ int) bool {
		return sub.CustomerID == customerID
	})
	slices.SortFunc(subs, func(a, b model.Subscription) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return subs, nil
}

func (r subscriptionRepo) ListDue(ctx context.Context, asOf time.Time, limit int) ([]model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	asOf = model.DateOf(asOf)
	subs := lo.Filter(lo.Values(r.s.subscriptions), func(sub model.Subscription, _ int) bool {
		return sub.Status == model.SubscriptionStatusActive && !sub.NextDeliveryDate.After(asOf)
	})
	slices.SortFunc(subs, func(a, b model.Subscription) int {
		if c := a.NextDeliveryDate.Compare(b.NextDeliveryDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

func (r subscriptionRepo) Update(ctx context.Context, sub model.Subscription, expectedVersion int64) error {
	cur, ok := r.s.subscriptions[sub.ID]
	if !ok || cur.Version != expectedVersion {
		return repo.ErrConflict
	}
	cur.Status = sub.Status
	cur.NextDeliveryDate = model.DateOf(sub.NextDeliveryDate)
	cur.Quantity = sub.Quantity
	cur.Version = expectedVersion + 1
	r.s.subscriptions[sub.ID] = cur
	return nil
}

type deliveryRepo struct{ s *state }

func (r deliveryRepo) Create(ctx context.Context, d model.SubscriptionDelivery) error {
	d.ScheduledDate = model.DateOf(d.ScheduledDate)
	for _, e := range r.s.deliveries {
		if e.ID == d.ID || (e.SubscriptionID == d.SubscriptionID && e.ScheduledDate.Equal(d.ScheduledDate)) {
			return repo.ErrDuplicate
		}
	}
	r.s.deliveries[d.ID] = d
	return nil
}

func (r deliveryRepo) FindByID(ctx context.Context, id string) (model.SubscriptionDelivery, error) {
	d, ok := r.s.deliveries[id]
	if !ok {
		return model.SubscriptionDelivery{}, repo.ErrNotFound
	}
	return d, nil
}

func (r deliveryRepo) FindBySubscriptionAndDate(ctx context.Context, subscriptionID string, date time.Time) (model.SubscriptionDelivery, error) {
	date = model.DateOf(date)
	d, ok := lo.Find(lo.Values(r.s.deliveries), func(d model.SubscriptionDelivery) bool {
		return d.SubscriptionID == subscriptionID && d.ScheduledDate.Equal(date)
	})
	if !ok {
		return model.SubscriptionDelivery{}, repo.ErrNotFound
	}
	return d, nil
}

func (r deliveryRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]model.SubscriptionDelivery, error) {
	ds := lo.Filter(lo.Values(r.s.deliveries), func(d model.SubscriptionDelivery, _ int) bool {
		return d.SubscriptionID == subscriptionID
	})
	slices.SortFunc(ds, func(a, b model.SubscriptionDelivery) int {
		return a.ScheduledDate.Compare(b.ScheduledDate)
	})
	return ds, nil
}

func (r deliveryRepo) UpdateStatus(ctx context.Context, id string, status model.DeliveryStatus) error {
	d, ok := r.s.deliveries[id]
	if !ok {
		return repo.ErrNotFound
	}
	d.Status = status
	r.s.deliveries[id] = d
	return nil
}

func (r deliveryRepo) AttachOrder(ctx context.Context, id string, orderID string) error {
	d, ok := r.s.deliveries[id]
	if !ok {
		return repo.ErrNotFound
	}
	d.OrderID = lo.ToPtr(orderID)
	r.s.deliveries[id] = d
	return nil
}

func (r deliveryRepo) ListUnordered(ctx context.Context, asOf time.Time, limit int) ([]model.SubscriptionDelivery, error) {
	if limit <= 0 {
		limit = 100
	}
	asOf = model.DateOf(asOf)
	ds := lo.Filter(lo.Values(r.s.deliveries), func(d model.SubscriptionDelivery, _ int) bool {
		return d.Status == model.DeliveryStatusScheduled && d.OrderID == nil && !d.ScheduledDate.After(asOf)
	})
	slices.SortFunc(ds, func(a, b model.SubscriptionDelivery) int {
		if c := a.ScheduledDate.Compare(b.ScheduledDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(ds) > limit {
		ds = ds[:limit]
	}
	return ds, nil
}
