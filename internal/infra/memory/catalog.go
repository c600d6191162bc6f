package memory

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
)

func (s *state) insertProduct(p model.Product) model.Product {
	s.nextProductID++
	p.ID = s.nextProductID
	if p.Version == 0 {
		p.Version = 1
	}
	s.products[p.ID] = p
	return p
}

type productRepo struct{ s *state }

func (r productRepo) FindByID(ctx context.Context, id int64) (model.Product, error) {
	p, ok := r.s.products[id]
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r productRepo) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	out := make([]model.Product, 0, len(ids))
	for _, id := range lo.Uniq(ids) {
		if p, ok := r.s.products[id]; ok && !p.DeletedAt.Valid {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r productRepo) Create(ctx context.Context, p model.Product) (model.Product, error) {
	return r.s.insertProduct(p), nil
}

type inventoryRepo struct{ s *state }

func (r inventoryRepo) SetStock(ctx context.Context, productID int64, newStock int64, expectedVersion int64) error {
	p, ok := r.s.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	if p.Version != expectedVersion {
		return repo.ErrConflict
	}
	p.Stock = newStock
	p.Version++
	r.s.products[productID] = p
	return nil
}

func (r inventoryRepo) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	p, ok := r.s.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	r.s.products[productID] = p
	return true, nil
}

func (r inventoryRepo) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	p, ok := r.s.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock += qty
	r.s.products[productID] = p
	return nil
}

func (r inventoryRepo) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	r.s.nextAdjID++
	adj.ID = r.s.nextAdjID
	r.s.adjustments = append(r.s.adjustments, adj)
	return nil
}

func (r inventoryRepo) ListAdjustments(ctx context.Context, productID int64) ([]model.InventoryAdjustment, error) {
	return lo.Filter(r.s.adjustments, func(a model.InventoryAdjustment, _ int) bool {
		return a.ProductID == productID
	}), nil
}
