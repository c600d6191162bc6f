package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/shopspring/decimal"
)

// 商品と在庫の管理
type InventoryUsecase struct {
	tx    repo.TransactionManager
	clock Clock
	log   *slog.Logger
}

func NewInventoryUsecase(tx repo.TransactionManager, clock Clock, log *slog.Logger) *InventoryUsecase {
	return &InventoryUsecase{tx: tx, clock: clock, log: log}
}

func (u *InventoryUsecase) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, newError(ErrValidation, "invalid product id")
	}
	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return dbError(err)
		}
		if !p.IsActive {
			return newError(ErrNotFound, "not found")
		}
		out = p
		return nil
	})
	return out, err
}

type AdminCreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	IsActive    bool
}

func (u *InventoryUsecase) AdminCreateProduct(ctx context.Context, actorID string, in AdminCreateProductInput) (model.Product, error) {
	if actorID == "" {
		return model.Product{}, newError(ErrUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.Product{}, newError(ErrValidation, "name required")
	}
	if in.Price.IsNegative() {
		return model.Product{}, newError(ErrValidation, "price must be >= 0")
	}
	if in.Price.Exponent() < -2 {
		return model.Product{}, newError(ErrValidation, "price has too many decimals")
	}
	if in.Stock < 0 {
		return model.Product{}, newError(ErrValidation, "stock must be >= 0")
	}

	now := u.clock.Now()
	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		p, err := r.Products().Create(ctx, model.Product{
			Name:        strings.TrimSpace(in.Name),
			Description: in.Description,
			Price:       in.Price,
			Stock:       in.Stock,
			IsActive:    in.IsActive,
			Version:     1,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return dbError(err)
		}
		out = p
		return nil
	})
	return out, err
}

type SetStockInput struct {
	Stock           int64
	ExpectedVersion int64
	Reason          string
}

// AdminSetStock は在庫数を上書きする。version が違えば 409。
func (u *InventoryUsecase) AdminSetStock(ctx context.Context, actorID string, productID int64, in SetStockInput) (model.Product, error) {
	if actorID == "" {
		return model.Product{}, newError(ErrUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return model.Product{}, newError(ErrValidation, "invalid product id")
	}
	if in.Stock < 0 {
		return model.Product{}, newError(ErrValidation, "stock must be >= 0")
	}
	if in.ExpectedVersion <= 0 {
		return model.Product{}, newError(ErrValidation, "expected_version required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return model.Product{}, newError(ErrValidation, "reason required")
	}

	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）
		p, err := r.Products().FindByID(ctx, productID)
		if err != nil {
			return dbError(err)
		}

		//在庫の現在値を更新
		if err := r.Inventory().SetStock(ctx, productID, in.Stock, in.ExpectedVersion); err != nil {
			return dbError(err)
		}

		//履歴を作成（差分）
		now := u.clock.Now()
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID: productID,
			ActorID:   &actorID,
			Delta:     in.Stock - p.Stock,
			Reason:    reason,
			CreatedAt: now,
		}); err != nil {
			return dbError(err)
		}

		//監査ログを作成（在庫更新）
		beforeJSON, _ := json.Marshal(map[string]int64{"stock": p.Stock, "version": p.Version})
		afterJSON, _ := json.Marshal(map[string]int64{"stock": in.Stock, "version": p.Version + 1})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorID:      actorID,
			Action:       model.AuditActionUpdateStock,
			ResourceType: model.AuditResourceProduct,
			ResourceID:   strconv.FormatInt(p.ID, 10),
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    now,
		}); err != nil {
			return dbError(err)
		}

		p.Stock = in.Stock
		p.Version++
		out = p
		return nil
	})
	if err != nil {
		return model.Product{}, err
	}
	u.log.InfoContext(ctx, "stock updated",
		slog.Int64("product_id", productID),
		slog.Int64("stock", in.Stock),
		slog.String("actor_id", actorID))
	return out, nil
}

func (u *InventoryUsecase) Adjustments(ctx context.Context, productID int64) ([]model.InventoryAdjustment, error) {
	var out []model.InventoryAdjustment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Products().FindByID(ctx, productID); err != nil {
			return dbError(err)
		}
		adjs, err := r.Inventory().ListAdjustments(ctx, productID)
		if err != nil {
			return dbError(err)
		}
		out = adjs
		return nil
	})
	return out, err
}
