package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

// 在庫の増減は必ず InventoryAdjustment を残す（呼び出し側の責任）
type InventoryRepository interface {
	// 管理画面からの上書き。expectedVersion が古ければ ErrConflict
	SetStock(ctx context.Context, productID int64, newStock int64, expectedVersion int64) error

	// チェックアウトの引当。足りなければ false（エラーではない）
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)

	// 決済失敗・取消で戻す
	IncreaseStock(ctx context.Context, productID int64, qty int64) error

	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
	// 古い順
	ListAdjustments(ctx context.Context, productID int64) ([]model.InventoryAdjustment, error)
}
