package repository

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
)

// nil の項目は絞り込まない。Limit 0 は既定の件数。
type AuditLogFilter struct {
	ActorID      *string
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// 管理操作（状態変更・在庫・ポイント調整・ギフトカード発行）の記録。新しい順に返す。
type AuditLogRepository interface {
	Create(ctx context.Context, entry model.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
