package repository

import (
	"context"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type AuditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) *AuditLogGormRepository {
	return &AuditLogGormRepository{db: db}
}

// 監査ログは追記のみ
func (r *AuditLogGormRepository) Create(ctx context.Context, entry model.AuditLog) error {
	return mapError(r.db.WithContext(ctx).Create(&entry).Error)
}

func (r *AuditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.WithContext(ctx).
		Scopes(auditFilter(f), page(f.Offset, f.Limit)).
		Order("id DESC").
		Find(&logs).Error
	if err != nil {
		return nil, mapError(err)
	}
	return logs, nil
}

func auditFilter(f repo.AuditLogFilter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		eq := map[string]any{}
		if f.ActorID != nil {
			eq["actor_id"] = *f.ActorID
		}
		if f.Action != nil {
			eq["action"] = *f.Action
		}
		if f.ResourceType != nil {
			eq["resource_type"] = *f.ResourceType
		}
		if f.ResourceID != nil {
			eq["resource_id"] = *f.ResourceID
		}
		if len(eq) > 0 {
			q = q.Where(eq)
		}
		if f.CreatedFrom != nil {
			q = q.Where("created_at >= ?", *f.CreatedFrom)
		}
		if f.CreatedTo != nil {
			q = q.Where("created_at <= ?", *f.CreatedTo)
		}
		return q
	}
}

func page(offset, limit int) func(*gorm.DB) *gorm.DB {
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}
	offset = max(offset, 0)
	return func(q *gorm.DB) *gorm.DB {
		return q.Offset(offset).Limit(limit)
	}
}
