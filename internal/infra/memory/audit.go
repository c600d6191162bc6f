package memory

import (
	"context"
	"slices"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
)

type auditLogRepo struct{ s *state }

func (r auditLogRepo) Create(ctx context.Context, log model.AuditLog) error {
	r.s.nextAuditID++
	log.ID = r.s.nextAuditID
	r.s.auditLogs = append(r.s.auditLogs, log)
	return nil
}

// id の降順
func (r auditLogRepo) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	logs := lo.Filter(r.s.auditLogs, func(l model.AuditLog, _ int) bool {
		switch {
		case f.ActorID != nil && l.ActorID != *f.ActorID:
			return false
		case f.Action != nil && l.Action != *f.Action:
			return false
		case f.ResourceType != nil && l.ResourceType != *f.ResourceType:
			return false
		case f.ResourceID != nil && l.ResourceID != *f.ResourceID:
			return false
		case f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom):
			return false
		case f.CreatedTo != nil && l.CreatedAt.After(*f.CreatedTo):
			return false
		}
		return true
	})
	slices.Reverse(logs)

	if f.Offset > 0 {
		if f.Offset >= len(logs) {
			return []model.AuditLog{}, nil
		}
		logs = logs[f.Offset:]
	}
	if f.Limit > 0 && len(logs) > f.Limit {
		logs = logs[:f.Limit]
	}
	return logs, nil
}
