package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"
)

type AdminOrderUsecase struct {
	tx         repo.TransactionManager
	reconcile  *ReconcileUsecase
	clock      Clock
	log        *slog.Logger
	maxRetries int
}

func NewAdminOrderUsecase(tx repo.TransactionManager, reconcile *ReconcileUsecase, clock Clock, log *slog.Logger, maxRetries int) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, reconcile: reconcile, clock: clock, log: log, maxRetries: maxRetries}
}

type AdminUpdateOrderStatusInput struct {
	Status string
	// 指定されたら一致しないとき 409（再試行しない）
	ExpectedVersion *int64
}

type AdminOrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (AdminOrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return AdminOrderListOutput{}, newError(ErrValidation, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return AdminOrderListOutput{}, newError(ErrValidation, "invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return AdminOrderListOutput{}, newError(ErrValidation, "invalid status")
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return AdminOrderListOutput{}, newError(ErrValidation, "from must be before to")
	}

	out := AdminOrderListOutput{Page: f.Page, Limit: f.Limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return dbError(err)
		}
		items, err := withItems(ctx, r, orders)
		if err != nil {
			return err
		}
		out.Items, out.Total = items, total
		return nil
	})
	if err != nil {
		return AdminOrderListOutput{}, err
	}
	return out, nil
}

// UpdateStatus は管理者によるステータス変更。
// paid ならポイント付与、cancelled なら在庫とギフトカードを戻す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorID string, orderID string, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorID == "" {
		return OrderOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	if orderID == "" {
		return OrderOutput{}, newError(ErrValidation, "invalid id")
	}
	next, ok := model.ParseOrderStatus(strings.TrimSpace(in.Status))
	if !ok {
		return OrderOutput{}, newError(ErrValidation, "invalid status")
	}

	attempts := u.maxRetries
	if in.ExpectedVersion != nil {
		attempts = 1
	}

	var out OrderOutput
	err := retryOnConflict(ctx, u.log, "admin.UpdateOrderStatus", attempts, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
			if err != nil {
				return dbError(err)
			}
			if in.ExpectedVersion != nil && *in.ExpectedVersion != o.Version {
				return newError(ErrPersistenceConflict, "order was modified, reload and retry")
			}
			before := o.Status

			switch next {
			case model.OrderStatusPaid:
				if _, err := u.reconcile.markPaidTx(ctx, r, o); err != nil {
					return err
				}
			case model.OrderStatusCancelled:
				if err := model.ValidateTransition(o.Status, next); err != nil {
					return newError(ErrInvalidTransition, err.Error())
				}
				if err := r.Orders().UpdateStatus(ctx, o.ID, o.Version, next); err != nil {
					return dbError(err)
				}
				if err := u.reconcile.releaseTx(ctx, r, o, &actorID); err != nil {
					return err
				}
			default:
				if err := model.ValidateTransition(o.Status, next); err != nil {
					return newError(ErrInvalidTransition, err.Error())
				}
				if err := r.Orders().UpdateStatus(ctx, o.ID, o.Version, next); err != nil {
					return dbError(err)
				}
			}

			if err := syncDeliveryTx(ctx, r, o, next); err != nil {
				return err
			}

			// ★監査ログ（UPDATE_ORDER_STATUS）
			beforeJSON, _ := json.Marshal(map[string]any{"status": before, "version": o.Version})
			afterJSON, _ := json.Marshal(map[string]any{"status": next, "version": o.Version + 1})
			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorID:      actorID,
				Action:       model.AuditActionUpdateOrderStatus,
				ResourceType: model.AuditResourceOrder,
				ResourceID:   o.ID,
				BeforeJSON:   string(beforeJSON),
				AfterJSON:    string(afterJSON),
				CreatedAt:    u.clock.Now(),
			}); err != nil {
				return dbError(err)
			}

			updated, err := r.Orders().FindByID(ctx, o.ID)
			if err != nil {
				return dbError(err)
			}
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return dbError(err)
			}
			out = toOrderOutput(updated, items)
			return nil
		})
	})
	if err != nil {
		return OrderOutput{}, err
	}
	u.log.InfoContext(ctx, "order status updated",
		slog.String("order_id", orderID),
		slog.String("status", string(next)),
		slog.String("actor_id", actorID))
	return out, nil
}

// 定期便の注文なら配送の状態も進める
func syncDeliveryTx(ctx context.Context, r repo.TxRepos, o model.Order, next model.OrderStatus) error {
	if o.SubscriptionDeliveryID == nil {
		return nil
	}
	status, ok := model.DeliveryStatusFor(next)
	if next == model.OrderStatusCancelled {
		status, ok = model.DeliveryStatusSkipped, true
	}
	if !ok {
		return nil
	}
	if err := r.Deliveries().UpdateStatus(ctx, *o.SubscriptionDeliveryID, status); err != nil {
		return dbError(err)
	}
	return nil
}

// 期間パラメータ。handler から使う
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
