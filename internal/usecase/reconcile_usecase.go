package usecase

import (
	"context"
	"log/slog"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// 決済ゲートウェイからの通知で注文を確定・取消する。
// 同じイベントが何度届いても結果は1回分だけ。
type ReconcileUsecase struct {
	tx         repo.TransactionManager
	rewards    *RewardsUsecase
	clock      Clock
	log        *slog.Logger
	maxRetries int
}

func NewReconcileUsecase(tx repo.TransactionManager, rewards *RewardsUsecase, clock Clock, log *slog.Logger, maxRetries int) *ReconcileUsecase {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &ReconcileUsecase{tx: tx, rewards: rewards, clock: clock, log: log, maxRetries: maxRetries}
}

type ReconcileResult struct {
	OrderID           string          `json:"order_id"`
	Status            string          `json:"status"`
	Applied           bool            `json:"applied"`
	PointsAccrued     decimal.Decimal `json:"points_accrued"`
	ReferralCompleted bool            `json:"referral_completed"`
}

// HandlePaymentEvent は署名検証済みのイベントを処理する。
// リクエストが切れても最後まで処理する。
func (u *ReconcileUsecase) HandlePaymentEvent(ctx context.Context, ev PaymentEvent) (ReconcileResult, error) {
	ctx = context.WithoutCancel(ctx)
	if ev.SessionID == "" {
		return ReconcileResult{}, newError(ErrValidation, "session id is required")
	}

	switch ev.Type {
	case PaymentSucceeded:
		return u.ConfirmPayment(ctx, ev.SessionID)
	case PaymentFailed:
		return u.FailPayment(ctx, ev.SessionID)
	default:
		return ReconcileResult{}, nil
	}
}

func (u *ReconcileUsecase) ConfirmPayment(ctx context.Context, sessionID string) (ReconcileResult, error) {
	var res ReconcileResult
	err := retryOnConflict(ctx, u.log, "reconcile.ConfirmPayment", u.maxRetries, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindBySessionIDForUpdate(ctx, sessionID)
			if err != nil {
				return dbError(err)
			}
			res = ReconcileResult{OrderID: o.ID, Status: string(o.Status), PointsAccrued: decimal.Zero}

			// 再送
			if o.Status.IsPaidOrLater() {
				u.log.InfoContext(ctx, "payment already reconciled", slog.String("order_id", o.ID))
				return nil
			}
			if o.Status == model.OrderStatusCancelled {
				u.log.WarnContext(ctx, "payment succeeded for cancelled order",
					slog.String("order_id", o.ID),
					slog.String("session_id", sessionID))
				return nil
			}

			paid, err := u.markPaidTx(ctx, r, o)
			if err != nil {
				return err
			}
			res = paid
			return nil
		})
	})
	return res, err
}

// 請求額0の注文（ギフトカードで全額）を確定する
func (u *ReconcileUsecase) ConfirmWithoutPayment(ctx context.Context, orderID string) error {
	return retryOnConflict(ctx, u.log, "reconcile.ConfirmWithoutPayment", u.maxRetries, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
			if err != nil {
				return dbError(err)
			}
			if o.Status != model.OrderStatusPending {
				return nil
			}
			if o.AmountDue.IsPositive() {
				return newError(ErrValidation, "order requires payment")
			}
			_, err = u.markPaidTx(ctx, r, o)
			return err
		})
	})
}

func (u *ReconcileUsecase) FailPayment(ctx context.Context, sessionID string) (ReconcileResult, error) {
	var res ReconcileResult
	err := retryOnConflict(ctx, u.log, "reconcile.FailPayment", u.maxRetries, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindBySessionIDForUpdate(ctx, sessionID)
			if err != nil {
				return dbError(err)
			}
			res = ReconcileResult{OrderID: o.ID, Status: string(o.Status), PointsAccrued: decimal.Zero}
			if o.Status != model.OrderStatusPending {
				return nil
			}
			if err := u.cancelTx(ctx, r, o); err != nil {
				return err
			}
			res.Status = string(model.OrderStatusCancelled)
			res.Applied = true
			return nil
		})
	})
	return res, err
}

// CancelPending は pending の注文だけ取り消す（チェックアウトの補償用）
func (u *ReconcileUsecase) CancelPending(ctx context.Context, orderID string) error {
	return retryOnConflict(ctx, u.log, "reconcile.CancelPending", u.maxRetries, func() error {
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
			if err != nil {
				return dbError(err)
			}
			if o.Status != model.OrderStatusPending {
				return nil
			}
			return u.cancelTx(ctx, r, o)
		})
	})
}

// pending -> paid。ポイント付与と紹介完了も同じトランザクションで行う
func (u *ReconcileUsecase) markPaidTx(ctx context.Context, r repo.TxRepos, o model.Order) (ReconcileResult, error) {
	if err := model.ValidateTransition(o.Status, model.OrderStatusPaid); err != nil {
		return ReconcileResult{}, newError(ErrInvalidTransition, err.Error())
	}
	if err := r.Orders().UpdateStatus(ctx, o.ID, o.Version, model.OrderStatusPaid); err != nil {
		return ReconcileResult{}, dbError(err)
	}
	o.Status = model.OrderStatusPaid
	o.Version++

	points, err := u.rewards.AccrueForOrderTx(ctx, r, o)
	if err != nil {
		return ReconcileResult{}, err
	}
	completed, err := u.rewards.CompleteReferralTx(ctx, r, o)
	if err != nil {
		return ReconcileResult{}, err
	}

	u.log.InfoContext(ctx, "order paid",
		slog.String("order_id", o.ID),
		slog.String("points", points.String()),
		slog.Bool("referral_completed", completed))

	return ReconcileResult{
		OrderID:           o.ID,
		Status:            string(model.OrderStatusPaid),
		Applied:           true,
		PointsAccrued:     points,
		ReferralCompleted: completed,
	}, nil
}

func (u *ReconcileUsecase) cancelTx(ctx context.Context, r repo.TxRepos, o model.Order) error {
	if err := model.ValidateTransition(o.Status, model.OrderStatusCancelled); err != nil {
		return newError(ErrInvalidTransition, err.Error())
	}
	if err := r.Orders().UpdateStatus(ctx, o.ID, o.Version, model.OrderStatusCancelled); err != nil {
		return dbError(err)
	}
	return u.releaseTx(ctx, r, o, nil)
}

// 在庫戻しとギフトカード返金
func (u *ReconcileUsecase) releaseTx(ctx context.Context, r repo.TxRepos, o model.Order, actorID *string) error {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return dbError(err)
	}
	now := u.clock.Now()
	for _, it := range items {
		if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			return dbError(err)
		}
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID: it.ProductID,
			ActorID:   actorID,
			OrderID:   lo.ToPtr(o.ID),
			Delta:     it.Quantity,
			Reason:    model.InventoryReasonRelease,
			CreatedAt: now,
		}); err != nil {
			return dbError(err)
		}
	}
	return u.rewards.RefundGiftCardTx(ctx, r, o)
}
