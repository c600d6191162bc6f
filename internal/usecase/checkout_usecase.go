package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// usecaseがValidatorInterfaceに依存する約束
type CheckoutValidator interface {
	ValidateCheckout(ctx context.Context, in CheckoutInput) error
}

type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type CustomerInfo struct {
	// ゲストは nil
	CustomerID *string
	Name       string
	Email      string
	Phone      string
}

type CheckoutInput struct {
	Items          []CartLine
	Customer       CustomerInfo
	GiftCardCode   string
	GiftCardAmount *decimal.Decimal
	IdempotencyKey string

	SubscriptionDeliveryID *string
}

type CheckoutOutput struct {
	OrderID        string          `json:"order_id"`
	PaymentURL     string          `json:"payment_url"`
	Status         string          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	GiftCardAmount decimal.Decimal `json:"gift_card_amount"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	GiftCardError  string          `json:"gift_card_error,omitempty"`
	Replayed       bool            `json:"replayed"`
}

type CheckoutUsecase struct {
	tx         repo.TransactionManager
	rewards    *RewardsUsecase
	reconcile  *ReconcileUsecase
	gateway    PaymentGateway
	validator  CheckoutValidator
	idGen      IDGenerator
	clock      Clock
	log        *slog.Logger
	successURL string
	cancelURL  string
}

// DI
func NewCheckoutUsecase(
	tx repo.TransactionManager,
	rewards *RewardsUsecase,
	reconcile *ReconcileUsecase,
	gateway PaymentGateway,
	validator CheckoutValidator,
	idGen IDGenerator,
	clock Clock,
	log *slog.Logger,
	successURL string,
	cancelURL string,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tx:         tx,
		rewards:    rewards,
		reconcile:  reconcile,
		gateway:    gateway,
		validator:  validator,
		idGen:      idGen,
		clock:      clock,
		log:        log,
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// Checkout は注文を作り、決済セッションの URL を返す。
//  1. カード検証
//  2. 在庫予約・金額計算・ギフトカード適用・注文作成（1トランザクション）
//  3. 決済セッション作成と参照の保存。失敗したら注文を取り消す
func (u *CheckoutUsecase) Checkout(ctx context.Context, in CheckoutInput) (CheckoutOutput, error) {
	if err := u.validator.ValidateCheckout(ctx, in); err != nil {
		return CheckoutOutput{}, err
	}
	lines := mergeLines(in.Items)

	var (
		order   model.Order
		items   []model.OrderItem
		giftErr error
		resumed bool
	)

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら同じ結果
		if in.IdempotencyKey != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, in.IdempotencyKey)
			if err != nil {
				return dbError(err)
			}
			if found {
				its, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
				if err != nil {
					return dbError(err)
				}
				order, items, resumed = existing, its, true
				return nil
			}
		}

		created, err := u.createOrderTx(ctx, r, in, lines)
		if err != nil {
			return err
		}
		order, items, giftErr = created.order, created.items, created.giftErr
		return nil
	})
	if err != nil {
		return CheckoutOutput{}, err
	}

	if resumed && (order.PaymentSessionID != nil || order.Status != model.OrderStatusPending) {
		out := toCheckoutOutput(order)
		out.Replayed = true
		return out, nil
	}

	// 全額ギフトカードなら決済なしで確定
	if !order.AmountDue.IsPositive() {
		if err := u.reconcile.ConfirmWithoutPayment(ctx, order.ID); err != nil {
			return CheckoutOutput{}, err
		}
		order.Status = model.OrderStatusPaid
		out := toCheckoutOutput(order)
		out.PaymentURL = withOrderID(u.successURL, order.ID)
		out.Replayed = resumed
		return out, nil
	}

	session, err := u.gateway.CreateSession(ctx, PaymentSessionInput{
		OrderID:       order.ID,
		Lines:         toPaymentLines(items, order),
		AmountDue:     order.AmountDue,
		CustomerEmail: order.CustomerEmail,
		SuccessURL:    withOrderID(u.successURL, order.ID),
		CancelURL:     withOrderID(u.cancelURL, order.ID),
	})
	if err != nil {
		u.log.WarnContext(ctx, "payment session failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()))
		u.compensate(ctx, order.ID, "payment session failed")
		return CheckoutOutput{}, newError(ErrPaymentGateway, "payment session could not be created")
	}

	// 同じキーの別リクエストが先に保存していたら、そちらを正とする
	var stored *model.Order
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		current, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return dbError(err)
		}
		if current.PaymentSessionID != nil {
			stored = &current
			return nil
		}
		if err := r.Orders().AttachPaymentSession(ctx, order.ID, session.ID, session.RedirectURL); err != nil {
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		u.compensate(ctx, order.ID, "attach payment session failed")
		return CheckoutOutput{}, err
	}
	if stored != nil {
		if *stored.PaymentSessionID != session.ID {
			u.log.WarnContext(ctx, "payment session already attached",
				slog.String("order_id", order.ID),
				slog.String("session_id", *stored.PaymentSessionID),
				slog.String("unused_session_id", session.ID))
		}
		out := toCheckoutOutput(*stored)
		out.Replayed = true
		return out, nil
	}

	order.PaymentSessionID = &session.ID
	order.PaymentURL = session.RedirectURL
	out := toCheckoutOutput(order)
	out.Replayed = resumed
	if giftErr != nil {
		out.GiftCardError = errorMessage(giftErr)
	}
	return out, nil
}

type createdOrder struct {
	order model.Order
	items []model.OrderItem
	// ギフトカードを適用できなかった理由
	giftErr error
}

func (u *CheckoutUsecase) createOrderTx(ctx context.Context, r repo.TxRepos, in CheckoutInput, lines []CartLine) (createdOrder, error) {
	ids := lo.Map(lines, func(l CartLine, _ int) int64 { return l.ProductID })
	products, err := r.Products().FindByIDs(ctx, ids)
	if err != nil {
		return createdOrder{}, dbError(err)
	}
	byID := lo.KeyBy(products, func(p model.Product) int64 { return p.ID })

	orderID := u.idGen.NewID()
	now := u.clock.Now()

	//在庫を確定時に再チェックして減らす
	items := make([]model.OrderItem, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || !p.IsActive {
			return createdOrder{}, newError(ErrInvalidCart, fmt.Sprintf("product %d is not available", l.ProductID))
		}

		ok, err := r.Inventory().DecreaseStockIfEnough(ctx, p.ID, l.Quantity)
		if err != nil {
			return createdOrder{}, dbError(err)
		}
		if !ok {
			return createdOrder{}, newError(ErrOutOfStock, fmt.Sprintf("product %d is out of stock", p.ID))
		}
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID: p.ID,
			OrderID:   lo.ToPtr(orderID),
			Delta:     -l.Quantity,
			Reason:    model.InventoryReasonReserve,
			CreatedAt: now,
		}); err != nil {
			return createdOrder{}, dbError(err)
		}

		//スナップショット（現在のカタログ価格）
		items = append(items, model.OrderItem{
			OrderID:             orderID,
			ProductID:           p.ID,
			ProductNameSnapshot: p.Name,
			UnitPriceSnapshot:   p.Price,
			Quantity:            l.Quantity,
			CreatedAt:           now,
		})
	}

	subtotal := lo.Reduce(items, func(acc decimal.Decimal, it model.OrderItem, _ int) decimal.Decimal {
		return acc.Add(it.LineTotal())
	}, decimal.Zero)
	tax, total := model.ComputeTotals(subtotal)

	order := model.Order{
		ID:                     orderID,
		CustomerID:             in.Customer.CustomerID,
		CustomerName:           in.Customer.Name,
		CustomerEmail:          in.Customer.Email,
		CustomerPhone:          in.Customer.Phone,
		Subtotal:               subtotal,
		Tax:                    tax,
		Total:                  total,
		GiftCardAmount:         decimal.Zero,
		AmountDue:              total,
		Status:                 model.OrderStatusPending,
		SubscriptionDeliveryID: in.SubscriptionDeliveryID,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if in.IdempotencyKey != "" {
		order.IdempotencyKey = lo.ToPtr(in.IdempotencyKey)
	}

	// ギフトカードが使えなくても注文は続ける
	var giftErr error
	if in.GiftCardCode != "" {
		card, applied, err := u.rewards.RedeemGiftCardTx(ctx, r, in.GiftCardCode, in.GiftCardAmount, total, orderID)
		switch {
		case err == nil:
			order.GiftCardID = lo.ToPtr(card.ID)
			order.GiftCardAmount = applied
			order.AmountDue = total.Sub(applied)
		case errors.Is(err, ErrInsufficientBalance),
			errors.Is(err, ErrCardInactiveOrExpired),
			errors.Is(err, ErrValidation):
			giftErr = err
			u.log.InfoContext(ctx, "gift card not applied",
				slog.String("order_id", orderID),
				slog.String("reason", errorMessage(err)))
		default:
			return createdOrder{}, err
		}
	}

	// 注文作成
	if err := r.Orders().Create(ctx, order); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			// 同じキーで同時に来た
			return createdOrder{}, newError(ErrPersistenceConflict, "duplicate checkout, retry")
		}
		return createdOrder{}, dbError(err)
	}

	//注文明細一括作成
	if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
		return createdOrder{}, dbError(err)
	}

	return createdOrder{order: order, items: items, giftErr: giftErr}, nil
}

// 補償。呼び出し元がキャンセルされていても最後まで実行する
func (u *CheckoutUsecase) compensate(ctx context.Context, orderID string, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := u.reconcile.CancelPending(ctx, orderID); err != nil {
		u.log.ErrorContext(ctx, "checkout compensation failed",
			slog.String("order_id", orderID),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		return
	}
	u.log.InfoContext(ctx, "checkout compensated",
		slog.String("order_id", orderID),
		slog.String("reason", reason))
}

// 同じ商品の行をまとめる（順序は最初に出た順）
func mergeLines(items []CartLine) []CartLine {
	qty := map[int64]int64{}
	order := make([]int64, 0, len(items))
	for _, it := range items {
		if _, ok := qty[it.ProductID]; !ok {
			order = append(order, it.ProductID)
		}
		qty[it.ProductID] += it.Quantity
	}
	return lo.Map(order, func(id int64, _ int) CartLine {
		return CartLine{ProductID: id, Quantity: qty[id]}
	})
}

// ギフトカードを使ったときは明細ではなく請求額1行にする
func toPaymentLines(items []model.OrderItem, o model.Order) []PaymentLine {
	if o.GiftCardAmount.IsPositive() {
		return []PaymentLine{{Name: "Order " + o.ID, UnitPrice: o.AmountDue, Quantity: 1}}
	}
	lines := lo.Map(items, func(it model.OrderItem, _ int) PaymentLine {
		return PaymentLine{Name: it.ProductNameSnapshot, UnitPrice: it.UnitPriceSnapshot, Quantity: it.Quantity}
	})
	if o.Tax.IsPositive() {
		lines = append(lines, PaymentLine{Name: "KDV %18", UnitPrice: o.Tax, Quantity: 1})
	}
	return lines
}

func withOrderID(raw string, orderID string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("order_id", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

func errorMessage(err error) string {
	if he, ok := AsHTTPError(err); ok {
		return he.Message
	}
	return err.Error()
}

func toCheckoutOutput(o model.Order) CheckoutOutput {
	return CheckoutOutput{
		OrderID:        o.ID,
		PaymentURL:     o.PaymentURL,
		Status:         string(o.Status),
		Subtotal:       o.Subtotal,
		Tax:            o.Tax,
		Total:          o.Total,
		GiftCardAmount: o.GiftCardAmount,
		AmountDue:      o.AmountDue,
	}
}
