package usecase

import (
	"context"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderOutput struct {
	ID             string            `json:"id"`
	CustomerID     *string           `json:"customer_id"`
	CustomerName   string            `json:"customer_name"`
	CustomerEmail  string            `json:"customer_email"`
	Status         string            `json:"status"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	Tax            decimal.Decimal   `json:"tax"`
	Total          decimal.Decimal   `json:"total"`
	GiftCardAmount decimal.Decimal   `json:"gift_card_amount"`
	AmountDue      decimal.Decimal   `json:"amount_due"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	Items          []OrderItemOutput `json:"items"`
}

// 自分の注文一覧
func (u *OrderUsecase) ListMyOrders(ctx context.Context, customerID string, page, limit int) ([]OrderOutput, error) {
	if customerID == "" {
		return []OrderOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	if page < 1 {
		return []OrderOutput{}, newError(ErrValidation, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return []OrderOutput{}, newError(ErrValidation, "invalid limit")
	}

	var outs []OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{
			Page:       page,
			Limit:      limit,
			CustomerID: lo.ToPtr(customerID),
		})
		if err != nil {
			return dbError(err)
		}
		outs, err = withItems(ctx, r, orders)
		return err
	})
	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// 自分の注文詳細（他人の注文は404）
func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, customerID string, orderID string) (OrderOutput, error) {
	if customerID == "" {
		return OrderOutput{}, newError(ErrUnauthorized, "unauthorized")
	}
	if orderID == "" {
		return OrderOutput{}, newError(ErrValidation, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return dbError(err)
		}
		if o.CustomerID == nil || *o.CustomerID != customerID {
			return newError(ErrNotFound, "not found")
		}
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return dbError(err)
		}
		out = toOrderOutput(o, items)
		return nil
	})
	return out, err
}

func withItems(ctx context.Context, r repo.TxRepos, orders []model.Order) ([]OrderOutput, error) {
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return nil, dbError(err)
		}
		outs = append(outs, toOrderOutput(o, items))
	}
	return outs, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	return OrderOutput{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		CustomerName:   o.CustomerName,
		CustomerEmail:  o.CustomerEmail,
		Status:         string(o.Status),
		Subtotal:       o.Subtotal,
		Tax:            o.Tax,
		Total:          o.Total,
		GiftCardAmount: o.GiftCardAmount,
		AmountDue:      o.AmountDue,
		Version:        o.Version,
		CreatedAt:      o.CreatedAt,
		Items: lo.Map(items, func(it model.OrderItem, _ int) OrderItemOutput {
			return OrderItemOutput{
				ProductID: it.ProductID,
				Name:      it.ProductNameSnapshot,
				UnitPrice: it.UnitPriceSnapshot,
				Quantity:  it.Quantity,
				LineTotal: it.LineTotal(),
			}
		}),
	}
}
