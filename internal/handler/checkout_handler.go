package handler

import (
	"net/http"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/middleware"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type CheckoutHandler struct {
	uc *usecase.CheckoutUsecase
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase) *CheckoutHandler {
	return &CheckoutHandler{uc: uc}
}

type CheckoutRequest struct {
	Items    []usecase.CartLine `json:"items"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
	GiftCardCode   string           `json:"gift_card_code"`
	GiftCardAmount *decimal.Decimal `json:"gift_card_amount"`
}

// ゲストでも購入できる
func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	e.POST("/checkout", h.checkout, middleware.OptionalAuthJWT(cfg))
}

func (h *CheckoutHandler) checkout(c echo.Context) error {
	var req CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	in := usecase.CheckoutInput{
		Items: req.Items,
		Customer: usecase.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		GiftCardCode:   req.GiftCardCode,
		GiftCardAmount: req.GiftCardAmount,
		//二重送信防止キーはヘッダーから受け取る（bodyには入れない）
		IdempotencyKey: c.Request().Header.Get("Idempotency-Key"),
	}
	if id, ok := getCustomerIDFromContext(c); ok {
		in.Customer.CustomerID = &id
	}

	out, err := h.uc.Checkout(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}

	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, out)
}
