package handler

import (
	"net/http"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/middleware"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// 台帳の参照・検証・手動調整とギフトカード発行
type AdminLedgerHandler struct {
	ledger  *usecase.LedgerUsecase
	rewards *usecase.RewardsUsecase
}

func NewAdminLedgerHandler(ledger *usecase.LedgerUsecase, rewards *usecase.RewardsUsecase) *AdminLedgerHandler {
	return &AdminLedgerHandler{ledger: ledger, rewards: rewards}
}

type LedgerAdjustRequest struct {
	Delta decimal.Decimal `json:"delta"`
	Note  string          `json:"note"`
}

type GiftCardIssueRequest struct {
	Code      string          `json:"code"`
	Amount    decimal.Decimal `json:"amount"`
	ExpiresAt *time.Time      `json:"expires_at"`
}

func (h *AdminLedgerHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/ledger/accounts/:id", h.account)
	admin.GET("/ledger/accounts/:id/transactions", h.history)
	admin.GET("/ledger/accounts/:id/verify", h.verify)
	admin.POST("/ledger/accounts/:id/adjust", h.adjust)
	admin.POST("/gift-cards", h.issueGiftCard)
}

func (h *AdminLedgerHandler) account(c echo.Context) error {
	out, err := h.ledger.Account(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminLedgerHandler) history(c echo.Context) error {
	out, err := h.ledger.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminLedgerHandler) verify(c echo.Context) error {
	out, err := h.ledger.Verify(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminLedgerHandler) adjust(c echo.Context) error {
	var req LedgerAdjustRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	adminID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.ledger.AdminAdjust(c.Request().Context(), adminID, c.Param("id"), usecase.AdminAdjustInput{
		Delta: req.Delta,
		Note:  req.Note,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *AdminLedgerHandler) issueGiftCard(c echo.Context) error {
	var req GiftCardIssueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	adminID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.rewards.IssueGiftCard(c.Request().Context(), adminID, usecase.IssueGiftCardInput{
		Code:      req.Code,
		Amount:    req.Amount,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}
