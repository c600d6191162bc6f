package handler

import (
	"net/http"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/middleware"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
)

// ポイント・紹介・ギフトカード（顧客向け）
type RewardsHandler struct {
	uc *usecase.RewardsUsecase
}

func NewRewardsHandler(uc *usecase.RewardsUsecase) *RewardsHandler {
	return &RewardsHandler{uc: uc}
}

type RedeemRequest struct {
	Points   int64   `json:"points"`
	OrderRef *string `json:"order_ref"`
}

type ReferralCodeRequest struct {
	RewardPoints int64 `json:"reward_points"`
}

type RegisterReferralRequest struct {
	Code string `json:"code"`
}

func (h *RewardsHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	me := e.Group("/me")
	me.Use(middleware.AuthJWT(cfg))
	me.GET("/loyalty", h.loyalty)
	me.GET("/loyalty/transactions", h.history)
	me.POST("/loyalty/redeem", h.redeem)
	me.POST("/referral-codes", h.createReferralCode)

	e.POST("/referrals", h.registerReferral, middleware.AuthJWT(cfg))
	e.GET("/gift-cards/:code", h.giftCardBalance)
}

func (h *RewardsHandler) loyalty(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	out, err := h.uc.Loyalty(c.Request().Context(), customerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RewardsHandler) history(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	out, err := h.uc.LoyaltyHistory(c.Request().Context(), customerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RewardsHandler) redeem(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	var req RedeemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	out, err := h.uc.RedeemPoints(c.Request().Context(), customerID, req.Points, req.OrderRef)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RewardsHandler) createReferralCode(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	var req ReferralCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	out, err := h.uc.CreateReferralCode(c.Request().Context(), customerID, req.RewardPoints)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *RewardsHandler) registerReferral(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	var req RegisterReferralRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	out, err := h.uc.RegisterReferral(c.Request().Context(), req.Code, customerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *RewardsHandler) giftCardBalance(c echo.Context) error {
	out, err := h.uc.GiftCardBalance(c.Request().Context(), c.Param("code"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
