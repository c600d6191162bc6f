package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/middleware"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
)

type SubscriptionHandler struct {
	uc *usecase.SubscriptionUsecase
}

func NewSubscriptionHandler(uc *usecase.SubscriptionUsecase) *SubscriptionHandler {
	return &SubscriptionHandler{uc: uc}
}

type SubscriptionCreateRequest struct {
	ProductID int64  `json:"product_id"`
	Plan      string `json:"plan"`
	Quantity  int64  `json:"quantity"`
	// YYYY-MM-DD
	StartDate string `json:"start_date"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

type RunDueRequest struct {
	// YYYY-MM-DD。空なら今日
	AsOf string `json:"as_of"`
}

func (h *SubscriptionHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	g := e.Group("/subscriptions")
	g.Use(middleware.AuthJWT(cfg))
	g.GET("", h.list)
	g.POST("", h.create)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/cancel", h.cancel)
	g.GET("/:id/deliveries", h.deliveries)
	g.POST("/deliveries/:id/skip", h.skip)

	admin := e.Group("/admin/subscriptions")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())
	admin.POST("/run-due", h.runDue)
}

func (h *SubscriptionHandler) list(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	out, err := h.uc.List(c.Request().Context(), customerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SubscriptionHandler) create(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	var req SubscriptionCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	in := usecase.CreateSubscriptionInput{
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		ProductID:     req.ProductID,
		Plan:          req.Plan,
		Quantity:      req.Quantity,
	}
	if req.StartDate != "" {
		d, err := time.Parse(time.DateOnly, req.StartDate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid start_date"})
		}
		in.StartDate = &d
	}

	out, err := h.uc.Create(c.Request().Context(), customerID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *SubscriptionHandler) pause(c echo.Context) error {
	return h.transition(c, h.uc.Pause)
}

func (h *SubscriptionHandler) resume(c echo.Context) error {
	return h.transition(c, h.uc.Resume)
}

func (h *SubscriptionHandler) cancel(c echo.Context) error {
	return h.transition(c, h.uc.Cancel)
}

type subscriptionTransition func(ctx context.Context, customerID, subscriptionID string) (usecase.SubscriptionOutput, error)

func (h *SubscriptionHandler) transition(c echo.Context, fn subscriptionTransition) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	out, err := fn(c.Request().Context(), customerID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SubscriptionHandler) deliveries(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	out, err := h.uc.Deliveries(c.Request().Context(), customerID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SubscriptionHandler) skip(c echo.Context) error {
	customerID, ok := getCustomerIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	out, err := h.uc.SkipDelivery(c.Request().Context(), customerID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SubscriptionHandler) runDue(c echo.Context) error {
	var req RunDueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	asOf := time.Now().UTC()
	if req.AsOf != "" {
		d, err := time.Parse(time.DateOnly, req.AsOf)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid as_of"})
		}
		asOf = d
	}
	out, err := h.uc.RunDue(c.Request().Context(), asOf)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
