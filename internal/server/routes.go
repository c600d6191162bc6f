package server

import (
	"net/http"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/app"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/handler"

	"github.com/labstack/echo/v4"
)

// RegisterRoutes は全ハンドラをまとめて登録する
func RegisterRoutes(e *echo.Echo, a *app.App) {
	cfg := a.Config

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	handler.NewProductHandler(a.Inventory).RegisterRoutes(e)
	handler.NewCheckoutHandler(a.Checkout).RegisterRoutes(e, cfg)
	handler.NewWebhookHandler(a.Reconcile, a.Parser, a.SignatureHeader, a.Log).RegisterRoutes(e)
	handler.NewOrderHandler(a.Orders).RegisterRoutes(e, cfg)
	handler.NewRewardsHandler(a.Rewards).RegisterRoutes(e, cfg)
	handler.NewSubscriptionHandler(a.Subscriptions).RegisterRoutes(e, cfg)

	handler.NewAdminOrderHandler(a.AdminOrders).RegisterRoutes(e, cfg)
	handler.NewAdminProductHandler(a.Inventory).RegisterRoutes(e, cfg)
	handler.NewAdminLedgerHandler(a.Ledger, a.Rewards).RegisterRoutes(e, cfg)
}
