package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/app"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/middleware"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// New は echo を組み立てる（起動はしない）
func New(a *app.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(a.Log))
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))

	RegisterRoutes(e, a)
	return e
}

// Start は ctx が終わるまで待ち、終わったら受付中のリクエストを待って止める
func Start(ctx context.Context, addr string, a *app.App) error {
	e := New(a)

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("server started", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
