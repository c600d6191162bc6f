package middleware

import (
	"log/slog"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/logging"

	"github.com/labstack/echo/v4"
)

// RequestLogger は echo の RequestID を context に移し、1リクエスト1行でログを出す。
// RequestID ミドルウェアの後に置く。
func RequestLogger(log *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			}
			log.LogAttrs(c.Request().Context(), level, "request",
				slog.String("method", req.Method),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)))
			return nil
		}
	}
}
