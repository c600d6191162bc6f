package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/middleware"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//500
	slog.ErrorContext(c.Request().Context(), "unhandled error", slog.String("error", err.Error()))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

// AuthJWT が入れた customer_id（ゲストは空）
func getCustomerIDFromContext(c echo.Context) (string, bool) {
	id, ok := c.Get(middleware.CtxCustomerIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

func queryInt(c echo.Context, name string, def int) (int, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return def, true
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}
