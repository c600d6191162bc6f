package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// RequireRole は AuthJWT の後ろに置く。role が roles のどれでもなければ 403。
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(CtxUserRoleKey).(string)
			if role == "" {
				// AuthJWT を通っていない
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if !slices.Contains(roles, role) {
				return c.JSON(http.StatusForbidden, errorJSON("forbidden"))
			}
			return next(c)
		}
	}
}

// 管理画面用
func AdminRoleGuard() echo.MiddlewareFunc {
	return RequireRole(RoleAdmin)
}
