package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxCustomerIDKey = "customer_id" // string（IDプロバイダの sub）
	CtxUserRoleKey   = "user_role"   // string
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

var errNoToken = errors.New("no token")

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, role, err := parseBearer(c, cfg.JWTSecret)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//contextへ保存
			c.Set(CtxCustomerIDKey, sub)
			c.Set(CtxUserRoleKey, role)
			return next(c)
		}
	}
}

// ゲストも通す。トークンがあれば検証する（不正なら401）
func OptionalAuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sub, role, err := parseBearer(c, cfg.JWTSecret)
			if errors.Is(err, errNoToken) {
				return next(c)
			}
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			c.Set(CtxCustomerIDKey, sub)
			c.Set(CtxUserRoleKey, role)
			return next(c)
		}
	}
}

func parseBearer(c echo.Context, secret string) (string, string, error) {
	//Authorizationヘッダを取得
	authz := c.Request().Header.Get("Authorization")
	if authz == "" {
		return "", "", errNoToken
	}

	//Bearer形式か確認してtokenを抜く
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "", errors.New("invalid authorization header")
	}
	rawToken := strings.TrimSpace(parts[1])
	if rawToken == "" {
		return "", "", errors.New("empty token")
	}

	//JWTをパースして検証する
	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || token == nil || !token.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}

	// sub は IDプロバイダの不透明なID
	sub, err := parseString(claims["sub"])
	if err != nil || strings.TrimSpace(sub) == "" {
		return "", "", errors.New("invalid sub")
	}

	//roleを取り出す（USER/ADMIN）。無ければ USER
	role := RoleUser
	if v, ok := claims["role"]; ok {
		r, err := parseString(v)
		if err != nil || r == "" {
			return "", "", errors.New("invalid role")
		}
		role = r
	}
	return sub, role, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

func parseString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("invalid string")
	}
	return s, nil
}
