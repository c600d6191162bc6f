package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =====================
// helper
// =====================

const testSecret = "test-secret"

type okResponse struct {
	CustomerID string `json:"customer_id"`
	Role       string `json:"role"`
}

func makeJWT(t *testing.T, secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	tok := jwt.NewWithClaims(method, claims)
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func serve(t *testing.T, mws []echo.MiddlewareFunc, authz string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		id, _ := c.Get(CtxCustomerIDKey).(string)
		role, _ := c.Get(CtxUserRoleKey).(string)
		return c.JSON(http.StatusOK, okResponse{CustomerID: id, Role: role})
	}, mws...)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// =====================
// tests
// =====================

func TestAuthJWT_OK(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	token := makeJWT(t, testSecret, jwt.MapClaims{"sub": "cust_abc", "role": RoleUser}, jwt.SigningMethodHS256)

	rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg)}, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)

	var body okResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "cust_abc", body.CustomerID)
	assert.Equal(t, RoleUser, body.Role)
}

func TestAuthJWT_DefaultRole(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	token := makeJWT(t, testSecret, jwt.MapClaims{"sub": "cust_abc"}, jwt.SigningMethodHS256)

	rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg)}, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"USER"`)
}

func TestAuthJWT_Rejects(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}

	cases := map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"wrong secret": "Bearer " + makeJWT(t, "other", jwt.MapClaims{"sub": "c"}, jwt.SigningMethodHS256),
		"wrong alg":    "Bearer " + makeJWT(t, testSecret, jwt.MapClaims{"sub": "c"}, jwt.SigningMethodHS512),
		"expired":      "Bearer " + makeJWT(t, testSecret, jwt.MapClaims{"sub": "c", "exp": time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256),
		"numeric sub":  "Bearer " + makeJWT(t, testSecret, jwt.MapClaims{"sub": 42}, jwt.SigningMethodHS256),
		"empty sub":    "Bearer " + makeJWT(t, testSecret, jwt.MapClaims{"sub": " "}, jwt.SigningMethodHS256),
	}
	for name, authz := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(t, []echo.MiddlewareFunc{AuthJWT(cfg)}, authz)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
		})
	}
}

func TestOptionalAuthJWT(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}

	// ゲスト
	rec := serve(t, []echo.MiddlewareFunc{OptionalAuthJWT(cfg)}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"customer_id":""`)

	token := makeJWT(t, testSecret, jwt.MapClaims{"sub": "cust_1"}, jwt.SigningMethodHS256)
	rec = serve(t, []echo.MiddlewareFunc{OptionalAuthJWT(cfg)}, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"customer_id":"cust_1"`)

	// 不正なトークンはゲスト扱いにしない
	rec = serve(t, []echo.MiddlewareFunc{OptionalAuthJWT(cfg)}, "Bearer broken")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoleGuard(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}
	mws := []echo.MiddlewareFunc{AuthJWT(cfg), AdminRoleGuard()}

	user := makeJWT(t, testSecret, jwt.MapClaims{"sub": "u1", "role": RoleUser}, jwt.SigningMethodHS256)
	rec := serve(t, mws, "Bearer "+user)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := makeJWT(t, testSecret, jwt.MapClaims{"sub": "a1", "role": RoleAdmin}, jwt.SigningMethodHS256)
	rec = serve(t, mws, "Bearer "+admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	cfg := config.Config{JWTSecret: testSecret}

	// AuthJWT なしでは role がない
	rec := serve(t, []echo.MiddlewareFunc{RequireRole(RoleAdmin)}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	both := []echo.MiddlewareFunc{AuthJWT(cfg), RequireRole(RoleUser, RoleAdmin)}
	user := makeJWT(t, testSecret, jwt.MapClaims{"sub": "u1"}, jwt.SigningMethodHS256)
	rec = serve(t, both, "Bearer "+user)
	assert.Equal(t, http.StatusOK, rec.Code)

	other := makeJWT(t, testSecret, jwt.MapClaims{"sub": "s1", "role": "SUPPORT"}, jwt.SigningMethodHS256)
	rec = serve(t, both, "Bearer "+other)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
