package server_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/app"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/config"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/logging"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/memory"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/infra/payment"
	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/server"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =====================
// helper
// =====================

const (
	jwtSecret  = "test-jwt-secret"
	fakeSecret = "test-fake-secret"
	baseURL    = "http://shop.test"
)

type testServer struct {
	e     *echo.Echo
	store *memory.Store
	app   *app.App
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	return newServerWithLog(t, logging.Discard())
}

func newServerWithLog(t *testing.T, log *slog.Logger) *testServer {
	t.Helper()
	cfg := config.Config{
		GoEnv:                "test",
		StoreDriver:          config.StoreDriverMemory,
		JWTSecret:            jwtSecret,
		PaymentDriver:        config.PaymentDriverFake,
		FakePaymentSecret:    fakeSecret,
		PublicBaseURL:        baseURL,
		CheckoutSuccessURL:   baseURL + "/success",
		CheckoutCancelURL:    baseURL + "/cancel",
		LedgerMaxRetries:     3,
		ReferralTTLDays:      30,
		ReferralRewardPoints: 100,
	}
	store := memory.NewStore()
	a, err := app.New(cfg, log, app.WithStore(store))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return &testServer{e: server.New(a), store: store, app: a}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + tok}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type checkoutResponse struct {
	OrderID    string          `json:"order_id"`
	PaymentURL string          `json:"payment_url"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	Replayed   bool            `json:"replayed"`
}

type webhookResponse struct {
	Received bool `json:"received"`
	Result   *struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Applied bool   `json:"applied"`
	} `json:"result"`
}

func checkoutBody(productID int64, qty int64) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": qty}},
		"customer": map[string]any{
			"name":  "Ayse Yilmaz",
			"email": "ayse@example.com",
		},
	}
}

// 決済ゲートウェイの通知を署名付きで送る
func (s *testServer) webhook(t *testing.T, typ, orderID string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"id":         "evt_" + typ + "_" + orderID,
		"type":       typ,
		"session_id": "fake_cs_" + orderID,
		"order_id":   orderID,
	})
	require.NoError(t, err)
	sig := payment.NewFakeGateway(fakeSecret, baseURL).Sign(payload)
	return s.do(t, http.MethodPost, "/webhooks/payment", payload, map[string]string{payment.FakeSignatureHeader: sig})
}

func (s *testServer) seed(name, price string, stock int64) model.Product {
	return s.store.SeedProduct(model.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	})
}

// =====================
// tests
// =====================

func TestHealthz(t *testing.T) {
	s := newServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuestCheckoutAndWebhook(t *testing.T) {
	s := newServer(t)
	p := s.seed("Glazed", "10.00", 5)

	headers := map[string]string{"Idempotency-Key": "cart-42"}
	rec := s.do(t, http.MethodPost, "/checkout", checkoutBody(p.ID, 2), headers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[checkoutResponse](t, rec)
	assert.Equal(t, "pending", out.Status)
	assert.True(t, out.Total.Equal(decimal.RequireFromString("23.60")))
	assert.True(t, strings.HasPrefix(out.PaymentURL, baseURL+"/fake-checkout/"))

	// 同じキーの再送は同じ注文
	rec = s.do(t, http.MethodPost, "/checkout", checkoutBody(p.ID, 2), headers)
	require.Equal(t, http.StatusOK, rec.Code)
	replay := decode[checkoutResponse](t, rec)
	assert.Equal(t, out.OrderID, replay.OrderID)
	assert.True(t, replay.Replayed)

	// 署名が違えば 400
	rec = s.do(t, http.MethodPost, "/webhooks/payment", []byte(`{"type":"succeeded"}`), map[string]string{payment.FakeSignatureHeader: "bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.webhook(t, "succeeded", out.OrderID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	wh := decode[webhookResponse](t, rec)
	require.NotNil(t, wh.Result)
	assert.True(t, wh.Result.Applied)
	assert.Equal(t, "paid", wh.Result.Status)

	rec = s.webhook(t, "succeeded", out.OrderID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[webhookResponse](t, rec).Result.Applied)

	rec = s.do(t, http.MethodGet, "/products/"+itoa(p.ID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decode[model.Product](t, rec).Stock)
}

func TestWebhook_UnknownSessionAcknowledged(t *testing.T) {
	var buf bytes.Buffer
	s := newServerWithLog(t, slog.New(slog.NewJSONHandler(&buf, nil)))

	rec := s.webhook(t, "succeeded", "00000000-0000-0000-0000-000000000000")
	require.Equal(t, http.StatusOK, rec.Code)
	wh := decode[webhookResponse](t, rec)
	assert.True(t, wh.Received)
	assert.Nil(t, wh.Result)

	// アプリのロガーに出る
	assert.Contains(t, buf.String(), "webhook for unknown session")
	assert.Contains(t, buf.String(), "fake_cs_00000000-0000-0000-0000-000000000000")
}

func TestCustomerEarnsPoints(t *testing.T) {
	s := newServer(t)
	p := s.seed("Glazed", "10.00", 5)
	customer := bearer(token(t, "cust-1", "USER"))

	rec := s.do(t, http.MethodPost, "/checkout", checkoutBody(p.ID, 2), customer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[checkoutResponse](t, rec)

	require.Equal(t, http.StatusOK, s.webhook(t, "succeeded", out.OrderID).Code)

	rec = s.do(t, http.MethodGet, "/me/loyalty", nil, customer)
	require.Equal(t, http.StatusOK, rec.Code)
	loyalty := decode[struct {
		Balance decimal.Decimal `json:"balance"`
		Tier    string          `json:"tier"`
	}](t, rec)
	assert.Equal(t, "2", loyalty.Balance.String())
	assert.Equal(t, "bronze", loyalty.Tier)

	rec = s.do(t, http.MethodGet, "/me/orders/"+out.OrderID, nil, customer)
	assert.Equal(t, http.StatusOK, rec.Code)

	// 他人の注文は見えない
	rec = s.do(t, http.MethodGet, "/me/orders/"+out.OrderID, nil, bearer(token(t, "cust-2", "USER")))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/me/loyalty", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_RoleGuard(t *testing.T) {
	s := newServer(t)
	body := map[string]any{"name": "Pistachio", "price": "14.50", "stock": 10, "is_active": true}

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"user", bearer(token(t, "cust-1", "USER")), http.StatusForbidden},
		{"admin", bearer(token(t, "admin-1", "ADMIN")), http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/admin/products", body, tt.headers)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminStockAndOrderStatus(t *testing.T) {
	s := newServer(t)
	p := s.seed("Glazed", "10.00", 5)
	admin := bearer(token(t, "admin-1", "ADMIN"))

	rec := s.do(t, http.MethodPut, "/admin/products/"+itoa(p.ID)+"/stock",
		map[string]any{"stock": 9, "expected_version": p.Version + 5, "reason": "recount"}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, "/admin/products/"+itoa(p.ID)+"/stock",
		map[string]any{"stock": 9, "expected_version": p.Version, "reason": "recount"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/checkout", checkoutBody(p.ID, 1), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	out := decode[checkoutResponse](t, rec)

	rec = s.do(t, http.MethodPut, "/admin/orders/"+out.OrderID+"/status", map[string]any{"status": "shipped"}, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPut, "/admin/orders/"+out.OrderID+"/status", map[string]any{"status": "cancelled"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/admin/orders?status=cancelled", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Total int64 `json:"total"`
	}](t, rec)
	assert.EqualValues(t, 1, list.Total)

	rec = s.do(t, http.MethodGet, "/admin/orders?from=yesterday", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
