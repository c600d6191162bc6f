package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/usecase"

	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 64 << 10

// 署名を検証してイベントにする（ゲートウェイごとの実装）
type PaymentEventParser interface {
	ParseEvent(payload []byte, signature string) (usecase.PaymentEvent, error)
}

type WebhookHandler struct {
	uc              *usecase.ReconcileUsecase
	parser          PaymentEventParser
	signatureHeader string
	log             *slog.Logger
}

func NewWebhookHandler(uc *usecase.ReconcileUsecase, parser PaymentEventParser, signatureHeader string, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{uc: uc, parser: parser, signatureHeader: signatureHeader, log: log}
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhooks/payment", h.receive)
}

type WebhookResponse struct {
	Received bool                     `json:"received"`
	Result   *usecase.ReconcileResult `json:"result,omitempty"`
}

// 処理に失敗したら 5xx を返してゲートウェイに再送させる
func (h *WebhookHandler) receive(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	ev, err := h.parser.ParseEvent(body, c.Request().Header.Get(h.signatureHeader))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid signature"})
	}
	if ev.Type == usecase.PaymentIgnored {
		return c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}

	res, err := h.uc.HandlePaymentEvent(c.Request().Context(), ev)
	if errors.Is(err, usecase.ErrNotFound) {
		// 他の環境のセッション。再送されても結果は同じ
		h.log.WarnContext(c.Request().Context(), "webhook for unknown session", slog.String("session_id", ev.SessionID))
		return c.JSON(http.StatusOK, WebhookResponse{Received: true})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, WebhookResponse{Received: true, Result: &res})
}
