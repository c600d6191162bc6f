package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/domain/model"
	repo "github.com/CanerDoqdu/donut-shop-first-ts-23-sub000/internal/repository"
)

var (
	//400 入力不足
	ErrValidation = errors.New("validation error")
	//401
	ErrUnauthorized = errors.New("unauthorized")
	//404
	ErrNotFound = errors.New("not found")
	//500
	ErrInternal = errors.New("internal error")

	// カートが空、数量が0以下、存在しない商品
	ErrInvalidCart = errors.New("invalid cart")
	ErrOutOfStock  = errors.New("out of stock")

	// 残高不足（記帳は何もしない）
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrCardInactiveOrExpired = errors.New("card inactive or expired")

	ErrInvalidTransition    = model.ErrInvalidTransition
	ErrDuplicateSchedule    = errors.New("duplicate schedule")
	ErrSubscriptionInactive = errors.New("subscription not active")

	ErrPaymentGateway = errors.New("payment gateway error")

	// 楽観ロック失敗。呼び出し側で再試行する
	ErrPersistenceConflict = errors.New("persistence conflict")
)

var kindStatus = map[error]int{
	ErrValidation:            http.StatusBadRequest,
	ErrUnauthorized:          http.StatusUnauthorized,
	ErrNotFound:              http.StatusNotFound,
	ErrInternal:              http.StatusInternalServerError,
	ErrInvalidCart:           http.StatusBadRequest,
	ErrOutOfStock:            http.StatusConflict,
	ErrInsufficientBalance:   http.StatusUnprocessableEntity,
	ErrCardInactiveOrExpired: http.StatusUnprocessableEntity,
	ErrInvalidTransition:     http.StatusConflict,
	ErrDuplicateSchedule:     http.StatusConflict,
	ErrSubscriptionInactive:  http.StatusConflict,
	ErrPaymentGateway:        http.StatusBadGateway,
	ErrPersistenceConflict:   http.StatusConflict,
}

// HTTPError は usecase 境界のエラー。Kind で種別を判定できる。
type HTTPError struct {
	Status  int
	Message string
	Kind    error
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Kind
}

// 種別からステータスを決める
func newError(kind error, message string) error {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &HTTPError{Status: status, Message: message, Kind: kind}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// repository のエラーを usecase のエラーにする
func dbError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newError(ErrNotFound, "not found")
	case errors.Is(err, repo.ErrConflict):
		return newError(ErrPersistenceConflict, "conflict, retry")
	}
	return &HTTPError{Status: http.StatusInternalServerError, Message: "db error", Kind: fmt.Errorf("%w: %w", ErrInternal, err)}
}

func isConflict(err error) bool {
	return errors.Is(err, ErrPersistenceConflict) || errors.Is(err, repo.ErrConflict)
}

// 他パッケージ（validator など）から種別付きエラーを作る
func NewError(kind error, message string) error {
	return newError(kind, message)
}
