package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// version 不一致・シリアライズ失敗
	ErrConflict = errors.New("conflict")
	// 一意キー違反
	ErrDuplicate = errors.New("duplicate")
)
