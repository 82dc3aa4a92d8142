package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrTimeout 查询超时
	ErrTimeout = errors.New("query timed out")
	// ErrInvalidTransition 告警状态不允许该操作
	ErrInvalidTransition = errors.New("invalid alert status transition")
)

// translateError 统一转换底层错误
func translateError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
