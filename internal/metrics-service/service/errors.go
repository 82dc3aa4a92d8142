package service

import (
	"errors"
	"fmt"

	"github.com/cloud-platform/team-metrics/internal/metrics-service/repository"
)

var (
	// ErrDataUnavailable 数据层失败或超时，可重试
	ErrDataUnavailable = errors.New("metrics data unavailable")
	// ErrCacheUnavailable 缓存不可用，读取路径上仅记录日志
	ErrCacheUnavailable = errors.New("metrics cache unavailable")
	// ErrInvalidWindow 时间窗口无效
	ErrInvalidWindow = errors.New("invalid metrics window")
	// ErrNotFound 团队、迭代或任务不存在
	ErrNotFound = errors.New("metrics subject not found")
	// ErrInvalidPeriod 报告周期无效
	ErrInvalidPeriod = errors.New("invalid report period")
	// ErrInvalidTransition 告警当前状态不允许该操作
	ErrInvalidTransition = errors.New("alert status does not allow this operation")
)

// dataError 将数据层错误转换为服务层错误
func dataError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrDataUnavailable, err)
}

func cacheError(err error) error {
	return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
}
