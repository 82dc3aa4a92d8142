package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss 键不存在或已过期
var ErrCacheMiss = errors.New("cache miss")

// Store 键值缓存接口
//
// 值以JSON编码存储；Get在未命中时返回ErrCacheMiss，其余错误表示缓存不可用。
// DeletePattern 使用glob模式（*、?、[...]）批量删除，返回删除的键数量。
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}
