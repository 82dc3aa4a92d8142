package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bundle struct {
	TeamID   string    `json:"team_id"`
	Velocity float64   `json:"velocity"`
	Series   []float64 `json:"series"`
}

func newRedisStore(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// storeContract 对任意Store实现运行相同的行为检查
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("写入后读取", func(t *testing.T) {
		in := bundle{TeamID: "t1", Velocity: 60, Series: []float64{80, 40, 60}}
		require.NoError(t, store.Set(ctx, "metrics:team:t1", in, time.Minute))

		var out bundle
		require.NoError(t, store.Get(ctx, "metrics:team:t1", &out))
		assert.Equal(t, in, out)
	})

	t.Run("删除后未命中", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "metrics:task:x", bundle{TeamID: "t1"}, time.Minute))
		require.NoError(t, store.Delete(ctx, "metrics:task:x"))

		var out bundle
		err := store.Get(ctx, "metrics:task:x", &out)
		assert.True(t, errors.Is(err, ErrCacheMiss))
	})

	t.Run("不存在的键", func(t *testing.T) {
		var out bundle
		assert.ErrorIs(t, store.Get(ctx, "metrics:missing", &out), ErrCacheMiss)
	})

	t.Run("按模式删除", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "metrics:team_metrics:team_id=a", 1, time.Minute))
		require.NoError(t, store.Set(ctx, "metrics:team_workload:team_id=a", 2, time.Minute))
		require.NoError(t, store.Set(ctx, "metrics:team_metrics:team_id=b", 3, time.Minute))

		n, err := store.DeletePattern(ctx, "metrics:*team_id=a*")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		var v int
		assert.ErrorIs(t, store.Get(ctx, "metrics:team_metrics:team_id=a", &v), ErrCacheMiss)
		require.NoError(t, store.Get(ctx, "metrics:team_metrics:team_id=b", &v))
		assert.Equal(t, 3, v)
	})
}

func TestRedisClient_Contract(t *testing.T) {
	store, _ := newRedisStore(t)
	storeContract(t, store)
}

func TestMemoryStore_Contract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisClient_TTL(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "metrics:ttl", bundle{TeamID: "t"}, 15*time.Minute))
	assert.Equal(t, 15*time.Minute, mr.TTL("metrics:ttl"))

	mr.FastForward(16 * time.Minute)

	var out bundle
	assert.ErrorIs(t, store.Get(ctx, "metrics:ttl", &out), ErrCacheMiss)
}

func TestRedisClient_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	var out bundle
	err := store.Get(context.Background(), "metrics:any", &out)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", 1, time.Hour))

	var v int
	require.NoError(t, store.Get(ctx, "k", &v))

	now = now.Add(time.Hour)
	assert.ErrorIs(t, store.Get(ctx, "k", &v), ErrCacheMiss)
}
