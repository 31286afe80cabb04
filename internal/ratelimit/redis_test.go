package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test"), mr
}

func TestRedisStore_CountsWithinWindow(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	e, err := store.Incr(ctx, "org:user", time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
	assert.WithinDuration(t, now.Add(time.Hour), e.ResetAt, time.Second)

	e, err = store.Incr(ctx, "org:user", time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Count)

	assert.True(t, mr.Exists("test:org:user"))
}

func TestRedisStore_WindowExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Incr(ctx, "k", time.Minute, time.Now())
		require.NoError(t, err)
	}

	mr.FastForward(61 * time.Second)

	e, err := store.Incr(ctx, "k", time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
}

func TestRedisStore_LimiterDeniesAcrossInstances(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	a := NewLimiter(store, 2, time.Hour, nil)
	b := NewLimiter(store, 2, time.Hour, nil)

	d, _ := a.Allow(ctx, testIdentity)
	assert.True(t, d.Allowed)
	d, _ = b.Allow(ctx, testIdentity)
	assert.True(t, d.Allowed)
	d, _ = a.Allow(ctx, testIdentity)
	assert.False(t, d.Allowed)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	_, err := store.Incr(context.Background(), "k", time.Minute, time.Now())
	assert.Error(t, err)

	l := NewLimiter(store, 1, time.Hour, nil)
	d, err := l.Allow(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestNewRedisClient_RequiresAddr(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestNewRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), RedisConfig{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	_ = client.Close()
}
