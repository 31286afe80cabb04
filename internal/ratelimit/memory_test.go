package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IncrStartsAndExtendsWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(2)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	e, err := s.Incr(ctx, "k", time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Count)
	assert.Equal(t, now.Add(time.Hour), e.ResetAt)

	e, _ = s.Incr(ctx, "k", time.Hour, now.Add(30*time.Minute))
	assert.Equal(t, 2, e.Count)
	assert.Equal(t, now.Add(time.Hour), e.ResetAt)

	e, _ = s.Incr(ctx, "k", time.Hour, now.Add(time.Hour))
	assert.Equal(t, 1, e.Count)
	assert.Equal(t, now.Add(2*time.Hour), e.ResetAt)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	now := time.Now()

	_, _ = s.Incr(ctx, "old", time.Minute, now)
	_, _ = s.Incr(ctx, "fresh", time.Hour, now)
	assert.Equal(t, 2, s.Len())

	removed, err := s.Sweep(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, s.Len())
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(1)
	now := time.Now()
	_, _ = s.Incr(ctx, "old", time.Minute, now)

	sweeper := NewSweeper(s, nil)
	sweeper.now = func() time.Time { return now.Add(time.Hour) }

	require.NoError(t, sweeper.RunOnce(ctx))
	assert.Equal(t, 0, s.Len())
}
