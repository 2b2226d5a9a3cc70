package keystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	clk := &stepClock{now: time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clk)

	t.Run("Set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "a", "1", time.Minute))
		value, ok, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", value)
	})

	t.Run("Expired key reads as absent", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "b", "2", time.Minute))
		clk.now = clk.now.Add(time.Minute)
		_, ok, err := store.Get(ctx, "b")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SetNX only claims free keys", func(t *testing.T) {
		ok, err := store.SetNX(ctx, "c", "first", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.SetNX(ctx, "c", "second", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		clk.now = clk.now.Add(2 * time.Minute)
		ok, err = store.SetNX(ctx, "c", "third", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		value, _, _ := store.Get(ctx, "c")
		assert.Equal(t, "third", value)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "d", "4", time.Minute))
		require.NoError(t, store.Delete(ctx, "d"))
		_, ok, _ := store.Get(ctx, "d")
		assert.False(t, ok)
		assert.NoError(t, store.Delete(ctx, "never-set"))
	})

	t.Run("Incr counts within the window and restarts after expiry", func(t *testing.T) {
		n, err := store.Incr(ctx, "e", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		clk.now = clk.now.Add(30 * time.Second)
		n, err = store.Incr(ctx, "e", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		clk.now = clk.now.Add(31 * time.Second)
		n, err = store.Incr(ctx, "e", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}
