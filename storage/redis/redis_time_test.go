package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Now(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("server time close to local time", func(t *testing.T) {
		serverTime, err := store.Now(ctx)
		require.NoError(t, err)

		diff := serverTime.Sub(time.Now().UTC())
		if diff < 0 {
			diff = -diff
		}
		assert.Less(t, diff, 5*time.Second, "Server time should be close to local time")
	})

	t.Run("server time is UTC", func(t *testing.T) {
		serverTime, err := store.Now(ctx)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, serverTime.Location())
	})

	t.Run("monotonic across calls", func(t *testing.T) {
		time1, err := store.Now(ctx)
		require.NoError(t, err)

		time.Sleep(100 * time.Millisecond)

		time2, err := store.Now(ctx)
		require.NoError(t, err)
		assert.True(t, time2.After(time1) || time2.Equal(time1))
	})
}
