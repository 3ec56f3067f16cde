package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/dataio-go/internal/testutil"
)

func TestRedisCacheRepo_SetGetDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer client.Close()

	repo := NewRedisCacheRepo(client, "test:dataio:")
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		ttl := 5 * time.Minute
		require.NoError(t, repo.Set(ctx, "flow:1:1", []byte(`{"id":1}`), ttl))

		got, err := repo.Get(ctx, "flow:1:1")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":1}`), got)

		actualTTL := client.TTL(ctx, "test:dataio:flow:1:1").Val()
		assert.True(t, actualTTL > 0 && actualTTL <= ttl)
	})

	t.Run("miss returns nil", func(t *testing.T) {
		got, err := repo.Get(ctx, "flow:404:1")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Set(ctx, "flow:2:1", []byte("x"), time.Minute))
		deleted, err := repo.Delete(ctx, "flow:2:1")
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.Delete(ctx, "flow:2:1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("empty key rejected", func(t *testing.T) {
		_, err := repo.Get(ctx, "")
		assert.Error(t, err)
	})
}
