package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redisTestAddr returns the server used by Redis tests, skipping when unset.
func redisTestAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("BTCHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BTCHAT_TEST_REDIS_ADDR not set")
	}
	return addr
}

func TestRedisStore(t *testing.T) {
	addr := redisTestAddr(t)

	runStoreContract(t, func(t *testing.T, opts ...Option) Store {
		key := fmt.Sprintf("btchat:test:%s:%d", t.Name(), time.Now().UnixNano())
		s, err := NewRedisStore(context.Background(), addr, key, opts...)
		require.NoError(t, err)
		t.Cleanup(func() {
			s.client.Del(context.Background(), key, key+":seq")
			s.Close()
		})
		return s
	})
}

func TestRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "", "")
	require.Error(t, err)

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, DriverRedis, storeErr.Driver)
	assert.Equal(t, "open", storeErr.Op)
}

func TestRedisStoreToleratesIDGaps(t *testing.T) {
	addr := redisTestAddr(t)
	ctx := context.Background()

	key := fmt.Sprintf("btchat:test:gap:%d", time.Now().UnixNano())
	s, err := NewRedisStore(ctx, addr, key)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.client.Del(ctx, key, key+":seq")
		s.Close()
	})

	first, err := s.Append(ctx, DirectionSent, "one")
	require.NoError(t, err)

	// An id allocated by INCR whose ZADD never happened.
	require.NoError(t, s.client.Incr(ctx, s.seqKey()).Err())

	second, err := s.Append(ctx, DirectionReceived, "two")
	require.NoError(t, err)
	assert.Equal(t, first.ID+2, second.ID)

	all, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []int64{first.ID, second.ID}, []int64{all[0].ID, all[1].ID})

	after, err := s.Query(ctx, Filter{AfterID: first.ID})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "two", after[0].Payload)
}
