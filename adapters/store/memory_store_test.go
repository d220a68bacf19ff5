package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/certify/core"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Consume(t *testing.T) {
	s := NewMemoryStore()
	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := s.Consume(ctx, "sig-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Consume(ctx, "sig-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second use within ttl")

	ok, err = s.Consume(ctx, "sig-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())

	now = now.Add(time.Minute)
	assert.Equal(t, 0, s.Len())
	ok, err = s.Consume(ctx, "sig-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "key forgotten after ttl")
}

func TestMemoryStore_ConcurrentConsume(t *testing.T) {
	s := NewMemoryStore()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Consume(context.Background(), "same", time.Minute)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Consume(ctx, "k", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrLedgerUnavailable))
	assert.Equal(t, core.ReasonNetworkError, core.ReasonFor(err))
	assert.Equal(t, 0, s.Len())
}
