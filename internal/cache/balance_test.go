package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"binance-futures-trader/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_StoreAndRead(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_, err := c.LastBalance(ctx, "USDT")
	assert.ErrorIs(t, err, ErrCacheMiss)

	now := time.Now().UTC()
	require.NoError(t, c.StoreBalance(ctx, BalanceSnapshot{Asset: "USDT", Balance: "500", FetchedAt: now}))
	require.NoError(t, c.StoreBalance(ctx, BalanceSnapshot{Asset: "USDT", Balance: "450.25", FetchedAt: now.Add(time.Second)}))

	snap, err := c.LastBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, "450.25", snap.Balance)
	assert.Equal(t, now.Add(time.Second), snap.FetchedAt)

	_, err = c.LastBalance(ctx, "BTC")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.StoreBalance(ctx, BalanceSnapshot{Asset: "USDT", Balance: "1"})
		}()
		go func() {
			defer wg.Done()
			_, _ = c.LastBalance(ctx, "USDT")
		}()
	}
	wg.Wait()

	snap, err := c.LastBalance(ctx, "USDT")
	require.NoError(t, err)
	assert.Equal(t, "1", snap.Balance)
}

func TestNewCacheService_Disabled(t *testing.T) {
	cs, err := NewCacheService(config.RedisConfig{Enabled: false}, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, cs)
}

func TestCacheService_DegradedWhenRedisUnreachable(t *testing.T) {
	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: "127.0.0.1:1"}, zerolog.Nop())
	require.NoError(t, err)
	defer cs.Close()

	assert.False(t, cs.IsHealthy())
	assert.Equal(t, "127.0.0.1:1", cs.GetStats().Address)

	ctx := context.Background()
	assert.Error(t, cs.StoreBalance(ctx, BalanceSnapshot{Asset: "USDT", Balance: "1"}))
	_, err = cs.LastBalance(ctx, "USDT")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestLastBalanceKey(t *testing.T) {
	assert.Equal(t, "balance:USDT:last", LastBalanceKey("USDT"))
}
