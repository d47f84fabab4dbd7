package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_PassthroughWithoutRedis(t *testing.T) {
	c := New(nil, time.Minute)
	assert.False(t, c.Enabled())

	calls := 0
	fn := func(context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Load(context.Background(), c, "estimates", "k", fn)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, v)
	}
	assert.Equal(t, 3, calls)

	hits, misses := c.Stats()
	assert.Zero(t, hits)
	assert.Equal(t, int64(3), misses)
}

func TestLoad_PropagatesError(t *testing.T) {
	c := New(nil, time.Minute)
	boom := errors.New("boom")

	v, err := Load(context.Background(), c, "estimates", "k", func(context.Context) (int, error) {
		return 7, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, v)
}

func TestLoad_CollapsesConcurrentCalls(t *testing.T) {
	c := New(nil, time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Load(context.Background(), c, "estimates", "same", fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// give every goroutine time to join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestBump_ChangesGeneration(t *testing.T) {
	c := New(nil, time.Minute)
	ctx := context.Background()

	before := c.Generation(ctx, "estimates")
	c.Bump(ctx, "estimates")
	assert.Equal(t, before+1, c.Generation(ctx, "estimates"))
}

func TestLoad_DegradesWhenRedisUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := New(client, time.Minute)
	assert.True(t, c.Enabled())

	v, err := Load(context.Background(), c, "estimates", "k", func(context.Context) (string, error) {
		return "computed", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "computed", v)

	c.Bump(context.Background(), "estimates")
}

func TestKey_Stable(t *testing.T) {
	assert.Equal(t, Key("box", "kraft", "100"), Key("box", "kraft", "100"))
	assert.NotEqual(t, Key("box", "kraft", "100"), Key("box", "kraft100"))
	assert.Len(t, Key("x"), 24)
}
