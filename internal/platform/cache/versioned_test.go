package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Versioned, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "locations", time.Minute), client
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls int32
	loader := func(context.Context) (any, error) {
		n := atomic.AddInt32(&calls, 1)
		return []string{"WH-01", string(rune('A' + n - 1))}, nil
	}

	key, err := c.BuildKey(ctx, "active")
	require.NoError(t, err)
	require.Equal(t, "locations:active:1", key)

	var first []string
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	var second []string
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	require.NoError(t, c.Bump(ctx))
	key, err = c.BuildKey(ctx, "active")
	require.NoError(t, err)
	require.Equal(t, "locations:active:2", key)

	var third []string
	require.NoError(t, c.FetchJSON(ctx, key, &third, loader))
	require.Equal(t, []string{"WH-01", "B"}, third)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchJSONCoalescesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	key, err := c.BuildKey(ctx, "active")
	require.NoError(t, err)

	var calls int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return map[string]int{"count": 3}, nil
	}

	var wg sync.WaitGroup
	results := make([]map[string]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, c.FetchJSON(ctx, key, &results[i], loader))
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		require.Equal(t, 3, r["count"])
	}
	require.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestNilClientFallsBackToLoader(t *testing.T) {
	c := NewVersioned(nil, "locations", time.Minute)
	var out []int
	require.NoError(t, c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return []int{1, 2}, nil
	}))
	require.Equal(t, []int{1, 2}, out)
	require.NoError(t, c.Bump(context.Background()))
}

func TestBumpPublishesVersion(t *testing.T) {
	c, client := newTestCache(t)
	ctx := context.Background()
	sub := client.Subscribe(ctx, c.Channel())
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	_, err = c.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	require.NoError(t, err)
	require.Equal(t, "2", msg.Payload)
}
