package cache

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestMemoryStoreTTL(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(clk.Now)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", payload{Name: "a", Count: 1}, 30*time.Second))

	var got payload
	ok, err := store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.Name)

	clk.now = clk.now.Add(30 * time.Second)
	ok, err = store.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, store.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", payload{Name: "a"}, time.Minute))

	var first payload
	_, _ = store.Get(ctx, "k", &first)
	first.Name = "mutated"

	var second payload
	_, _ = store.Get(ctx, "k", &second)
	require.Equal(t, "a", second.Name)
}

func TestMemoryStoreDeleteClear(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, store.Set(ctx, "b", 2, time.Minute))

	require.NoError(t, store.Delete(ctx, "a"))
	var n int
	ok, _ := store.Get(ctx, "a", &n)
	require.False(t, ok)
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Clear(ctx))
	require.Equal(t, 0, store.Len())
}

func TestMemoryStoreSnapshotRestore(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	src := NewMemoryStore(clk.Now)
	ctx := context.Background()
	require.NoError(t, src.Set(ctx, "long", payload{Name: "kept"}, time.Hour))
	require.NoError(t, src.Set(ctx, "short", payload{Name: "dropped"}, time.Second))

	var buf bytes.Buffer
	require.NoError(t, src.Snapshot(&buf))

	clk.now = clk.now.Add(2 * time.Second)
	dst := NewMemoryStore(clk.Now)
	require.NoError(t, dst.Restore(&buf))
	require.Equal(t, 1, dst.Len())

	var got payload
	ok, err := dst.Get(ctx, "long", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "kept", got.Name)
}

func TestMemoryStoreSweepsExpiredEntriesOnWrite(t *testing.T) {
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	store := NewMemoryStore(clk.Now)
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("inventory:kit|v%d:1", i), i, 30*time.Second))
	}
	require.Equal(t, 5000, store.Retained())

	clk.now = clk.now.Add(time.Hour)
	require.NoError(t, store.Set(ctx, "fresh", 1, 30*time.Second))
	require.Equal(t, 1, store.Retained())
	require.Equal(t, 1, store.Len())
}

func TestBoundedMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := NewBoundedMemoryStore(nil, 2)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, store.Set(ctx, "b", 2, time.Minute))

	var n int
	ok, _ := store.Get(ctx, "a", &n)
	require.True(t, ok)
	require.NoError(t, store.Set(ctx, "c", 3, time.Minute))

	require.Equal(t, 2, store.Retained())
	ok, _ = store.Get(ctx, "b", &n)
	require.False(t, ok, "b was the least recently used")
	ok, _ = store.Get(ctx, "a", &n)
	require.True(t, ok)
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewRedisStore(client, "bundles:")
	other := NewRedisStore(client, "other:")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, Key("demo.myshopify.com", "bundle", "1"), payload{Name: "x", Count: 2}, time.Minute))
	require.True(t, mr.Exists("bundles:demo.myshopify.com:bundle:1"))

	var got payload
	ok, err := store.Get(ctx, Key("demo.myshopify.com", "bundle", "1"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, got.Count)

	mr.FastForward(time.Minute)
	ok, err = store.Get(ctx, Key("demo.myshopify.com", "bundle", "1"), &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, other.Set(ctx, "keep", payload{Name: "y"}, time.Minute))
	require.True(t, mr.Exists("other:keep"))
	require.NoError(t, store.Clear(ctx))
	require.False(t, mr.Exists("bundles:a"))
	require.True(t, mr.Exists("other:keep"))
}

func TestKeyAndNop(t *testing.T) {
	require.Equal(t, "shop:inventory:b1|v1:2", Key("shop", "", "inventory", " b1|v1:2 "))

	var n Nop
	ok, err := n.Get(context.Background(), "x", new(int))
	require.NoError(t, err)
	require.False(t, ok)
}
