package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"filmbase.org/internal/account"
)

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(0)
	acct := &account.Account{ID: "1", Username: "alice01", PasswordHash: "hash", Roles: []string{"USER"}}
	c.Put(ctx, account.RegionByUsername, "alice01", acct)
	acct.Roles[0] = "ADMIN"

	got, ok := c.Get(ctx, account.RegionByUsername, "alice01")
	require.True(t, ok)
	require.Equal(t, []string{"USER"}, got.Roles)
	require.Equal(t, "hash", got.PasswordHash)
	got.Username = "changed"

	again, ok := c.Get(ctx, account.RegionByUsername, "alice01")
	require.True(t, ok)
	require.Equal(t, "alice01", again.Username)

	_, ok = c.Get(ctx, account.RegionByEmail, "alice01")
	require.False(t, ok)
}

func TestMemoryExpiryAndEvict(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory(time.Minute)
	c.now = func() time.Time { return now }

	c.Put(ctx, account.RegionByEmail, "a@x.com", &account.Account{ID: "1"})
	c.Put(ctx, account.RegionByEmail, "b@x.com", &account.Account{ID: "2"})
	require.Equal(t, 2, c.Len())

	require.NoError(t, c.Evict(ctx, account.RegionByEmail, "b@x.com"))
	_, ok := c.Get(ctx, account.RegionByEmail, "b@x.com")
	require.False(t, ok)

	now = now.Add(59 * time.Second)
	_, ok = c.Get(ctx, account.RegionByEmail, "a@x.com")
	require.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get(ctx, account.RegionByEmail, "a@x.com")
	require.False(t, ok)
	require.Zero(t, c.Len())

	require.NoError(t, c.Evict(ctx, account.RegionByUsername, "never-stored"))
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("FILMBASE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FILMBASE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedis(client, "filmbase-test:"+time.Now().Format("150405.000"), time.Minute, nil)
	require.NoError(t, c.Ping(ctx))

	reset := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.Put(ctx, account.RegionByUsername, "bob0001", &account.Account{
		ID:           "1",
		Username:     "bob0001",
		PasswordHash: "$2a$04$hash",
		ResetKey:     "reset-key",
		ResetDate:    &reset,
		Activated:    true,
		Roles:        []string{"USER"},
	})

	got, ok := c.Get(ctx, account.RegionByUsername, "bob0001")
	require.True(t, ok)
	require.Equal(t, "$2a$04$hash", got.PasswordHash)
	require.Equal(t, "reset-key", got.ResetKey)
	require.True(t, reset.Equal(*got.ResetDate))
	require.Equal(t, []string{"USER"}, got.Roles)

	require.NoError(t, c.Evict(ctx, account.RegionByUsername, "bob0001"))
	_, ok = c.Get(ctx, account.RegionByUsername, "bob0001")
	require.False(t, ok)
}
