package account_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"filmbase.org/internal/account"
	"filmbase.org/internal/auth"
	"filmbase.org/internal/cache"
	"filmbase.org/internal/store/memory"
)

type sentMail struct {
	kind string
	acct account.Account
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) record(kind string, a account.Account) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, acct: a})
}

func (n *recordingNotifier) SendActivationEmail(_ context.Context, a account.Account) {
	n.record("activation", a)
}

func (n *recordingNotifier) SendCreationEmail(_ context.Context, a account.Account) {
	n.record("creation", a)
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, a account.Account) {
	n.record("reset", a)
}

func (n *recordingNotifier) mails() []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMail(nil), n.sent...)
}

func (n *recordingNotifier) last(t *testing.T) sentMail {
	t.Helper()
	mails := n.mails()
	require.NotEmpty(t, mails)
	return mails[len(mails)-1]
}

type eviction struct {
	region account.Region
	key    string
}

// recordingCache wraps a real cache and remembers evictions.
type recordingCache struct {
	account.Cache
	mu      sync.Mutex
	evicted []eviction
}

func (c *recordingCache) Evict(ctx context.Context, region account.Region, key string) error {
	c.mu.Lock()
	c.evicted = append(c.evicted, eviction{region: region, key: key})
	c.mu.Unlock()
	return c.Cache.Evict(ctx, region, key)
}

func (c *recordingCache) evictions() []eviction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eviction(nil), c.evicted...)
}

func (c *recordingCache) reset() {
	c.mu.Lock()
	c.evicted = nil
	c.mu.Unlock()
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *account.Service
	store    *memory.Store
	notifier *recordingNotifier
	cache    *recordingCache
	clock    *clock
}

func newFixture(t *testing.T, opts ...account.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.New(),
		notifier: &recordingNotifier{},
		cache:    &recordingCache{Cache: cache.NewMemory(time.Hour)},
		clock:    &clock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
	}
	base := []account.Option{
		account.WithNotifier(f.notifier),
		account.WithCache(f.cache),
		account.WithClock(f.clock.Now),
		account.WithHasher(auth.BcryptHasher{Cost: bcrypt.MinCost}),
	}
	svc, err := account.NewService(f.store, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) register(t *testing.T, username, email, password string) *account.Account {
	t.Helper()
	acct, err := f.svc.Register(context.Background(), account.Registration{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return acct
}

func (f *fixture) registerActivated(t *testing.T, username, email, password string) *account.Account {
	t.Helper()
	acct := f.register(t, username, email, password)
	activated, err := f.svc.Activate(context.Background(), acct.ActivationKey)
	require.NoError(t, err)
	return activated
}
