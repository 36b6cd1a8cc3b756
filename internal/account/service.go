package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"filmbase.org/internal/apperr"
	"filmbase.org/internal/auth"
)

// Service orchestrates the account lifecycle over a Store.
type Service struct {
	store    Store
	cache    Cache
	notifier Notifier
	hasher   auth.Hasher
	events   EventObserver
	logger   log.Logger
	now      func() time.Time
	newKey   func() (string, error)

	// cacheMu orders read-through fills against evictions: a lookup only
	// populates the cache if no eviction happened while it was loading.
	cacheMu sync.Mutex
	epoch   uint64
}

// Option configures Service.
type Option func(*Service) error

// WithCache sets the lookup cache.
func WithCache(c Cache) Option {
	return func(s *Service) error {
		if c != nil {
			s.cache = c
		}
		return nil
	}
}

// WithNotifier sets the mail notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) error {
		if n != nil {
			s.notifier = n
		}
		return nil
	}
}

// WithHasher overrides the password hasher.
func WithHasher(h auth.Hasher) Option {
	return func(s *Service) error {
		if h == nil {
			return errors.New("hasher is nil")
		}
		s.hasher = h
		return nil
	}
}

// WithEventObserver sets the lifecycle event counter.
func WithEventObserver(o EventObserver) Option {
	return func(s *Service) error {
		if o != nil {
			s.events = o
		}
		return nil
	}
}

// WithLogger sets the service logger.
func WithLogger(l log.Logger) Option {
	return func(s *Service) error {
		if l != nil {
			s.logger = l
		}
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// WithKeyGenerator overrides activation/reset key generation.
func WithKeyGenerator(gen func() (string, error)) Option {
	return func(s *Service) error {
		if gen != nil {
			s.newKey = gen
		}
		return nil
	}
}

// NewService constructs the account service.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("account store is required")
	}
	s := &Service{
		store:    store,
		cache:    nopCache{},
		notifier: nopNotifier{},
		hasher:   auth.BcryptHasher{},
		events:   nopEvents{},
		logger:   log.NewNopLogger(),
		now:      time.Now,
		newKey:   auth.RandomKey,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Authenticate checks a login (user name or email) and password. Every
// failure is reported as unauthorized.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*Account, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "bad credentials")
	}

	var (
		acct *Account
		err  error
	)
	if strings.Contains(login, "@") {
		acct, err = s.cachedLookup(ctx, RegionByEmail, normalizeEmail(login), s.store.FindWithRolesByEmail)
	} else {
		acct, err = s.cachedLookup(ctx, RegionByUsername, normalizeUsername(login), s.store.FindWithRolesByUsername)
	}
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			level.Debug(s.logger).Log("msg", "login for unknown account", "login", login)
			return nil, apperr.New(apperr.KindUnauthorized, "bad credentials")
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if err := s.hasher.Verify(acct.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			level.Error(s.logger).Log("msg", "password verification failed", "user", acct.Username, "err", err)
		}
		return nil, apperr.New(apperr.KindUnauthorized, "bad credentials")
	}
	if !acct.Activated {
		return nil, apperr.New(apperr.KindUnauthorized, "user %s is not activated", acct.Username)
	}
	return acct, nil
}

// CurrentAccount returns the account of the authenticated caller.
func (s *Service) CurrentAccount(ctx context.Context, id auth.Identity) (*Account, error) {
	if id.Subject == "" {
		return nil, apperr.ErrUnauthorized
	}
	acct, err := s.store.FindWithRolesByUsername(ctx, normalizeUsername(id.Subject))
	if err != nil {
		return nil, fmt.Errorf("load current account: %w", err)
	}
	return acct, nil
}

// GetUser returns an account with its roles by user name.
func (s *Service) GetUser(ctx context.Context, username string) (*Account, error) {
	acct, err := s.store.FindWithRolesByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "user with userName %s not found", username)
		}
		return nil, err
	}
	return acct, nil
}

// ListUsers pages through every account.
func (s *Service) ListUsers(ctx context.Context, page Page) ([]Account, int, error) {
	return s.store.List(ctx, page.Normalize())
}

// ListPublicUsers pages through activated accounts.
func (s *Service) ListPublicUsers(ctx context.Context, page Page) ([]Account, int, error) {
	return s.store.ListActivated(ctx, page.Normalize())
}

// Roles lists every known role name.
func (s *Service) Roles(ctx context.Context) ([]string, error) {
	return s.store.Roles(ctx)
}

type finder func(ctx context.Context, key string) (*Account, error)

func (s *Service) cachedLookup(ctx context.Context, region Region, key string, find finder) (*Account, error) {
	if acct, ok := s.cache.Get(ctx, region, key); ok {
		return acct, nil
	}

	s.cacheMu.Lock()
	epoch := s.epoch
	s.cacheMu.Unlock()

	acct, err := find(ctx, key)
	if err != nil {
		return nil, err
	}

	s.cacheMu.Lock()
	if s.epoch == epoch {
		s.cache.Put(ctx, region, key, acct)
	}
	s.cacheMu.Unlock()
	return acct, nil
}

// evict applies inv before the calling operation returns.
func (s *Service) evict(ctx context.Context, inv Invalidation) error {
	if inv.Empty() {
		return nil
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.epoch++
	if err := inv.Apply(ctx, s.cache); err != nil {
		level.Error(s.logger).Log("msg", "cache eviction failed", "usernames", strings.Join(inv.Usernames, ","), "err", err)
		return fmt.Errorf("evict cached account: %w", err)
	}
	return nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *Service) generateKey() (string, error) {
	key, err := s.newKey()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	if len(key) > auth.KeyLength {
		key = key[:auth.KeyLength]
	}
	return key, nil
}

// existingRoles keeps the requested roles that exist in the store.
func (s *Service) existingRoles(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	known, err := s.store.Roles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	index := make(map[string]string, len(known))
	for _, r := range known {
		index[strings.ToUpper(r)] = r
	}
	var out []string
	seen := make(map[string]struct{})
	for _, r := range requested {
		name, ok := index[strings.ToUpper(strings.TrimSpace(r))]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
