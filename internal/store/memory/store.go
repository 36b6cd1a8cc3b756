// Package memory is an in-process account store used for development and
// tests. It enforces the same uniqueness rules as the PostgreSQL schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"filmbase.org/internal/account"
	"filmbase.org/internal/apperr"
	"filmbase.org/internal/ids"
)

var _ account.Store = (*Store)(nil)

// Store keeps accounts in maps guarded by a single mutex.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*account.Account
	roles    map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*account.Account),
		roles:    make(map[string]struct{}),
	}
}

func (s *Store) Create(ctx context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUniqueLocked(acct, ""); err != nil {
		return err
	}
	if acct.ID == "" {
		acct.ID = ids.New()
	}
	stored := acct.Clone()
	stored.Roles = s.knownRolesLocked(stored.Roles)
	acct.Roles = append([]string(nil), stored.Roles...)
	s.accounts[stored.ID] = &stored
	return nil
}

func (s *Store) Update(ctx context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.accounts[acct.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	if err := s.checkUniqueLocked(acct, acct.ID); err != nil {
		return err
	}
	stored := acct.Clone()
	// Roles change only through AssignRoles.
	stored.Roles = current.Roles
	s.accounts[acct.ID] = &stored
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) DeleteUnactivated(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok || acct.Activated {
		return apperr.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.Account, error) {
	return s.findOne(func(a *account.Account) bool { return a.ID == id }, true)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	username = strings.ToLower(username)
	return s.findOne(func(a *account.Account) bool { return a.Username == username }, false)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.ErrNotFound
	}
	return s.findOne(func(a *account.Account) bool { return strings.EqualFold(a.Email, email) }, false)
}

func (s *Store) FindByActivationKey(ctx context.Context, key string) (*account.Account, error) {
	if key == "" {
		return nil, apperr.ErrNotFound
	}
	return s.findOne(func(a *account.Account) bool { return a.ActivationKey == key }, false)
}

func (s *Store) FindByResetKey(ctx context.Context, key string) (*account.Account, error) {
	if key == "" {
		return nil, apperr.ErrNotFound
	}
	return s.findOne(func(a *account.Account) bool { return a.ResetKey == key }, false)
}

func (s *Store) FindWithRolesByUsername(ctx context.Context, username string) (*account.Account, error) {
	username = strings.ToLower(username)
	return s.findOne(func(a *account.Account) bool { return a.Username == username }, true)
}

func (s *Store) FindWithRolesByEmail(ctx context.Context, email string) (*account.Account, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.ErrNotFound
	}
	return s.findOne(func(a *account.Account) bool { return strings.EqualFold(a.Email, email) }, true)
}

func (s *Store) FindStaleRegistrations(ctx context.Context, createdBefore time.Time) ([]account.Account, error) {
	return s.filter(func(a *account.Account) bool {
		return !a.Activated && a.ActivationKey != "" && a.CreatedAt.Before(createdBefore)
	}), nil
}

func (s *Store) List(ctx context.Context, page account.Page) ([]account.Account, int, error) {
	all := s.filter(func(*account.Account) bool { return true })
	return paginate(all, page), len(all), nil
}

func (s *Store) ListActivated(ctx context.Context, page account.Page) ([]account.Account, int, error) {
	all := s.filter(func(a *account.Account) bool { return a.Activated })
	return paginate(all, page), len(all), nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

func (s *Store) EnsureRole(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.New(apperr.KindInvalidInput, "role name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[name] = struct{}{}
	return nil
}

func (s *Store) Roles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AssignRoles(ctx context.Context, accountID string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[accountID]
	if !ok {
		return apperr.ErrNotFound
	}
	for _, r := range s.knownRolesLocked(roles) {
		if !acct.HasRole(r) {
			acct.Roles = append(acct.Roles, r)
		}
	}
	return nil
}

func (s *Store) checkUniqueLocked(acct *account.Account, selfID string) error {
	for id, other := range s.accounts {
		if id == selfID {
			continue
		}
		if other.Username == acct.Username {
			return apperr.ErrUsernameAlreadyUsed
		}
		if acct.Email != "" && strings.EqualFold(other.Email, acct.Email) {
			return apperr.ErrEmailAlreadyUsed
		}
	}
	return nil
}

func (s *Store) knownRolesLocked(roles []string) []string {
	var out []string
	for _, r := range roles {
		if _, ok := s.roles[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) findOne(match func(*account.Account) bool, withRoles bool) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if match(a) {
			out := a.Clone()
			if !withRoles {
				out.Roles = nil
			}
			return &out, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *Store) filter(match func(*account.Account) bool) []account.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []account.Account
	for _, a := range s.accounts {
		if match(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func paginate(all []account.Account, page account.Page) []account.Account {
	page = page.Normalize()
	if page.Offset >= len(all) {
		return []account.Account{}
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end]
}
