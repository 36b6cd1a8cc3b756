package account

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"

	"filmbase.org/internal/auth"
)

// SeedAccount describes an account created on first boot.
type SeedAccount struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Roles     []string
}

// SeedDefaults ensures the built-in roles exist and, when the store holds no
// accounts yet, creates the given activated accounts. It reports whether
// anything was seeded.
func (s *Service) SeedDefaults(ctx context.Context, seeds []SeedAccount) (bool, error) {
	for _, role := range []string{auth.RoleAdmin, auth.RoleUser} {
		if err := s.store.EnsureRole(ctx, role); err != nil {
			return false, fmt.Errorf("ensure role %s: %w", role, err)
		}
	}

	n, err := s.store.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	if n > 0 {
		level.Info(s.logger).Log("msg", "database already initialized, skipping account seeding")
		return false, nil
	}

	for _, seed := range seeds {
		hash, err := s.hashPassword(seed.Password)
		if err != nil {
			return false, err
		}
		roles, err := s.existingRoles(ctx, seed.Roles)
		if err != nil {
			return false, err
		}
		acct := &Account{
			Username:     normalizeUsername(seed.Username),
			Email:        normalizeEmail(seed.Email),
			FirstName:    seed.FirstName,
			LastName:     seed.LastName,
			LangKey:      DefaultLangKey,
			PasswordHash: hash,
			Activated:    true,
			Roles:        roles,
		}
		acct.Stamp(SystemActor, s.now())
		if err := s.store.Create(ctx, acct); err != nil {
			return false, fmt.Errorf("seed %s: %w", acct.Username, err)
		}
		level.Info(s.logger).Log("msg", "seeded account", "user", acct.Username, "roles", fmt.Sprint(roles))
	}
	return len(seeds) > 0, nil
}
