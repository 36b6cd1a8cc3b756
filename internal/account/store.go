package account

import (
	"context"
	"time"
)

// Store persists accounts and role assignments. Finders return
// apperr.ErrNotFound when nothing matches; unique violations surface as
// apperr.ErrUsernameAlreadyUsed or apperr.ErrEmailAlreadyUsed.
type Store interface {
	Create(ctx context.Context, acct *Account) error
	Update(ctx context.Context, acct *Account) error
	Delete(ctx context.Context, id string) error
	// DeleteUnactivated removes the account only while it is still
	// unactivated; otherwise it reports apperr.ErrNotFound.
	DeleteUnactivated(ctx context.Context, id string) error

	FindByID(ctx context.Context, id string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByActivationKey(ctx context.Context, key string) (*Account, error)
	FindByResetKey(ctx context.Context, key string) (*Account, error)

	// Login path variants load roles in the same round trip.
	FindWithRolesByUsername(ctx context.Context, username string) (*Account, error)
	FindWithRolesByEmail(ctx context.Context, email string) (*Account, error)

	FindStaleRegistrations(ctx context.Context, createdBefore time.Time) ([]Account, error)
	List(ctx context.Context, page Page) ([]Account, int, error)
	ListActivated(ctx context.Context, page Page) ([]Account, int, error)
	Count(ctx context.Context) (int, error)

	EnsureRole(ctx context.Context, name string) error
	Roles(ctx context.Context) ([]string, error)
	// AssignRoles adds roles to the account, keeping existing ones.
	AssignRoles(ctx context.Context, accountID string, roles []string) error
}
