package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filmbase.org/internal/account"
	"filmbase.org/internal/apperr"
)

func TestStoreUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureRole(ctx, "USER"))

	first := &account.Account{Username: "alice01", Email: "alice@x.com", Roles: []string{"USER", "GHOST"}}
	require.NoError(t, s.Create(ctx, first))
	require.NotEmpty(t, first.ID)
	require.Equal(t, []string{"USER"}, first.Roles)

	err := s.Create(ctx, &account.Account{Username: "alice01", Email: "other@x.com"})
	require.ErrorIs(t, err, apperr.ErrUsernameAlreadyUsed)

	err = s.Create(ctx, &account.Account{Username: "alice02", Email: "ALICE@x.com"})
	require.ErrorIs(t, err, apperr.ErrEmailAlreadyUsed)

	require.NoError(t, s.Create(ctx, &account.Account{Username: "nomail01"}))
	require.NoError(t, s.Create(ctx, &account.Account{Username: "nomail02"}))
}

func TestStoreFindersReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureRole(ctx, "USER"))
	acct := &account.Account{Username: "bob0001", Email: "bob@x.com", ActivationKey: "act-key", Roles: []string{"USER"}}
	require.NoError(t, s.Create(ctx, acct))

	got, err := s.FindByActivationKey(ctx, "act-key")
	require.NoError(t, err)
	require.Nil(t, got.Roles)
	got.Username = "mutated"

	again, err := s.FindWithRolesByEmail(ctx, "BOB@X.COM")
	require.NoError(t, err)
	require.Equal(t, "bob0001", again.Username)
	require.Equal(t, []string{"USER"}, again.Roles)

	_, err = s.FindByResetKey(ctx, "")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStoreDeleteUnactivated(t *testing.T) {
	ctx := context.Background()
	s := New()
	pending := &account.Account{Username: "pending1", ActivationKey: "k1"}
	active := &account.Account{Username: "active01", Activated: true}
	require.NoError(t, s.Create(ctx, pending))
	require.NoError(t, s.Create(ctx, active))

	require.ErrorIs(t, s.DeleteUnactivated(ctx, active.ID), apperr.ErrNotFound)
	require.NoError(t, s.DeleteUnactivated(ctx, pending.ID))
	require.ErrorIs(t, s.DeleteUnactivated(ctx, pending.ID), apperr.ErrNotFound)
}

func TestStoreStaleRegistrationsAndPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-31 * 24 * time.Hour)

	require.NoError(t, s.Create(ctx, &account.Account{Username: "stale001", ActivationKey: "k", CreatedAt: old}))
	require.NoError(t, s.Create(ctx, &account.Account{Username: "fresh001", ActivationKey: "k2", CreatedAt: now}))
	require.NoError(t, s.Create(ctx, &account.Account{Username: "oldactive", Activated: true, CreatedAt: old}))

	stale, err := s.FindStaleRegistrations(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "stale001", stale[0].Username)

	items, total, err := s.List(ctx, account.Page{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 1)

	active, total, err := s.ListActivated(ctx, account.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "oldactive", active[0].Username)
}

func TestStoreAssignRolesMerges(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.EnsureRole(ctx, "USER"))
	require.NoError(t, s.EnsureRole(ctx, "ADMIN"))
	acct := &account.Account{Username: "carol01", Roles: []string{"USER"}}
	require.NoError(t, s.Create(ctx, acct))

	require.NoError(t, s.AssignRoles(ctx, acct.ID, []string{"ADMIN", "USER"}))
	got, err := s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"USER", "ADMIN"}, got.Roles)

	roles, err := s.Roles(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"ADMIN", "USER"}, roles)
}
