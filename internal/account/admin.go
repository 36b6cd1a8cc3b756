package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-kit/log/level"

	"filmbase.org/internal/apperr"
)

// CreateUser creates an activated account on behalf of actor. The account
// gets a throwaway password and an open reset window; the invitee receives
// a reset mail to choose their own password.
func (s *Service) CreateUser(ctx context.Context, actor string, in AdminUser) (*Account, error) {
	if strings.TrimSpace(in.ID) != "" {
		return nil, apperr.New(apperr.KindInvalidInput, "a new user cannot already have an ID")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	username := normalizeUsername(in.Username)
	email := normalizeEmail(in.Email)

	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return nil, apperr.ErrUsernameAlreadyUsed
	} else if !isNotFound(err) {
		return nil, fmt.Errorf("lookup user name: %w", err)
	}
	if email != "" {
		if _, err := s.store.FindByEmail(ctx, email); err == nil {
			return nil, apperr.ErrEmailAlreadyUsed
		} else if !isNotFound(err) {
			return nil, fmt.Errorf("lookup email: %w", err)
		}
	}

	password, err := s.generateKey()
	if err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	resetKey, err := s.generateKey()
	if err != nil {
		return nil, err
	}
	roles, err := s.existingRoles(ctx, in.Roles)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	langKey := strings.TrimSpace(in.LangKey)
	if langKey == "" {
		langKey = DefaultLangKey
	}
	acct := &Account{
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		ImageURL:     strings.TrimSpace(in.ImageURL),
		LangKey:      langKey,
		PasswordHash: hash,
		Activated:    true,
		ResetKey:     resetKey,
		ResetDate:    &now,
		Roles:        roles,
	}
	acct.Stamp(actor, now)

	if err := s.store.Create(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
		return nil, err
	}

	s.notifier.SendPasswordResetEmail(ctx, acct.Clone())
	s.events.ObserveEvent("admin_created")
	level.Info(s.logger).Log("msg", "user created by administrator", "user", acct.Username, "actor", actor)
	return acct, nil
}

// UpdateUser overwrites the account fields and merges additional roles.
// Roles not mentioned in the request are kept.
func (s *Service) UpdateUser(ctx context.Context, actor string, in AdminUser) (*Account, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, apperr.New(apperr.KindInvalidInput, "user id is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	username := normalizeUsername(in.Username)
	email := normalizeEmail(in.Email)

	if email != "" {
		other, err := s.store.FindByEmail(ctx, email)
		switch {
		case err == nil && other.ID != id:
			return nil, apperr.ErrEmailAlreadyUsed
		case err != nil && !isNotFound(err):
			return nil, fmt.Errorf("lookup email: %w", err)
		}
	}
	other, err := s.store.FindByUsername(ctx, username)
	switch {
	case err == nil && other.ID != id:
		return nil, apperr.ErrUsernameAlreadyUsed
	case err != nil && !isNotFound(err):
		return nil, fmt.Errorf("lookup user name: %w", err)
	}

	acct, err := s.store.FindByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "user with userName %s not found", in.Username)
		}
		return nil, err
	}
	requested, err := s.existingRoles(ctx, in.Roles)
	if err != nil {
		return nil, err
	}
	before := acct.Clone()

	acct.Username = username
	acct.FirstName = strings.TrimSpace(in.FirstName)
	acct.LastName = strings.TrimSpace(in.LastName)
	if email != "" {
		acct.Email = email
	}
	acct.ImageURL = strings.TrimSpace(in.ImageURL)
	acct.Activated = in.Activated
	if acct.Activated {
		acct.ActivationKey = ""
	}
	acct.LangKey = strings.TrimSpace(in.LangKey)
	if acct.LangKey == "" {
		acct.LangKey = DefaultLangKey
	}
	acct.Stamp(actor, s.now())

	if err := s.store.Update(ctx, acct); err != nil {
		return nil, err
	}
	// The update is committed; cached lookups must go even if roles fail.
	inv := InvalidationFor(&before, acct)

	var added []string
	for _, r := range requested {
		if !acct.HasRole(r) {
			added = append(added, r)
		}
	}
	if len(added) > 0 {
		if err := s.store.AssignRoles(ctx, acct.ID, added); err != nil {
			return nil, errors.Join(fmt.Errorf("assign roles: %w", err), s.evict(ctx, inv))
		}
		acct.Roles = append(acct.Roles, added...)
	}

	if err := s.evict(ctx, inv); err != nil {
		return nil, err
	}
	s.events.ObserveEvent("admin_updated")
	level.Debug(s.logger).Log("msg", "changed information for user", "user", acct.Username, "actor", actor)
	return acct, nil
}

// DeleteUser removes the account named username.
func (s *Service) DeleteUser(ctx context.Context, actor, username string) error {
	acct, err := s.store.FindByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if isNotFound(err) {
			return apperr.New(apperr.KindNotFound, "user with userName %s not found", username)
		}
		return err
	}
	if err := s.store.Delete(ctx, acct.ID); err != nil {
		if isNotFound(err) {
			return apperr.New(apperr.KindNotFound, "user with userName %s not found", username)
		}
		return err
	}
	if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
		return err
	}
	s.events.ObserveEvent("admin_deleted")
	level.Info(s.logger).Log("msg", "user deleted by administrator", "user", acct.Username, "actor", actor)
	return nil
}
