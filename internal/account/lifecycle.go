package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/log/level"

	"filmbase.org/internal/apperr"
	"filmbase.org/internal/auth"
)

// Register creates an unactivated account and sends its activation key.
// An unactivated account already holding the user name or email is treated
// as an abandoned registration and removed first, unless it is younger than
// RegistrationGrace.
func (s *Service) Register(ctx context.Context, reg Registration) (*Account, error) {
	if err := reg.validate(); err != nil {
		return nil, err
	}
	if err := CheckPasswordPolicy(reg.Password); err != nil {
		return nil, err
	}
	username := normalizeUsername(reg.Username)
	email := normalizeEmail(reg.Email)

	existing, err := s.store.FindByUsername(ctx, username)
	switch {
	case err == nil:
		if err := s.removeNonActivated(ctx, existing, apperr.ErrUsernameAlreadyUsed); err != nil {
			return nil, err
		}
	case !isNotFound(err):
		return nil, fmt.Errorf("lookup user name: %w", err)
	}
	if email != "" {
		existing, err = s.store.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if err := s.removeNonActivated(ctx, existing, apperr.ErrEmailAlreadyUsed); err != nil {
				return nil, err
			}
		case !isNotFound(err):
			return nil, fmt.Errorf("lookup email: %w", err)
		}
	}

	hash, err := s.hashPassword(reg.Password)
	if err != nil {
		return nil, err
	}
	key, err := s.generateKey()
	if err != nil {
		return nil, err
	}
	if err := s.store.EnsureRole(ctx, auth.RoleUser); err != nil {
		return nil, fmt.Errorf("ensure role: %w", err)
	}

	langKey := strings.TrimSpace(reg.LangKey)
	if langKey == "" {
		langKey = DefaultLangKey
	}
	acct := &Account{
		Username:      username,
		Email:         email,
		FirstName:     strings.TrimSpace(reg.FirstName),
		LastName:      strings.TrimSpace(reg.LastName),
		ImageURL:      strings.TrimSpace(reg.ImageURL),
		LangKey:       langKey,
		PasswordHash:  hash,
		Activated:     false,
		ActivationKey: key,
		Roles:         []string{auth.RoleUser},
	}
	acct.Stamp(SystemActor, s.now())

	if err := s.store.Create(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
		return nil, err
	}

	s.notifier.SendActivationEmail(ctx, acct.Clone())
	s.events.ObserveEvent("registered")
	level.Debug(s.logger).Log("msg", "created information for user", "user", acct.Username)
	return acct, nil
}

// removeNonActivated deletes a colliding unactivated account or reports
// conflict when the account is activated or still within its grace period.
func (s *Service) removeNonActivated(ctx context.Context, existing *Account, conflict error) error {
	if existing.Activated {
		return conflict
	}
	if !existing.CreatedAt.Before(s.now().Add(-RegistrationGrace)) {
		return conflict
	}
	if err := s.store.DeleteUnactivated(ctx, existing.ID); err != nil {
		if isNotFound(err) {
			// Activated or removed concurrently; the insert decides.
			return nil
		}
		return fmt.Errorf("remove abandoned registration: %w", err)
	}
	if err := s.evict(ctx, InvalidationFor(existing)); err != nil {
		return err
	}
	level.Info(s.logger).Log("msg", "removed abandoned registration", "user", existing.Username)
	return nil
}

// Activate flips the account holding key to activated.
func (s *Service) Activate(ctx context.Context, key string) (*Account, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperr.New(apperr.KindNotFound, "no user was found for this activation key")
	}
	acct, err := s.store.FindByActivationKey(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "no user was found for this activation key")
		}
		return nil, fmt.Errorf("lookup activation key: %w", err)
	}

	acct.Activated = true
	acct.ActivationKey = ""
	acct.Stamp(SystemActor, s.now())
	if err := s.store.Update(ctx, acct); err != nil {
		if isNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "no user was found for this activation key")
		}
		return nil, err
	}
	if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
		return nil, err
	}

	s.notifier.SendCreationEmail(ctx, acct.Clone())
	s.events.ObserveEvent("activated")
	level.Debug(s.logger).Log("msg", "activated user", "user", acct.Username)
	return acct, nil
}

// RequestPasswordReset opens a reset window for the activated account
// owning email. Unknown emails are absorbed so callers cannot probe which
// addresses are registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	acct, err := s.store.FindByEmail(ctx, email)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("lookup email: %w", err)
	}
	if err != nil || !acct.Activated {
		level.Warn(s.logger).Log("msg", "password reset requested for non-existing email", "email", email)
		return nil
	}

	key, err := s.generateKey()
	if err != nil {
		return err
	}
	now := s.now().UTC()
	acct.ResetKey = key
	acct.ResetDate = &now
	acct.Stamp(SystemActor, now)
	if err := s.store.Update(ctx, acct); err != nil {
		return err
	}
	if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
		return err
	}

	s.notifier.SendPasswordResetEmail(ctx, acct.Clone())
	s.events.ObserveEvent("reset_requested")
	return nil
}

// CompletePasswordReset sets a new password for the account holding key,
// provided the key was issued within ResetWindow. An expired key is
// reported exactly like an unknown one.
func (s *Service) CompletePasswordReset(ctx context.Context, key, newPassword string) (*Account, error) {
	if err := CheckPasswordPolicy(newPassword); err != nil {
		return nil, err
	}
	notFound := apperr.New(apperr.KindNotFound, "no user was found for this reset key")

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, notFound
	}
	acct, err := s.store.FindByResetKey(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("lookup reset key: %w", err)
	}
	now := s.now()
	if acct.ResetDate == nil || !acct.ResetDate.After(now.Add(-ResetWindow)) {
		level.Debug(s.logger).Log("msg", "reset key expired", "user", acct.Username)
		return nil, notFound
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	acct.PasswordHash = hash
	acct.ResetKey = ""
	acct.ResetDate = nil
	acct.Stamp(SystemActor, now)
	if err := s.store.Update(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
		return nil, err
	}
	s.events.ObserveEvent("reset_completed")
	return acct, nil
}

// ChangePassword replaces the caller's password after checking current.
func (s *Service) ChangePassword(ctx context.Context, id auth.Identity, current, newPassword string) error {
	if id.Subject == "" {
		return apperr.ErrUnauthorized
	}
	if err := CheckPasswordPolicy(newPassword); err != nil {
		return err
	}
	acct, err := s.store.FindByUsername(ctx, normalizeUsername(id.Subject))
	if err != nil {
		return fmt.Errorf("load current account: %w", err)
	}
	if err := s.hasher.Verify(acct.PasswordHash, current); err != nil {
		return apperr.ErrInvalidPassword
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	acct.PasswordHash = hash
	acct.Stamp(id.Subject, s.now())
	if err := s.store.Update(ctx, acct); err != nil {
		return err
	}
	if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
		return err
	}
	s.events.ObserveEvent("password_changed")
	level.Debug(s.logger).Log("msg", "changed password for user", "user", acct.Username)
	return nil
}

// UpdateAccount applies a self-service profile change for the caller.
func (s *Service) UpdateAccount(ctx context.Context, id auth.Identity, p Profile) (*Account, error) {
	if id.Subject == "" {
		return nil, apperr.ErrUnauthorized
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	username := normalizeUsername(id.Subject)
	email := normalizeEmail(p.Email)

	if email != "" {
		other, err := s.store.FindByEmail(ctx, email)
		switch {
		case err == nil && other.Username != username:
			return nil, apperr.ErrEmailAlreadyUsed
		case err != nil && !isNotFound(err):
			return nil, fmt.Errorf("lookup email: %w", err)
		}
	}

	acct, err := s.store.FindWithRolesByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load current account: %w", err)
	}
	before := acct.Clone()

	acct.FirstName = strings.TrimSpace(p.FirstName)
	acct.LastName = strings.TrimSpace(p.LastName)
	if email != "" {
		acct.Email = email
	}
	acct.LangKey = strings.TrimSpace(p.LangKey)
	if acct.LangKey == "" {
		acct.LangKey = DefaultLangKey
	}
	acct.ImageURL = strings.TrimSpace(p.ImageURL)
	acct.Stamp(id.Subject, s.now())

	if err := s.store.Update(ctx, acct); err != nil {
		return nil, err
	}
	if err := s.evict(ctx, InvalidationFor(&before, acct)); err != nil {
		return nil, err
	}
	return acct, nil
}
