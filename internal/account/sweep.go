package account

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"
)

// SweepStaleRegistrations deletes accounts that were never activated and
// are older than StaleRegistrationAge. Accounts are removed one at a time;
// one activated or deleted in the meantime is skipped.
func (s *Service) SweepStaleRegistrations(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-StaleRegistrationAge)
	stale, err := s.store.FindStaleRegistrations(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("find stale registrations: %w", err)
	}

	deleted := 0
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		acct := &stale[i]
		level.Debug(s.logger).Log("msg", "deleting not activated user", "user", acct.Username)
		if err := s.store.DeleteUnactivated(ctx, acct.ID); err != nil {
			if isNotFound(err) {
				continue
			}
			return deleted, fmt.Errorf("delete %s: %w", acct.Username, err)
		}
		if err := s.evict(ctx, InvalidationFor(acct)); err != nil {
			return deleted, err
		}
		deleted++
		s.events.ObserveEvent("swept")
	}
	if deleted > 0 {
		level.Info(s.logger).Log("msg", "swept stale registrations", "deleted", deleted)
	}
	return deleted, nil
}
