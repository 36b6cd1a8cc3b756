package account

import (
	"context"
	"errors"
)

// Region names a cache of account lookups.
type Region string

const (
	RegionByUsername Region = "by-username"
	RegionByEmail    Region = "by-email"
)

// Cache holds account snapshots per region. Implementations must return
// copies so callers cannot mutate cached state.
type Cache interface {
	Get(ctx context.Context, region Region, key string) (*Account, bool)
	Put(ctx context.Context, region Region, key string, acct *Account)
	Evict(ctx context.Context, region Region, key string) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, Region, string) (*Account, bool) { return nil, false }
func (nopCache) Put(context.Context, Region, string, *Account)        {}
func (nopCache) Evict(context.Context, Region, string) error          { return nil }

// Invalidation lists the cache keys a mutation made stale.
type Invalidation struct {
	Usernames []string
	Emails    []string
}

// InvalidationFor collects the username and email keys of accts. Passing
// both the before and after state of an update covers renamed keys.
func InvalidationFor(accts ...*Account) Invalidation {
	var inv Invalidation
	for _, a := range accts {
		if a == nil {
			continue
		}
		inv.addUsername(a.Username)
		inv.addEmail(a.Email)
	}
	return inv
}

func (inv *Invalidation) addUsername(u string) {
	u = normalizeUsername(u)
	if u == "" {
		return
	}
	for _, have := range inv.Usernames {
		if have == u {
			return
		}
	}
	inv.Usernames = append(inv.Usernames, u)
}

func (inv *Invalidation) addEmail(e string) {
	e = normalizeEmail(e)
	if e == "" {
		return
	}
	for _, have := range inv.Emails {
		if have == e {
			return
		}
	}
	inv.Emails = append(inv.Emails, e)
}

// Merge returns the union of inv and other.
func (inv Invalidation) Merge(other Invalidation) Invalidation {
	out := Invalidation{}
	for _, u := range append(append([]string(nil), inv.Usernames...), other.Usernames...) {
		out.addUsername(u)
	}
	for _, e := range append(append([]string(nil), inv.Emails...), other.Emails...) {
		out.addEmail(e)
	}
	return out
}

// Empty reports whether there is nothing to evict.
func (inv Invalidation) Empty() bool {
	return len(inv.Usernames) == 0 && len(inv.Emails) == 0
}

// Apply evicts every key. All keys are attempted even if some fail.
func (inv Invalidation) Apply(ctx context.Context, c Cache) error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, u := range inv.Usernames {
		if err := c.Evict(ctx, RegionByUsername, u); err != nil {
			errs = append(errs, err)
		}
	}
	for _, e := range inv.Emails {
		if err := c.Evict(ctx, RegionByEmail, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
