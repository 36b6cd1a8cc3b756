// Package account implements the account lifecycle: registration,
// activation, password reset, credential changes and administration.
package account

import (
	"strings"
	"time"
)

const (
	// SystemActor stamps changes made without an authenticated caller.
	SystemActor = "system"

	DefaultLangKey = "en"

	PasswordMinLength = 10
	PasswordMaxLength = 100

	// ResetWindow bounds how long a reset key stays usable.
	ResetWindow = 24 * time.Hour
	// StaleRegistrationAge is the age after which unactivated accounts are swept.
	StaleRegistrationAge = 30 * 24 * time.Hour
	// RegistrationGrace is how long a new unactivated account blocks its
	// user name and email before another registration may replace it.
	RegistrationGrace = 10 * time.Minute
)

// Account is a stored user identity.
type Account struct {
	ID            string     `json:"id"`
	Username      string     `json:"userName"`
	Email         string     `json:"email,omitempty"`
	FirstName     string     `json:"firstName,omitempty"`
	LastName      string     `json:"lastName,omitempty"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	LangKey       string     `json:"langKey"`
	PasswordHash  string     `json:"-"`
	Activated     bool       `json:"activated"`
	ActivationKey string     `json:"-"`
	ResetKey      string     `json:"-"`
	ResetDate     *time.Time `json:"-"`
	Roles         []string   `json:"authorities"`

	CreatedBy  string    `json:"createdBy,omitempty"`
	CreatedAt  time.Time `json:"createdDate"`
	ModifiedBy string    `json:"lastModifiedBy,omitempty"`
	ModifiedAt time.Time `json:"lastModifiedDate"`
}

// Stamp records actor as the author of the current change. The creation
// fields are only set once.
func (a *Account) Stamp(actor string, now time.Time) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = SystemActor
	}
	now = now.UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
		a.CreatedBy = actor
	}
	a.ModifiedAt = now
	a.ModifiedBy = actor
}

// Clone returns a deep copy.
func (a Account) Clone() Account {
	out := a
	if a.Roles != nil {
		out.Roles = append([]string(nil), a.Roles...)
	}
	if a.ResetDate != nil {
		d := *a.ResetDate
		out.ResetDate = &d
	}
	return out
}

// HasRole reports whether the account holds role.
func (a Account) HasRole(role string) bool {
	for _, r := range a.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// Page selects a window of a listing.
type Page struct {
	Offset int
	Limit  int
}

// Normalize clamps the window to sane bounds.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 200 {
		p.Limit = 200
	}
	return p
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
