package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/golang-jwt/jwt/v5"

	"filmbase.org/internal/apperr"
)

const (
	// AuthoritiesKey is the claim carrying the comma-joined role list.
	AuthoritiesKey = "auth"

	DefaultTokenTTL      = 24 * time.Hour
	DefaultRememberMeTTL = 30 * 24 * time.Hour
)

// Rejection names the reason a presented token was refused.
type Rejection string

const (
	RejectExpired     Rejection = "expired"
	RejectMalformed   Rejection = "malformed"
	RejectUnsupported Rejection = "unsupported"
	RejectSignature   Rejection = "signature"
)

// RejectionObserver counts token rejections. Implementations must be safe
// for concurrent use.
type RejectionObserver interface {
	ObserveRejection(Rejection)
}

type nopObserver struct{}

func (nopObserver) ObserveRejection(Rejection) {}

var errUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

// Claims is the wire shape of an issued token.
type Claims struct {
	Authorities string `json:"auth"`
	jwt.RegisteredClaims
}

// Token is a signed bearer token and its absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Codec issues and verifies HMAC-signed bearer tokens.
type Codec struct {
	key         []byte
	ttl         time.Duration
	rememberTTL time.Duration
	now         func() time.Time
	observer    RejectionObserver
	logger      log.Logger
}

// CodecOption configures a Codec.
type CodecOption func(*Codec) error

// WithTokenTTL sets the validity of regular tokens.
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl <= 0 {
			return fmt.Errorf("token ttl must be positive")
		}
		c.ttl = ttl
		return nil
	}
}

// WithRememberMeTTL sets the validity of remember-me tokens.
func WithRememberMeTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) error {
		if ttl <= 0 {
			return fmt.Errorf("remember-me ttl must be positive")
		}
		c.rememberTTL = ttl
		return nil
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) error {
		if now != nil {
			c.now = now
		}
		return nil
	}
}

// WithRejectionObserver registers the sink for rejection counters.
func WithRejectionObserver(o RejectionObserver) CodecOption {
	return func(c *Codec) error {
		if o != nil {
			c.observer = o
		}
		return nil
	}
}

// WithLogger sets the logger used for unclassified validation failures.
func WithLogger(l log.Logger) CodecOption {
	return func(c *Codec) error {
		if l != nil {
			c.logger = l
		}
		return nil
	}
}

// NewCodec builds a Codec signing with key. An empty key is a fatal
// configuration error.
func NewCodec(key []byte, opts ...CodecOption) (*Codec, error) {
	if len(key) == 0 {
		return nil, apperr.New(apperr.KindFatalConfiguration, "token signing key is not configured")
	}
	c := &Codec{
		key:         append([]byte(nil), key...),
		ttl:         DefaultTokenTTL,
		rememberTTL: DefaultRememberMeTTL,
		now:         time.Now,
		observer:    nopObserver{},
		logger:      log.NewNopLogger(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Issue signs a token for subject. rememberMe selects the long validity.
func (c *Codec) Issue(subject string, roles []string, rememberMe bool) (Token, error) {
	ttl := c.ttl
	if rememberMe {
		ttl = c.rememberTTL
	}
	return c.IssueWithTTL(subject, roles, ttl)
}

// IssueWithTTL signs a token valid for ttl from now.
func (c *Codec) IssueWithTTL(subject string, roles []string, ttl time.Duration) (Token, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Token{}, errors.New("subject is required")
	}
	if ttl <= 0 {
		return Token{}, errors.New("ttl must be greater than zero")
	}

	now := c.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Authorities: strings.Join(normalizeRoles(roles), ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// Verify checks signature and expiry. Every failure yields ok=false; the
// cause is only visible through the rejection observer and the log.
func (c *Codec) Verify(token string) (Identity, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		level.Error(c.logger).Log("msg", "token validation failed", "err", "token is empty")
		return Identity{}, false
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", errUnsupportedAlgorithm, t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		c.reject(err)
		return Identity{}, false
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		level.Error(c.logger).Log("msg", "token validation failed", "err", "unexpected claims")
		return Identity{}, false
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		level.Error(c.logger).Log("msg", "token validation failed", "err", "subject missing")
		return Identity{}, false
	}
	return Identity{Subject: subject, Roles: splitRoles(claims.Authorities)}, true
}

func (c *Codec) reject(err error) {
	var cause Rejection
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		cause = RejectExpired
	case errors.Is(err, errUnsupportedAlgorithm), errors.Is(err, jwt.ErrTokenUnverifiable):
		cause = RejectUnsupported
	case errors.Is(err, jwt.ErrTokenMalformed):
		cause = RejectMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		cause = RejectSignature
	default:
		level.Error(c.logger).Log("msg", "token validation failed", "err", err)
		return
	}
	c.observer.ObserveRejection(cause)
	level.Debug(c.logger).Log("msg", "token rejected", "cause", string(cause))
}

func splitRoles(joined string) []string {
	if joined == "" {
		return nil
	}
	return normalizeRoles(strings.Split(joined, ","))
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
