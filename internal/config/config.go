// Package config loads process settings from FILMBASE_* environment variables.
package config

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"filmbase.org/internal/account"
	"filmbase.org/internal/apperr"
	"filmbase.org/internal/auth"
)

// Prefix is prepended to every variable name.
const Prefix = "FILMBASE_"

type Config struct {
	Env      string `env:"ENV,default=dev"`
	Version  string `env:"VERSION,default=dev"`
	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`
	GRPCAddr string `env:"GRPC_ADDR,default=:9090"`

	DatabaseURL   string        `env:"PG_DSN"`
	AutoMigrate   bool          `env:"AUTO_MIGRATE,default=true"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB,default=0"`
	CacheTTL      time.Duration `env:"CACHE_TTL,default=1h"`

	JWTSecret                 string `env:"JWT_SECRET"`
	JWTBase64Secret           string `env:"JWT_BASE64_SECRET"`
	TokenValiditySeconds      int    `env:"TOKEN_VALIDITY_SECONDS,default=86400"`
	RememberMeValiditySeconds int    `env:"TOKEN_VALIDITY_REMEMBER_ME_SECONDS,default=2592000"`

	SweepSchedule string `env:"SWEEP_SCHEDULE,default=0 1 * * *"`

	BaseURL      string `env:"BASE_URL,default=http://localhost:8080"`
	MailFrom     string `env:"MAIL_FROM,default=filmbase@localhost"`
	SMTPAddr     string `env:"SMTP_ADDR"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST,default=40"`
	CORSOrigins    []string `env:"CORS_ORIGINS"`
	MaxBodyBytes   int64    `env:"MAX_BODY_BYTES,default=1048576"`
	// TrustedProxies holds addresses or CIDR ranges of reverse proxies.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	LogFormat string `env:"LOG_FORMAT,default=logfmt"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	SeedAdminUsername string `env:"SEED_ADMIN_USERNAME,default=admin"`
	SeedAdminEmail    string `env:"SEED_ADMIN_EMAIL,default=admin@localhost.test"`
	SeedAdminPassword string `env:"SEED_ADMIN_PASSWORD"`
	SeedUserUsername  string `env:"SEED_USER_USERNAME,default=user"`
	SeedUserEmail     string `env:"SEED_USER_EMAIL,default=user@localhost.test"`
	SeedUserPassword  string `env:"SEED_USER_PASSWORD"`
}

// Load reads the process environment.
func Load(ctx context.Context) (Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom reads settings through l, which sees unprefixed names.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, envconfig.PrefixLookuper(Prefix, l)); err != nil {
		return Config{}, fmt.Errorf("parsing env vars: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TokenValiditySeconds <= 0 || c.RememberMeValiditySeconds <= 0 {
		return apperr.New(apperr.KindFatalConfiguration, "token validity must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "logfmt":
	default:
		return apperr.New(apperr.KindFatalConfiguration, "unknown log format %q", c.LogFormat)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return apperr.New(apperr.KindFatalConfiguration, "rate limits must not be negative")
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address is a single
// host prefix.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, apperr.Wrap(apperr.KindFatalConfiguration, err, fmt.Sprintf("invalid trusted proxy %q", raw))
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindFatalConfiguration, err, fmt.Sprintf("invalid trusted proxy %q", raw))
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// SigningKey resolves the token signing secret. A missing secret is a
// fatal configuration error.
func (c Config) SigningKey() ([]byte, error) {
	return auth.ResolveSecret(c.JWTSecret, c.JWTBase64Secret)
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenValiditySeconds) * time.Second
}

func (c Config) RememberMeTTL() time.Duration {
	return time.Duration(c.RememberMeValiditySeconds) * time.Second
}

// Seeds returns the first-boot accounts. An account without a configured
// password is not seeded.
func (c Config) Seeds() []account.SeedAccount {
	var seeds []account.SeedAccount
	if c.SeedAdminPassword != "" {
		seeds = append(seeds, account.SeedAccount{
			Username:  c.SeedAdminUsername,
			Email:     c.SeedAdminEmail,
			FirstName: "Administrator",
			Password:  c.SeedAdminPassword,
			Roles:     []string{auth.RoleAdmin, auth.RoleUser},
		})
	}
	if c.SeedUserPassword != "" {
		seeds = append(seeds, account.SeedAccount{
			Username:  c.SeedUserUsername,
			Email:     c.SeedUserEmail,
			FirstName: "User",
			Password:  c.SeedUserPassword,
			Roles:     []string{auth.RoleUser},
		})
	}
	return seeds
}
