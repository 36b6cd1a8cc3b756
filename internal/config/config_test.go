package config

import (
	"context"
	"encoding/base64"
	"net/netip"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/require"

	"filmbase.org/internal/apperr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 24*time.Hour, cfg.TokenTTL())
	require.Equal(t, 30*24*time.Hour, cfg.RememberMeTTL())
	require.Equal(t, "0 1 * * *", cfg.SweepSchedule)
	require.Equal(t, time.Hour, cfg.CacheTTL)
	require.Empty(t, cfg.Seeds())

	_, err = cfg.SigningKey()
	require.ErrorIs(t, err, apperr.ErrFatalConfiguration)
}

func TestLoadPrefixedValues(t *testing.T) {
	secret := []byte("base64-signing-secret-value")
	cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"FILMBASE_HTTP_ADDR":              ":9999",
		"FILMBASE_JWT_SECRET":             "plain-secret",
		"FILMBASE_JWT_BASE64_SECRET":      base64.StdEncoding.EncodeToString(secret),
		"FILMBASE_TOKEN_VALIDITY_SECONDS": "60",
		"FILMBASE_CORS_ORIGINS":           "https://a.test,https://b.test",
		"FILMBASE_SEED_ADMIN_PASSWORD":    "admin-password",
		"FILMBASE_TRUSTED_PROXIES":        "10.0.0.0/8,192.168.1.7",
		"HTTP_ADDR":                       ":1111",
	}))
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.Equal(t, time.Minute, cfg.TokenTTL())
	require.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
	proxies, err := cfg.TrustedProxyPrefixes()
	require.NoError(t, err)
	require.Equal(t, []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("192.168.1.7/32")}, proxies)

	key, err := cfg.SigningKey()
	require.NoError(t, err)
	require.Equal(t, secret, key)

	seeds := cfg.Seeds()
	require.Len(t, seeds, 1)
	require.Equal(t, "admin", seeds[0].Username)
	require.Contains(t, seeds[0].Roles, "ADMIN")
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"FILMBASE_LOG_FORMAT": "xml",
	}))
	require.ErrorIs(t, err, apperr.ErrFatalConfiguration)

	_, err = LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"FILMBASE_TOKEN_VALIDITY_SECONDS": "0",
	}))
	require.ErrorIs(t, err, apperr.ErrFatalConfiguration)

	_, err = LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"FILMBASE_TOKEN_VALIDITY_SECONDS": "soon",
	}))
	require.Error(t, err)

	_, err = LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"FILMBASE_TRUSTED_PROXIES": "10.0.0.0/99",
	}))
	require.ErrorIs(t, err, apperr.ErrFatalConfiguration)
}
