package obs

import (
	"bytes"
	"database/sql"
	"strings"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"filmbase.org/internal/auth"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                       "/",
		"/metrics":                               "/metrics",
		"/api/v1/auth/admin/users":               "/api/v1/auth/admin/users",
		"/api/v1/auth/admin/users/alice01":       "/api/v1/auth/admin/users/:userName",
		"/api/v1/auth/admin/users/alice01/extra": "/api/v1/auth/admin/users/alice01/extra",
		"/api/v1/auth/activate?key=abc":          "/api/v1/auth/activate",
		"/api/v1/users":                          "/api/v1/users",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestTokenMetricsCountsPerCause(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTokenMetrics(reg)

	m.ObserveRejection(auth.RejectExpired)
	m.ObserveRejection(auth.RejectExpired)
	m.ObserveRejection(auth.RejectSignature)

	if got := testutil.ToFloat64(m.Rejections().WithLabelValues("expired")); got != 2 {
		t.Fatalf("expired = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Rejections().WithLabelValues("malformed")); got != 0 {
		t.Fatalf("malformed = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(m.Rejections()); n != 4 {
		t.Fatalf("series = %d, want all four causes pre-initialised", n)
	}
}

func TestAccountEventsAndLogins(t *testing.T) {
	reg := prometheus.NewRegistry()
	events := NewAccountEvents(reg)
	logins := NewLoginMetrics(reg)

	events.ObserveEvent("registered")
	logins.ObserveLogin("password", true)
	logins.ObserveLogin("password", false)
	logins.ObserveLogin("password", false)

	if got := testutil.ToFloat64(events.Events().WithLabelValues("registered")); got != 1 {
		t.Fatalf("registered = %v", got)
	}
	expected := `
# HELP auth_failures Count of failed authentications
# TYPE auth_failures counter
auth_failures{method="password"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "auth_failures"); err != nil {
		t.Fatal(err)
	}
}

func TestDBStatsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	stats := NewDBStats(reg)
	stats.Observe(sql.DBStats{OpenConnections: 3, InUse: 1, Idle: 2})

	expected := `
# HELP db_connections How many database connections and what state they are in.
# TYPE db_connections gauge
db_connections{state="idle"} 2
db_connections{state="inuse"} 1
db_connections{state="open"} 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "db_connections"); err != nil {
		t.Fatal(err)
	}
}

func TestNewLoggerFiltersLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, "json", "warn")
	level.Info(l).Log("msg", "hidden")
	level.Warn(l).Log("msg", "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}
