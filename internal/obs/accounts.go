package obs

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"

	"filmbase.org/internal/auth"
)

// TokenMetrics counts bearer tokens refused by the codec, per cause.
type TokenMetrics struct {
	rejections *prometheus.CounterVec
}

var _ auth.RejectionObserver = (*TokenMetrics)(nil)

// NewTokenMetrics registers auth_token_rejections_total with reg.
func NewTokenMetrics(reg prometheus.Registerer) *TokenMetrics {
	m := &TokenMetrics{
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_rejections_total",
			Help: "Bearer tokens rejected during verification, by cause.",
		}, []string{"cause"}),
	}
	reg.MustRegister(m.rejections)
	for _, cause := range []auth.Rejection{
		auth.RejectExpired, auth.RejectMalformed, auth.RejectUnsupported, auth.RejectSignature,
	} {
		m.rejections.WithLabelValues(string(cause))
	}
	return m
}

func (m *TokenMetrics) ObserveRejection(cause auth.Rejection) {
	m.rejections.WithLabelValues(string(cause)).Inc()
}

// Rejections exposes the counter vector for inspection.
func (m *TokenMetrics) Rejections() *prometheus.CounterVec { return m.rejections }

// AccountEvents counts account lifecycle transitions.
type AccountEvents struct {
	events *prometheus.CounterVec
}

// NewAccountEvents registers account_events_total with reg.
func NewAccountEvents(reg prometheus.Registerer) *AccountEvents {
	e := &AccountEvents{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "account_events_total",
			Help: "Account lifecycle events.",
		}, []string{"event"}),
	}
	reg.MustRegister(e.events)
	return e
}

func (e *AccountEvents) ObserveEvent(event string) {
	e.events.WithLabelValues(event).Inc()
}

// Events exposes the counter vector for inspection.
func (e *AccountEvents) Events() *prometheus.CounterVec { return e.events }

// LoginMetrics counts credential checks by outcome.
type LoginMetrics struct {
	successes metrics.Counter
	failures  metrics.Counter
}

// NewLoginMetrics registers auth_successes and auth_failures with reg.
func NewLoginMetrics(reg prometheus.Registerer) *LoginMetrics {
	successes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_successes",
		Help: "Count of successful authentications",
	}, []string{"method"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures",
		Help: "Count of failed authentications",
	}, []string{"method"})
	reg.MustRegister(successes, failures)
	return &LoginMetrics{
		successes: kitprom.NewCounter(successes),
		failures:  kitprom.NewCounter(failures),
	}
}

// ObserveLogin records one login attempt made through method.
func (m *LoginMetrics) ObserveLogin(method string, ok bool) {
	if ok {
		m.successes.With("method", method).Add(1)
		return
	}
	m.failures.With("method", method).Add(1)
}

// DBStats publishes connection pool gauges.
type DBStats struct {
	connections metrics.Gauge
}

// NewDBStats registers db_connections with reg.
func NewDBStats(reg prometheus.Registerer) *DBStats {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "db_connections",
		Help: "How many database connections and what state they are in.",
	}, []string{"state"})
	reg.MustRegister(gv)
	return &DBStats{connections: kitprom.NewGauge(gv)}
}

// Observe records one snapshot of stats.
func (d *DBStats) Observe(stats sql.DBStats) {
	d.connections.With("state", "idle").Set(float64(stats.Idle))
	d.connections.With("state", "inuse").Set(float64(stats.InUse))
	d.connections.With("state", "open").Set(float64(stats.OpenConnections))
}

// Run samples db every interval until ctx is done.
func (d *DBStats) Run(ctx context.Context, db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.Observe(db.Stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
