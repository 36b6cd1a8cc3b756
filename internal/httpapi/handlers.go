// Package httpapi exposes the account service over HTTP and gRPC.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"filmbase.org/internal/account"
	"filmbase.org/internal/apperr"
	"filmbase.org/internal/audit"
	"filmbase.org/internal/auth"
	"filmbase.org/internal/obs"
)

const serviceName = "filmbase-accounts"

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe checks DB and cache connectivity. Nil members are skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Cache Pinger
}

func (p ReadyProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if p.DB != nil {
		if err := p.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if p.Cache != nil {
		if err := p.Cache.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// LoginObserver counts login attempts.
type LoginObserver interface {
	ObserveLogin(method string, ok bool)
}

type nopLogins struct{}

func (nopLogins) ObserveLogin(string, bool) {}

type API struct {
	mux        *http.ServeMux
	accounts   *account.Service
	codec      *auth.Codec
	readyProbe readinessChecker
	version    string
	logins     LoginObserver
	logger     log.Logger

	corsOrigins []string
	maxBody     int64
	ratePerSec  float64
	rateBurst   int
	proxies     []netip.Prefix
}

// Option configures API.
type Option func(*API)

func WithReadyProbe(p readinessChecker) Option {
	return func(a *API) {
		if p != nil {
			a.readyProbe = p
		}
	}
}

func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

func WithLoginObserver(o LoginObserver) Option {
	return func(a *API) {
		if o != nil {
			a.logins = o
		}
	}
}

func WithLogger(l log.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCORSOrigins sets the allowed origins; "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// WithRateLimit sets the per-client token bucket. Zero rps disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

// WithTrustedProxies lists the proxies whose X-Forwarded-For is believed
// when identifying clients for rate limiting.
func WithTrustedProxies(proxies []netip.Prefix) Option {
	return func(a *API) { a.proxies = proxies }
}

// New wires the HTTP routes.
func New(accounts *account.Service, codec *auth.Codec, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		accounts:   accounts,
		codec:      codec,
		readyProbe: ReadyProbe{},
		version:    "dev",
		logins:     nopLogins{},
		logger:     log.NewNopLogger(),
		maxBody:    1 << 20,
		ratePerSec: 20,
		rateBurst:  40,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /api/v1/auth/authenticate", a.handleAuthenticate)
	a.mux.HandleFunc("GET /api/v1/auth/authenticate", a.handleIsAuthenticated)
	a.mux.HandleFunc("POST /api/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("GET /api/v1/auth/activate", a.handleActivate)
	a.mux.HandleFunc("POST /api/v1/auth/account/reset-password/init", a.handleResetInit)
	a.mux.HandleFunc("POST /api/v1/auth/account/reset-password/finish", a.handleResetFinish)

	a.mux.Handle("GET /api/v1/auth/account", RequireAuthenticated(http.HandlerFunc(a.handleGetAccount)))
	a.mux.Handle("PUT /api/v1/auth/account", RequireAuthenticated(http.HandlerFunc(a.handleUpdateAccount)))
	a.mux.Handle("POST /api/v1/auth/account/change-password", RequireAuthenticated(http.HandlerFunc(a.handleChangePassword)))

	admin := RequireRole(auth.RoleAdmin)
	a.mux.Handle("POST /api/v1/auth/admin/users", admin(http.HandlerFunc(a.handleCreateUser)))
	a.mux.Handle("PUT /api/v1/auth/admin/users", admin(http.HandlerFunc(a.handleUpdateUser)))
	a.mux.Handle("GET /api/v1/auth/admin/users", admin(http.HandlerFunc(a.handleListUsers)))
	a.mux.Handle("GET /api/v1/auth/admin/users/{userName}", admin(http.HandlerFunc(a.handleGetUser)))
	a.mux.Handle("DELETE /api/v1/auth/admin/users/{userName}", admin(http.HandlerFunc(a.handleDeleteUser)))

	a.mux.HandleFunc("GET /api/v1/users", a.handlePublicUsers)
	a.mux.HandleFunc("GET /api/v1/authorities", a.handleAuthorities)
}

// Handler returns the full middleware chain around the routes.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = Authenticate(a.codec)(h)
	h = MaxBodyBytes(h, a.maxBody)
	if a.ratePerSec > 0 {
		limiter := NewRateLimiter(a.ratePerSec, a.rateBurst)
		limiter.trusted = a.proxies
		h = limiter.Middleware(h)
	}
	h = CORS(a.corsOrigins)(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		level.Warn(a.logger).Log("msg", "readiness check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindInvalidInput, "request body is required")
		}
		return apperr.Wrap(apperr.KindInvalidInput, err, "malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.New(apperr.KindInvalidInput, "unexpected data after JSON body")
	}
	return nil
}

type problem struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
	RequestID string    `json:"requestId,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, problem{
		Timestamp: time.Now().UTC(),
		Status:    code,
		Error:     http.StatusText(code),
		Message:   msg,
		Path:      r.URL.Path,
		RequestID: audit.RequestIDFromContext(r.Context()),
	})
}

// writeError maps a classified error onto its HTTP status. Internal errors
// are logged and reported without detail.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	if code >= http.StatusInternalServerError {
		level.Error(a.logger).Log("msg", "request failed", "path", r.URL.Path,
			"request_id", audit.RequestIDFromContext(r.Context()), "err", err)
	}
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeProblem(w, r, code, apperr.MessageOf(err))
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindUsernameAlreadyUsed:
		return http.StatusConflict
	case apperr.KindEmailAlreadyUsed:
		return http.StatusConflict
	case apperr.KindInvalidPassword:
		return http.StatusBadRequest
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindFatalConfiguration:
		return http.StatusInternalServerError
	case apperr.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// parsePage reads ?page=N&size=M (zero-based page index).
func parsePage(r *http.Request) (account.Page, error) {
	q := r.URL.Query()
	page, size := 0, 20
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return account.Page{}, apperr.New(apperr.KindInvalidInput, "invalid page %q", v)
		}
		page = n
	}
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return account.Page{}, apperr.New(apperr.KindInvalidInput, "invalid size %q", v)
		}
		size = n
	}
	p := account.Page{Limit: size}.Normalize()
	if page > math.MaxInt32/p.Limit {
		return account.Page{}, apperr.New(apperr.KindInvalidInput, "page %d is out of range", page)
	}
	p.Offset = page * p.Limit
	return p, nil
}
