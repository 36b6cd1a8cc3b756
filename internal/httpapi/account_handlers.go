package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-kit/log/level"

	"filmbase.org/internal/account"
	"filmbase.org/internal/apperr"
	"filmbase.org/internal/audit"
	"filmbase.org/internal/auth"
)

type loginRequest struct {
	Username   string `json:"userName"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type tokenResponse struct {
	IDToken string `json:"id_token"`
}

func (a *API) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	acct, err := a.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		a.logins.ObserveLogin("password", false)
		_ = audit.LogEvent(r.Context(), "auth.login.failed", map[string]any{"login": strings.TrimSpace(req.Username)})
		a.writeError(w, r, err)
		return
	}
	if a.codec == nil {
		a.writeError(w, r, errors.New("token codec is not configured"))
		return
	}
	token, err := a.codec.Issue(acct.Username, acct.Roles, req.RememberMe)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.logins.ObserveLogin("password", true)
	_ = audit.LogEvent(r.Context(), "auth.login.succeeded", map[string]any{
		"user":        acct.Username,
		"remember_me": req.RememberMe,
		"expires_at":  token.ExpiresAt,
	})

	w.Header().Set(authHeader, bearer+token.Value)
	writeJSON(w, http.StatusOK, tokenResponse{IDToken: token.Value})
}

// handleIsAuthenticated echoes the subject of a valid token, or nothing.
func (a *API) handleIsAuthenticated(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if subject, ok := auth.SubjectFromContext(r.Context()); ok {
		_, _ = io.WriteString(w, subject)
	}
}

// userReadOnly lists the fields of the user representation that clients
// echo back on writes. They are accepted and ignored.
type userReadOnly struct {
	ID               json.RawMessage `json:"id"`
	Username         json.RawMessage `json:"userName"`
	Activated        json.RawMessage `json:"activated"`
	Authorities      json.RawMessage `json:"authorities"`
	CreatedBy        json.RawMessage `json:"createdBy"`
	CreatedDate      json.RawMessage `json:"createdDate"`
	LastModifiedBy   json.RawMessage `json:"lastModifiedBy"`
	LastModifiedDate json.RawMessage `json:"lastModifiedDate"`
}

type registrationRequest struct {
	userReadOnly
	Username  string `json:"userName"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	LangKey   string `json:"langKey"`
	ImageURL  string `json:"imageUrl"`
	Password  string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	acct, err := a.accounts.Register(r.Context(), account.Registration{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		LangKey:   req.LangKey,
		ImageURL:  req.ImageURL,
		Password:  req.Password,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.registered", map[string]any{"user": acct.Username})
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	acct, err := a.accounts.Activate(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.activated", map[string]any{"user": acct.Username})
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	acct, err := a.accounts.CurrentAccount(r.Context(), id)
	if err != nil {
		// a valid token for a deleted account
		if errors.Is(err, apperr.ErrNotFound) {
			err = apperr.New(apperr.KindUnauthorized, "user could not be found")
		}
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type profileRequest struct {
	userReadOnly
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	LangKey   string `json:"langKey"`
	ImageURL  string `json:"imageUrl"`
}

func (a *API) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	acct, err := a.accounts.UpdateAccount(r.Context(), id, account.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		LangKey:   req.LangKey,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	if err := a.accounts.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.password.changed", nil)
	w.WriteHeader(http.StatusOK)
}

// handleResetInit takes the e-mail address as the raw body and always
// answers 200 so callers cannot probe for registered addresses.
func (a *API) handleResetInit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4<<10))
	if err != nil {
		a.writeError(w, r, apperr.Wrap(apperr.KindInvalidInput, err, "unreadable body"))
		return
	}
	email := strings.Trim(strings.TrimSpace(string(body)), `"`)
	if err := a.accounts.RequestPasswordReset(r.Context(), email); err != nil {
		level.Error(a.logger).Log("msg", "password reset request failed", "err", err)
	}
	_ = audit.LogEvent(r.Context(), "account.reset.requested", nil)
	w.WriteHeader(http.StatusOK)
}

type passwordResetRequest struct {
	Key         string `json:"key"`
	NewPassword string `json:"newPassword"`
}

func (a *API) handleResetFinish(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	acct, err := a.accounts.CompletePasswordReset(r.Context(), req.Key, req.NewPassword)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.reset.completed", map[string]any{"user": acct.Username})
	w.WriteHeader(http.StatusOK)
}
