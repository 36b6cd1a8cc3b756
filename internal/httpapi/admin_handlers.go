package httpapi

import (
	"net/http"
	"net/url"
	"strconv"

	"filmbase.org/internal/account"
	"filmbase.org/internal/audit"
	"filmbase.org/internal/auth"
)

const adminUsersPath = "/api/v1/auth/admin/users"

type adminUserRequest struct {
	userReadOnly
	ID        string   `json:"id"`
	Username  string   `json:"userName"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Email     string   `json:"email"`
	ImageURL  string   `json:"imageUrl"`
	LangKey   string   `json:"langKey"`
	Activated bool     `json:"activated"`
	Roles     []string `json:"authorities"`
}

func (req adminUserRequest) toAdminUser() account.AdminUser {
	return account.AdminUser{
		ID:        req.ID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		ImageURL:  req.ImageURL,
		LangKey:   req.LangKey,
		Activated: req.Activated,
		Roles:     req.Roles,
	}
}

func actorOf(r *http.Request) string {
	subject, _ := auth.SubjectFromContext(r.Context())
	return subject
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	acct, err := a.accounts.CreateUser(r.Context(), actorOf(r), req.toAdminUser())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.user.created", map[string]any{"user": acct.Username, "roles": acct.Roles})
	w.Header().Set("Location", adminUsersPath+"/"+url.PathEscape(acct.Username))
	writeJSON(w, http.StatusCreated, acct)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	acct, err := a.accounts.UpdateUser(r.Context(), actorOf(r), req.toAdminUser())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.user.updated", map[string]any{"user": acct.Username, "roles": acct.Roles})
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items, total, err := a.accounts.ListUsers(r.Context(), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	acct, err := a.accounts.GetUser(r.Context(), r.PathValue("userName"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("userName")
	if err := a.accounts.DeleteUser(r.Context(), actorOf(r), username); err != nil {
		a.writeError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "admin.user.deleted", map[string]any{"user": username})
	w.WriteHeader(http.StatusOK)
}

type publicUser struct {
	ID       string `json:"id"`
	Username string `json:"userName"`
}

func (a *API) handlePublicUsers(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items, total, err := a.accounts.ListPublicUsers(r.Context(), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out := make([]publicUser, 0, len(items))
	for _, acct := range items {
		out = append(out, publicUser{ID: acct.ID, Username: acct.Username})
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleAuthorities(w http.ResponseWriter, r *http.Request) {
	roles, err := a.accounts.Roles(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, roles)
}
