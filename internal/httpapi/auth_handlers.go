package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"opsuite.io/internal/authz"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type userResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	RoleID         string    `json:"role_id,omitempty"`
	Email          string    `json:"email"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toUserResponse(u *authz.User) userResponse {
	return userResponse{
		ID:             u.ID,
		OrganizationID: u.OrganizationID,
		RoleID:         u.RoleID,
		Email:          u.Email,
		Status:         u.Status,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func toPairResponse(pair authz.TokenPair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, user, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, authz.ErrUnauthorized) {
		a.auditLog.Append(r.Context(), auditRecord("auth.login", "", "", "denied", "invalid_credentials", map[string]any{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		}))
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	a.sessions.SetAccessToken(w, pair.AccessToken)
	a.sessions.SetRefreshToken(w, pair.RefreshToken)
	a.auditLog.Append(r.Context(), auditRecord("auth.login", user.ID, user.OrganizationID, "allowed", "", nil))

	writeJSON(w, http.StatusOK, map[string]any{
		"user":   toUserResponse(user),
		"tokens": toPairResponse(pair),
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	refreshToken := a.sessions.Read(r).RefreshToken
	if refreshToken == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusUnauthorized, "refresh token required")
			return
		}
		refreshToken = strings.TrimSpace(req.RefreshToken)
	}
	if refreshToken == "" {
		writeError(w, r, http.StatusUnauthorized, "refresh token required")
		return
	}

	pair, user, err := a.svc.RefreshSession(r.Context(), refreshToken)
	if errors.Is(err, authz.ErrInvalidToken) {
		a.sessions.ClearAll(w)
		a.auditLog.Append(r.Context(), auditRecord("auth.refresh", "", "", "denied", "invalid_refresh_token", nil))
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}

	a.sessions.SetAccessToken(w, pair.AccessToken)
	a.sessions.SetRefreshToken(w, pair.RefreshToken)
	a.auditLog.Append(r.Context(), auditRecord("auth.refresh", user.ID, user.OrganizationID, "allowed", "", nil))

	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": toPairResponse(pair),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	sess := a.bindSession(w, r).Session()
	if !sess.Empty() {
		if err := a.svc.RevokeSession(r.Context(), sess); err != nil {
			writeError(w, r, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	a.sessions.ClearAll(w)
	a.auditLog.Append(r.Context(), auditRecord("auth.logout", "", "", "allowed", "", nil))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	h := a.bindSession(w, r)
	d := a.svc.CheckSession(r.Context(), h)
	if !d.Authorized() {
		writeDenied(w, r, d)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":         toUserResponse(d.User),
		"capabilities": d.Capabilities.Keys(),
	})
}

// handleOrg returns the caller's organization. Any authenticated session
// may read it; no capability is required.
func (a *API) handleOrg(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	h := a.bindSession(w, r)
	d := a.svc.CheckSession(r.Context(), h)
	if !d.Authorized() {
		writeDenied(w, r, d)
		return
	}
	org, err := a.store.Organizations(r.Context()).Find(r.Context(), d.User.OrganizationID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         org.ID,
		"name":       org.Name,
		"created_at": org.CreatedAt,
		"updated_at": org.UpdatedAt,
	})
}
