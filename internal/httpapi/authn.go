package httpapi

import (
	"net/http"

	"opsuite.io/internal/authz"
	"opsuite.io/internal/session"
	"opsuite.io/internal/token"
)

const authHeader = "Authorization"

// bindSession resolves the caller's session. An Authorization bearer token
// takes precedence over cookies; header sessions get no cookie write-back,
// so silent renewal only happens on the cookie transport.
func (a *API) bindSession(w http.ResponseWriter, r *http.Request) *session.Handle {
	if tok, ok := token.FromHeader(r.Header.Get(authHeader)); ok {
		return session.FromToken(tok)
	}
	return a.sessions.Bind(w, r)
}

// guard runs the action check for a handler, audits the outcome and writes
// the denial response when the caller is refused. Handlers proceed only on
// ok == true.
func (a *API) guard(w http.ResponseWriter, r *http.Request, module, resource, action string) (authz.Decision, bool) {
	h := a.bindSession(w, r)
	d := a.svc.CheckAction(r.Context(), h, module, resource, action)
	a.auditLog.Action(r.Context(), d, module, resource, action, map[string]any{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	if !d.Authorized() {
		writeDenied(w, r, d)
		return d, false
	}
	return d, true
}

// writeDenied maps a denial to its HTTP status. Internal failures stay
// generic; the precise reason lives in the audit trail.
func writeDenied(w http.ResponseWriter, r *http.Request, d authz.Decision) {
	switch d.Reason {
	case authz.DenyUnauthenticated, authz.DenySessionExpired, authz.DenyMalformedToken:
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case authz.DenyUserNotFound, authz.DenyUserInactive, authz.DenyForbidden:
		writeError(w, r, http.StatusForbidden, "forbidden")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
