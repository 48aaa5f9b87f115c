package session

import (
	"net/http"
	"time"
)

const (
	accessCookie  = "opsuite_at"
	refreshCookie = "opsuite_rt"
)

// Kind selects one of the two session cookies.
type Kind int

const (
	KindAccess Kind = iota
	KindRefresh
)

// Session is the token pair read from one request. Either token may be
// empty; the session exists if at least one is present.
type Session struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether no token is present at all.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// Manager writes and reads the access/refresh cookies. Cookie max-age is a
// transport-level bound; token expiry is still enforced from the embedded
// claims.
type Manager struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager constructs a Manager. secure should be false only in local
// development where cookies travel over plain HTTP.
func NewManager(secure bool, accessTTL, refreshTTL time.Duration) *Manager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Manager{secure: secure, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// Read extracts the session from request cookies.
func (m *Manager) Read(r *http.Request) Session {
	var s Session
	if c, err := r.Cookie(accessCookie); err == nil {
		s.AccessToken = c.Value
	}
	if c, err := r.Cookie(refreshCookie); err == nil {
		s.RefreshToken = c.Value
	}
	return s
}

// SetAccessToken writes the access cookie.
func (m *Manager) SetAccessToken(w http.ResponseWriter, tok string) {
	http.SetCookie(w, m.cookie(accessCookie, tok, int(m.accessTTL.Seconds())))
}

// SetRefreshToken writes the refresh cookie.
func (m *Manager) SetRefreshToken(w http.ResponseWriter, tok string) {
	http.SetCookie(w, m.cookie(refreshCookie, tok, int(m.refreshTTL.Seconds())))
}

// Clear removes one cookie.
func (m *Manager) Clear(w http.ResponseWriter, kind Kind) {
	name := accessCookie
	if kind == KindRefresh {
		name = refreshCookie
	}
	http.SetCookie(w, m.cookie(name, "", -1))
}

// ClearAll removes both cookies. Idempotent: clearing an absent cookie is a
// no-op from the client's point of view.
func (m *Manager) ClearAll(w http.ResponseWriter) {
	m.Clear(w, KindAccess)
	m.Clear(w, KindRefresh)
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Handle binds one request's session to its response so the guard can write
// renewed tokens back. A Handle constructed from a bare token (header-based
// transport) has no writer and renewal updates stay in memory.
type Handle struct {
	mgr  *Manager
	w    http.ResponseWriter
	sess Session
}

// Bind reads the session from r and ties writes to w.
func (m *Manager) Bind(w http.ResponseWriter, r *http.Request) *Handle {
	return &Handle{mgr: m, w: w, sess: m.Read(r)}
}

// FromToken wraps a bearer token from a non-cookie transport.
func FromToken(access string) *Handle {
	return &Handle{sess: Session{AccessToken: access}}
}

// Session returns the current token pair.
func (h *Handle) Session() Session {
	return h.sess
}

// WriteAccessToken replaces the access token and persists it when a cookie
// writer is attached.
func (h *Handle) WriteAccessToken(tok string) {
	h.sess.AccessToken = tok
	if h.mgr != nil && h.w != nil {
		h.mgr.SetAccessToken(h.w, tok)
	}
}

// WriteRefreshToken replaces the refresh token and persists it when a cookie
// writer is attached.
func (h *Handle) WriteRefreshToken(tok string) {
	h.sess.RefreshToken = tok
	if h.mgr != nil && h.w != nil {
		h.mgr.SetRefreshToken(h.w, tok)
	}
}

// ClearAll drops both tokens and removes the cookies when attached.
func (h *Handle) ClearAll() {
	h.sess = Session{}
	if h.mgr != nil && h.w != nil {
		h.mgr.ClearAll(h.w)
	}
}
