package authz

import (
	"context"
	"errors"

	"opsuite.io/internal/obs"
	"opsuite.io/internal/session"
	"opsuite.io/internal/token"
)

// DenyReason categorizes a denial. Audit records keep the precise reason;
// user-facing responses map it to a generic category.
type DenyReason string

const (
	DenyUnauthenticated DenyReason = "unauthenticated"
	DenySessionExpired  DenyReason = "session_expired"
	DenyUserNotFound    DenyReason = "user_not_found"
	DenyUserInactive    DenyReason = "user_inactive"
	DenyForbidden       DenyReason = "forbidden"
	DenyMalformedToken  DenyReason = "malformed_token"

	// DenyInternal is the fail-closed mapping of an infrastructure failure:
	// not part of the client-visible taxonomy, retained for operators.
	DenyInternal DenyReason = "internal_error"
)

// Decision is the guard's tagged result: either an authorized principal or
// a denial reason, never both.
type Decision struct {
	Principal
	Reason DenyReason

	// Err holds the underlying infrastructure failure when Reason is
	// DenyInternal. Never shown to clients.
	Err error
}

// Authorized reports whether the caller may proceed. Callers must not touch
// domain data on a denied decision, read paths included.
func (d Decision) Authorized() bool {
	return d.Reason == "" && d.User != nil
}

func deny(reason DenyReason) Decision {
	obs.RecordDecision(false, string(reason))
	return Decision{Reason: reason}
}

func denyErr(err error) Decision {
	obs.RecordDecision(false, string(DenyInternal))
	return Decision{Reason: DenyInternal, Err: err}
}

// CheckAction is the single gate every guarded operation calls. It resolves
// the session, silently renews an expired access token from the refresh
// token, resolves identity and permissions, and compares the required
// capability. Fail-closed: any ambiguous or failed state denies.
func (s *Service) CheckAction(ctx context.Context, h *session.Handle, module, resource, action string) Decision {
	sess := h.Session()
	if sess.Empty() {
		return deny(DenyUnauthenticated)
	}

	claims, d := s.authenticate(ctx, h, sess)
	if claims == nil {
		return d
	}

	d = s.resolvePrincipal(ctx, claims)
	if !d.Authorized() {
		return d
	}
	if !d.Capabilities.Has(Capability{Module: module, Resource: resource, Action: action}) {
		return deny(DenyForbidden)
	}

	obs.RecordDecision(true, "")
	return d
}

// CheckSession validates the session without requiring a capability; used
// by endpoints that only need a resolved identity (e.g. /v1/auth/me).
func (s *Service) CheckSession(ctx context.Context, h *session.Handle) Decision {
	sess := h.Session()
	if sess.Empty() {
		return deny(DenyUnauthenticated)
	}
	claims, d := s.authenticate(ctx, h, sess)
	if claims == nil {
		return d
	}
	d = s.resolvePrincipal(ctx, claims)
	if !d.Authorized() {
		return d
	}
	obs.RecordDecision(true, "")
	return d
}

// resolvePrincipal turns trusted claims into a principal with a fresh
// permission snapshot. Both gates share it so their identity checks stay
// in lockstep.
func (s *Service) resolvePrincipal(ctx context.Context, claims *token.Claims) Decision {
	user, err := s.resolver.ResolveUser(ctx, claims.UserID, claims.OrganizationID)
	if err != nil {
		return denyErr(err)
	}
	if user == nil {
		return deny(DenyUserNotFound)
	}
	if !user.Active() {
		return deny(DenyUserInactive)
	}
	caps, err := s.resolver.PermissionsFor(ctx, user)
	if err != nil {
		return denyErr(err)
	}
	return Decision{Principal: Principal{User: user, Capabilities: caps}}
}

// authenticate yields trusted claims for the session, renewing once from
// the refresh token when the access token is unusable. A nil claims return
// carries the denial decision.
func (s *Service) authenticate(ctx context.Context, h *session.Handle, sess session.Session) (*token.Claims, Decision) {
	if sess.AccessToken != "" {
		claims, err := s.issuer.VerifyAccess(sess.AccessToken)
		if err == nil {
			revoked, derr := s.denylist.IsRevoked(ctx, claims.JTI)
			if derr != nil {
				return nil, denyErr(derr)
			}
			if !revoked {
				return claims, Decision{}
			}
			// Revoked mid-lifetime: fall through to renewal, which fails
			// for a properly logged-out session.
		} else if sess.RefreshToken == "" {
			if _, decodeErr := token.Decode(sess.AccessToken); errors.Is(decodeErr, token.ErrMalformed) {
				return nil, deny(DenyMalformedToken)
			}
			return nil, deny(DenySessionExpired)
		}
	}

	if sess.RefreshToken == "" {
		return nil, deny(DenySessionExpired)
	}
	pair, user, err := s.RefreshSession(ctx, sess.RefreshToken)
	if errors.Is(err, ErrInvalidToken) {
		return nil, deny(DenySessionExpired)
	}
	if err != nil {
		return nil, denyErr(err)
	}

	// One-shot silent renewal; concurrent renewals race benignly, last
	// cookie write wins and every minted token is individually valid.
	h.WriteAccessToken(pair.AccessToken)
	h.WriteRefreshToken(pair.RefreshToken)

	return &token.Claims{
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: user.OrganizationID,
		ExpiresAt:      pair.AccessExpiresAt.Unix(),
	}, Decision{}
}
