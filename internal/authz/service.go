package authz

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"opsuite.io/internal/ids"
	"opsuite.io/internal/session"
	"opsuite.io/internal/token"
)

const defaultRefreshTTL = 7 * 24 * time.Hour

// Service is the authorization core: credential issuance, refresh rotation,
// revocation and the per-request action guard.
type Service struct {
	store    Store
	resolver *Resolver
	issuer   *token.Issuer
	denylist *session.Denylist

	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithDenylist enables access-token revocation checks through Redis.
func WithDenylist(dl *session.Denylist) ServiceOption {
	return func(s *Service) {
		s.denylist = dl
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the authorization core.
func NewService(store Store, issuer *token.Issuer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("authz: store is required")
	}
	if issuer == nil {
		return nil, errors.New("authz: token issuer is required")
	}
	svc := &Service{
		store:      store,
		resolver:   NewResolver(store),
		issuer:     issuer,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Resolver exposes the read-only identity/permission resolver.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Login authenticates credentials and mints a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthorized
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !user.Active() {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// RefreshSession rotates the refresh token and mints a new pair. The old
// refresh token is revoked whether or not rotation succeeds past the lookup;
// a hash mismatch also revokes it since that implies leakage of the id half.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, *User, error) {
	tokenID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}

	store := s.store.RefreshTokens(ctx)
	record, err := store.Find(ctx, tokenID)
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, nil, err
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, secret) {
		_ = store.MarkRevoked(ctx, record.ID)
		return TokenPair{}, nil, ErrInvalidToken
	}

	user, err := s.resolver.ResolveUser(ctx, record.UserID, "")
	if err != nil {
		return TokenPair{}, nil, err
	}
	if user == nil || !user.Active() {
		return TokenPair{}, nil, ErrInvalidToken
	}

	if err := store.MarkRevoked(ctx, record.ID); err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.mintTokens(ctx, user)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// RevokeSession destroys a session: the refresh token row is revoked and
// the access token id is denylisted until its natural expiry.
func (s *Service) RevokeSession(ctx context.Context, sess session.Session) error {
	if tokenID, _, err := splitRefreshToken(sess.RefreshToken); err == nil {
		if err := s.store.RefreshTokens(ctx).MarkRevoked(ctx, tokenID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if sess.AccessToken != "" {
		claims, err := token.Decode(sess.AccessToken)
		if err == nil && claims.JTI != "" && claims.ExpiresAt != 0 {
			if err := s.denylist.Revoke(ctx, claims.JTI, time.Unix(claims.ExpiresAt, 0)); err != nil {
				return err
			}
		}
	}
	return nil
}

// RevokeAllSessions revokes every outstanding refresh token for a user.
func (s *Service) RevokeAllSessions(ctx context.Context, userID string) error {
	return s.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, userID)
}

func (s *Service) mintTokens(ctx context.Context, user *User) (TokenPair, error) {
	accessToken, accessExp, err := s.issuer.IssueAccess(user.ID, user.Email, user.OrganizationID)
	if err != nil {
		return TokenPair{}, err
	}
	refreshString, record, err := s.generateRefreshToken(user.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshString,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(userID string) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(secret))
	record := &RefreshToken{
		ID:        tokenID,
		UserID:    userID,
		TokenHash: hex.EncodeToString(sum[:]),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	return tokenID + "." + secret, record, nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
