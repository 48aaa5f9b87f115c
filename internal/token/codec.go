package token

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrMalformed indicates the token is not structurally a JWT.
var ErrMalformed = errors.New("token: malformed")

// Claims is the decoded token payload. Decoding alone does not make the
// claims trustworthy; signature verification happens in Verifier.
type Claims struct {
	UserID         string
	Email          string
	OrganizationID string
	TokenType      string
	JTI            string
	IssuedAt       int64
	ExpiresAt      int64
}

// Decode extracts claims from the payload segment without verifying the
// signature. Returns ErrMalformed unless the token has exactly three
// dot-separated segments and a base64url JSON payload.
func Decode(raw string) (*Claims, error) {
	segments := strings.Split(strings.TrimSpace(raw), ".")
	if len(segments) != 3 {
		return nil, ErrMalformed
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, ErrMalformed
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	if sub, ok := payload["sub"].(string); ok {
		claims.UserID = sub
	}
	if email, ok := payload["email"].(string); ok {
		claims.Email = email
	}
	if org, ok := payload["org"].(string); ok {
		claims.OrganizationID = org
	}
	if typ, ok := payload["token_type"].(string); ok {
		claims.TokenType = typ
	}
	if jti, ok := payload["jti"].(string); ok {
		claims.JTI = jti
	}
	if exp, ok := toInt64(payload["exp"]); ok {
		claims.ExpiresAt = exp
	}
	if iat, ok := toInt64(payload["iat"]); ok {
		claims.IssuedAt = iat
	}
	return claims, nil
}

// IsExpired reports whether an epoch-seconds expiry has passed. A zero
// expiry means the claim is absent and the token is treated as non-expired.
func IsExpired(expiresAt int64) bool {
	if expiresAt == 0 {
		return false
	}
	return time.Unix(expiresAt, 0).Before(time.Now())
}

// Valid reports whether the token decodes, carries a subject and is not
// expired. It says nothing about the signature.
func Valid(raw string) bool {
	claims, err := Decode(raw)
	if err != nil {
		return false
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return false
	}
	return !IsExpired(claims.ExpiresAt)
}

// FromHeader extracts the bearer token from an Authorization header value.
func FromHeader(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return i, true
	case int64:
		return t, true
	case int:
		return int64(t), true
	default:
		return 0, false
	}
}
