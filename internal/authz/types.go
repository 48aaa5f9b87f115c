package authz

import "time"

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Organization is the tenant boundary every user and role belongs to.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is a back-office account. The authorization core reads users and
// never mutates them outside the explicit admin operations.
type User struct {
	ID             string
	OrganizationID string
	RoleID         string
	Email          string
	PasswordHash   string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the user may hold a session.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// Role groups capabilities. The permission list is persisted as a JSON
// array of "module:resource:action" keys and decoded defensively.
type Role struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RefreshToken is the persisted half of a refresh credential. Only the
// sha256 hash of the secret is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// TokenPair carries freshly minted credentials and their expirations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is a user with the capability snapshot resolved for the current
// request. Snapshots are never reused across requests.
type Principal struct {
	User         *User
	Capabilities CapabilitySet
}
