package authz

import "context"

// Store describes persistence operations required by the authorization core.
type Store interface {
	Organizations(ctx context.Context) OrganizationStore
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
}

// UserStore manages users. Lookups scoped by organization return ErrNotFound
// for users outside the scope.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindScoped(ctx context.Context, id, organizationID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByOrg(ctx context.Context, organizationID string) ([]*User, error)
	UpdateStatus(ctx context.Context, userID, status string) error
	AssignRole(ctx context.Context, userID, roleID string) error
}

// RoleStore manages roles and their stored permission lists. PermissionList
// returns the raw JSON column; decoding is the resolver's job.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	ListByOrg(ctx context.Context, organizationID string) ([]*Role, error)
	SetPermissions(ctx context.Context, roleID string, raw []byte) error
	PermissionList(ctx context.Context, roleID string) ([]byte, error)
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
	MarkRevokedByUser(ctx context.Context, userID string) error
}
