package authz

import (
	"context"
	"errors"
	"strings"
)

// Resolver turns token claims into user records and users into capability
// snapshots. It only ever reads the identity and role stores.
type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveUser looks up a user by id, scoped by organization when the claims
// carry one. A missing user resolves to (nil, nil) so callers treat "no
// user" exactly like "no session". Storage failures propagate.
func (r *Resolver) ResolveUser(ctx context.Context, userID, organizationID string) (*User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	users := r.store.Users(ctx)

	var (
		user *User
		err  error
	)
	if organizationID != "" {
		user, err = users.FindScoped(ctx, userID, organizationID)
	} else {
		user, err = users.Find(ctx, userID)
	}
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// PermissionsFor expands the user's role into a flat capability snapshot.
// Computed fresh per call; a missing role or a malformed stored list
// resolves to the empty set, never to full access.
func (r *Resolver) PermissionsFor(ctx context.Context, user *User) (CapabilitySet, error) {
	if user == nil || user.RoleID == "" {
		return make(CapabilitySet), nil
	}
	raw, err := r.store.Roles(ctx).PermissionList(ctx, user.RoleID)
	if errors.Is(err, ErrNotFound) {
		return make(CapabilitySet), nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeCapabilityList(raw), nil
}
