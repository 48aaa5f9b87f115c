package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"opsuite.io/internal/authz"
	"opsuite.io/internal/ids"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
}

type updateUserStatusRequest struct {
	Status string `json:"status"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type roleResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Permissions    []string  `json:"permissions"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listRoles(w, r)
	case http.MethodPost:
		a.createRole(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	d, ok := a.guard(w, r, "admin", "roles", "view")
	if !ok {
		return
	}
	roles, err := a.store.Roles(r.Context()).ListByOrg(r.Context(), d.User.OrganizationID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		resp, err := a.roleWithPermissions(r, role)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	d, ok := a.guard(w, r, "admin", "roles", "manage")
	if !ok {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	role := &authz.Role{
		ID:             ids.New(),
		OrganizationID: d.User.OrganizationID,
		Name:           req.Name,
		Description:    strings.TrimSpace(req.Description),
	}
	store := a.store.Roles(r.Context())
	if err := store.Create(r.Context(), role); err != nil {
		handleStoreError(w, r, err)
		return
	}
	if len(req.Permissions) > 0 {
		raw, err := authz.EncodeCapabilityList(req.Permissions)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := store.SetPermissions(r.Context(), role.ID, raw); err != nil {
			handleStoreError(w, r, err)
			return
		}
	}

	a.auditLog.Append(r.Context(), auditRecord("admin.role.create", d.User.ID, d.User.OrganizationID, "allowed", "", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	}))
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	resp, err := a.roleWithPermissions(r, role)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) roleWithPermissions(r *http.Request, role *authz.Role) (roleResponse, error) {
	raw, err := a.store.Roles(r.Context()).PermissionList(r.Context(), role.ID)
	if err != nil {
		return roleResponse{}, err
	}
	return roleResponse{
		ID:             role.ID,
		OrganizationID: role.OrganizationID,
		Name:           role.Name,
		Description:    role.Description,
		Permissions:    authz.DecodeCapabilityList(raw).Keys(),
		CreatedAt:      role.CreatedAt,
		UpdatedAt:      role.UpdatedAt,
	}, nil
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	a.setRolePermissions(w, r, parts[0])
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	d, ok := a.guard(w, r, "admin", "roles", "manage")
	if !ok {
		return
	}
	store := a.store.Roles(r.Context())
	role, err := store.Find(r.Context(), roleID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if role.OrganizationID != d.User.OrganizationID {
		writeError(w, r, http.StatusNotFound, "role not found")
		return
	}

	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	raw, err := authz.EncodeCapabilityList(req.Permissions)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.SetPermissions(r.Context(), roleID, raw); err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.auditLog.Append(r.Context(), auditRecord("admin.role.permissions.update", d.User.ID, d.User.OrganizationID, "allowed", "", map[string]any{
		"role_id": roleID,
		"count":   len(req.Permissions),
	}))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	d, ok := a.guard(w, r, "admin", "users", "view")
	if !ok {
		return
	}
	users, err := a.store.Users(r.Context()).ListByOrg(r.Context(), d.User.OrganizationID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	d, ok := a.guard(w, r, "admin", "users", "manage")
	if !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID != "" {
		role, err := a.store.Roles(r.Context()).Find(r.Context(), req.RoleID)
		if err != nil {
			handleStoreError(w, r, err)
			return
		}
		if role.OrganizationID != d.User.OrganizationID {
			writeError(w, r, http.StatusNotFound, "role not found")
			return
		}
	}

	hash, err := authz.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	user := &authz.User{
		ID:             ids.New(),
		OrganizationID: d.User.OrganizationID,
		RoleID:         req.RoleID,
		Email:          email,
		PasswordHash:   hash,
		Status:         authz.UserStatusActive,
	}
	if err := a.store.Users(r.Context()).Create(r.Context(), user); err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.auditLog.Append(r.Context(), auditRecord("admin.user.create", d.User.ID, d.User.OrganizationID, "allowed", "", map[string]any{
		"created_user_id": user.ID,
		"email":           user.Email,
	}))
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch parts[1] {
	case "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateUserStatus(w, r, parts[0])
	case "role":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.assignUserRole(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) updateUserStatus(w http.ResponseWriter, r *http.Request, userID string) {
	d, ok := a.guard(w, r, "admin", "users", "manage")
	if !ok {
		return
	}
	var req updateUserStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	status := strings.TrimSpace(req.Status)
	if status != authz.UserStatusActive && status != authz.UserStatusDisabled {
		writeError(w, r, http.StatusBadRequest, "status must be active or disabled")
		return
	}

	users := a.store.Users(r.Context())
	if _, err := users.FindScoped(r.Context(), userID, d.User.OrganizationID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	if err := users.UpdateStatus(r.Context(), userID, status); err != nil {
		handleStoreError(w, r, err)
		return
	}
	// A disabled user must not keep renewing sessions.
	if status == authz.UserStatusDisabled {
		if err := a.svc.RevokeAllSessions(r.Context(), userID); err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}

	a.auditLog.Append(r.Context(), auditRecord("admin.user.status.update", d.User.ID, d.User.OrganizationID, "allowed", "", map[string]any{
		"target_user_id": userID,
		"status":         status,
	}))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignUserRole(w http.ResponseWriter, r *http.Request, userID string) {
	d, ok := a.guard(w, r, "admin", "users", "manage")
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}

	users := a.store.Users(r.Context())
	if _, err := users.FindScoped(r.Context(), userID, d.User.OrganizationID); err != nil {
		handleStoreError(w, r, err)
		return
	}
	role, err := a.store.Roles(r.Context()).Find(r.Context(), req.RoleID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}
	if role.OrganizationID != d.User.OrganizationID {
		writeError(w, r, http.StatusNotFound, "role not found")
		return
	}
	if err := users.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		handleStoreError(w, r, err)
		return
	}

	a.auditLog.Append(r.Context(), auditRecord("admin.user.assign_role", d.User.ID, d.User.OrganizationID, "allowed", "", map[string]any{
		"target_user_id": userID,
		"role_id":        req.RoleID,
	}))
	w.WriteHeader(http.StatusNoContent)
}
