package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"studyhub.org/internal/auth"
)

type assignRoleRequest struct {
	RoleKey string `json:"role_key"`
}

type createUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	roles, err := a.rbac.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if roles == nil {
		roles = []auth.Role{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.rbac.ListPermissions(r.Context())
	if err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if perms == nil {
		perms = []auth.Permission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// handleUserResource routes /v1/users/{id} and /v1/users/{id}/roles.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "roles":
		a.handleUserRoles(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUser(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, err := a.users.FindUser(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	ac, err := a.resolver.LoadContext(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        user,
		"roles":       ac.Roles,
		"permissions": ac.SortedPermissions(),
	})
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		// An empty role set is a valid answer only for a user that exists.
		if _, err := a.users.FindUser(r.Context(), userID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		ac, err := a.resolver.LoadContext(r.Context(), userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": ac.Roles})
	case http.MethodPost:
		a.handleAssignRole(w, r, userID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request, userID string) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleKey = strings.TrimSpace(req.RoleKey)
	if req.RoleKey == "" {
		writeError(w, r, http.StatusBadRequest, "role_key is required")
		return
	}

	actor, _ := auth.FromContext(r.Context())
	role, err := a.resolver.AssignRole(r.Context(), actor.UserID, userID, req.RoleKey)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "user not found")
		default:
			writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
		}
		return
	}

	a.auditEvent(r, actor.UserID, "rbac.role.assign", "user", userID, map[string]string{
		"role_key": role.Key,
		"role_id":  role.ID,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"role_key": role.Key,
	})
}

// handleCreateUser provisions a local account with a password credential.
func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	user := &auth.User{
		Username:    req.Username,
		Email:       strings.TrimSpace(req.Email),
		DisplayName: strings.TrimSpace(req.DisplayName),
	}
	if err := a.users.CreateUser(r.Context(), user); err != nil {
		handleAuthError(w, r, err)
		return
	}
	if err := a.credentials.SetPassword(r.Context(), user.ID, req.Password); err != nil {
		handleAuthError(w, r, err)
		return
	}

	actor, _ := auth.FromContext(r.Context())
	a.auditEvent(r, actor.UserID, "rbac.user.create", "user", user.ID, map[string]string{
		"username": user.Username,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

// handleRoleResource routes /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	roleID := parts[0]

	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}

	actor, _ := auth.FromContext(r.Context())
	a.auditEvent(r, actor.UserID, "rbac.role.permissions.update", "role", roleID, map[string]string{
		"count": fmt.Sprintf("%d", len(req.Permissions)),
	})
	w.WriteHeader(http.StatusNoContent)
}
