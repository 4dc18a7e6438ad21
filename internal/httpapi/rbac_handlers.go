package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"authgrid.dev/internal/audit"
	"authgrid.dev/internal/auth"
)

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

type createRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		perms, err := a.rbac.ListPermissions(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"permissions": perms,
			"grouped":     auth.GroupPermissions(perms),
		})
	case http.MethodPost:
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		perm, err := a.rbac.CreatePermission(r.Context(), req.Name, req.Description, req.Resource, req.Action)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.permission.created", map[string]any{
			"permission_id": perm.ID,
			"name":          perm.Name,
		})
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description, req.PermissionIDs, false)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.created", map[string]any{
			"role_id": role.ID,
			"name":    role.Name,
		})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleByID(w http.ResponseWriter, r *http.Request) {
	roleID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if roleID == "" || strings.Contains(roleID, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		role, perms, err := a.rbac.GetRole(r.Context(), roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"role":        role,
			"permissions": perms,
		})
	case http.MethodDelete:
		if err := a.rbac.DeleteRole(r.Context(), roleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "rbac.role.deleted", map[string]any{
			"role_id": roleID,
		})
		writeJSON(w, http.StatusOK, map[string]any{"status": "role_deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

// handleUserScoped routes /v1/users/{id}/roles[...], /v1/users/{id}/permissions.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if path == "" || len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	userID := parts[0]
	switch parts[1] {
	case "roles":
		switch len(parts) {
		case 2:
			a.handleUserRoles(w, r, userID)
		case 3:
			a.handleUserRole(w, r, userID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		}
	case "permissions":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
			return
		}
		a.handleUserPermissions(w, r, userID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if err := a.rbac.AssignRole(r.Context(), userID, req.RoleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.assigned", map[string]any{
		"user_id": userID,
		"role_id": req.RoleID,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": userID,
		"role_id": req.RoleID,
	})
}

func (a *API) handleUserRole(w http.ResponseWriter, r *http.Request, userID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.rbac.UnassignRole(r.Context(), userID, roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "rbac.role.unassigned", map[string]any{
		"user_id": userID,
		"role_id": roleID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "role_unassigned"})
}

func (a *API) handleUserPermissions(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	perms, err := a.rbac.EffectivePermissions(r.Context(), userID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": perms,
	})
}
