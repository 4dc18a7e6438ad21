package httpapi

import (
	"net/http"
	"strings"

	"authgrid.dev/internal/audit"
	"authgrid.dev/internal/auth"
)

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "missing principal")
		return
	}
	switch r.Method {
	case http.MethodGet:
		sessions, err := a.svc.ListSessions(r.Context(), principal.User.ID, principal.SessionID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	case http.MethodDelete:
		// Revoke everything, including the current session.
		if err := a.svc.RevokeAllSessions(r.Context(), principal.User.ID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "auth.sessions.revoked_all", nil)
		writeJSON(w, http.StatusOK, map[string]any{"status": "sessions_revoked"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "missing principal")
		return
	}
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/auth/sessions/"), "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if err := a.svc.RevokeSession(r.Context(), sessionID, principal.User.ID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.session.revoked", map[string]any{
		"session_id": sessionID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "session_revoked"})
}
