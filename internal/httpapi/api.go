package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/obs"
)

// ReadyProbe checks downstream dependencies for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth and rbac services.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	rbac       *auth.RBACService
	guard      *auth.Guard
	readyProbe ReadyProbe
	version    string
}

func New(svc *auth.Service, rbac *auth.RBACService, guard *auth.Guard, rp ReadyProbe, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		rbac:       rbac,
		guard:      guard,
		readyProbe: rp,
		version:    version,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// Public auth flows.
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/v1/auth/password/forgot", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/password/reset", a.handleResetPassword)

	// Authenticated routes. Requirements are declared here at registration,
	// not buried inside the handlers.
	a.mux.Handle("/v1/auth/logout", a.guarded(auth.Requirement{}, a.handleLogout))
	a.mux.Handle("/v1/auth/me", a.guarded(auth.Requirement{}, a.handleMe))
	a.mux.Handle("/v1/auth/password/change", a.guarded(auth.Requirement{}, a.handleChangePassword))
	a.mux.Handle("/v1/auth/sessions", a.guarded(auth.Requirement{}, a.handleSessions))
	a.mux.Handle("/v1/auth/sessions/", a.guarded(auth.Requirement{}, a.handleSessionByID))

	a.mux.Handle("/v1/permissions", a.guarded(
		auth.Requirement{VerifiedEmail: true, Permission: auth.PermPermissionsManage}, a.handlePermissions))
	a.mux.Handle("/v1/roles", a.guarded(
		auth.Requirement{VerifiedEmail: true, Permission: auth.PermRolesManage}, a.handleRoles))
	a.mux.Handle("/v1/roles/", a.guarded(
		auth.Requirement{VerifiedEmail: true, Permission: auth.PermRolesManage}, a.handleRoleByID))
	a.mux.Handle("/v1/users/", a.guarded(
		auth.Requirement{VerifiedEmail: true, Permission: auth.PermUsersManage}, a.handleUserScoped))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wraps the mux with metrics instrumentation.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "authgrid-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "authgrid-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  errCode,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleAuthError maps service errors to HTTP statuses with stable codes.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	code := auth.Code(err)
	switch {
	case errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrSessionRevoked),
		errors.Is(err, auth.ErrSessionExpired),
		errors.Is(err, auth.ErrTokenReuse):
		writeError(w, r, http.StatusUnauthorized, code, publicMessage(err))
	case errors.Is(err, auth.ErrEmailNotVerified),
		errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, code, publicMessage(err))
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, code, publicMessage(err))
	case errors.Is(err, auth.ErrDuplicateName),
		errors.Is(err, auth.ErrSystemRoleProtected):
		writeError(w, r, http.StatusConflict, code, publicMessage(err))
	case errors.Is(err, auth.ErrUnknownPermission),
		errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, code, publicMessage(err))
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func publicMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "auth: ")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
