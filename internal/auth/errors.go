package auth

import "errors"

var (
	ErrUnauthenticated     = errors.New("auth: unauthenticated")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrTokenReuse          = errors.New("auth: refresh token reuse detected")
	ErrSessionRevoked      = errors.New("auth: session revoked")
	ErrSessionExpired      = errors.New("auth: session expired")
	ErrEmailNotVerified    = errors.New("auth: email not verified")
	ErrForbidden           = errors.New("auth: forbidden")
	ErrNotFound            = errors.New("auth: not found")
	ErrDuplicateName       = errors.New("auth: duplicate name")
	ErrSystemRoleProtected = errors.New("auth: system role is protected")
	ErrUnknownPermission   = errors.New("auth: unknown permission id")
	ErrInvalidInput        = errors.New("auth: invalid input")
)

// Code returns the stable machine-readable code for a failure surfaced to
// callers. Unrecognized errors map to "internal" so store details never leak.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrSessionRevoked),
		errors.Is(err, ErrSessionExpired):
		return "unauthenticated"
	case errors.Is(err, ErrTokenReuse):
		return "token_reuse_detected"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrSystemRoleProtected):
		return "system_role_protected"
	case errors.Is(err, ErrUnknownPermission):
		return "unknown_permission_id"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
