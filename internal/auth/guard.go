package auth

import (
	"context"
	"errors"

	"authgrid.dev/internal/obs"
)

// Requirement declares what a route demands beyond a valid token. The zero
// value means "authenticated user" only. Requirements live in the route
// registration table, visible at the call site.
type Requirement struct {
	VerifiedEmail bool
	Permission    string
}

// Guard is the request-time authorization decision function.
type Guard struct {
	svc  *Service
	rbac *RBACService
}

// NewGuard constructs a Guard over the token service and permission graph.
func NewGuard(svc *Service, rbac *RBACService) (*Guard, error) {
	if svc == nil || rbac == nil {
		return nil, errors.New("auth: guard requires service and rbac")
	}
	return &Guard{svc: svc, rbac: rbac}, nil
}

// Authorize runs the per-request decision: token validity, revocation,
// identity and activity always; email verification and permission
// membership only when the requirement asks for them. On success the
// principal carries the permission set if one was computed.
func (g *Guard) Authorize(ctx context.Context, accessToken string, req Requirement) (Principal, error) {
	if accessToken == "" {
		obs.GuardDenied("unauthenticated")
		return Principal{}, ErrUnauthenticated
	}
	principal, err := g.svc.Authenticate(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrInvalidToken) {
			obs.GuardDenied("unauthenticated")
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if req.VerifiedEmail && !principal.User.IsEmailVerified {
		obs.GuardDenied("email_not_verified")
		return Principal{}, ErrEmailNotVerified
	}
	if req.Permission != "" {
		perms, err := g.rbac.EffectivePermissionSet(ctx, principal.User.ID)
		if err != nil {
			return Principal{}, err
		}
		principal.Permissions = perms
		if !principal.HasPermission(req.Permission) {
			obs.GuardDenied("forbidden")
			return Principal{}, ErrForbidden
		}
	}
	return principal, nil
}
