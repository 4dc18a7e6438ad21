package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Permissions(ctx context.Context) PermissionStore
	Roles(ctx context.Context) RoleStore
	Sessions(ctx context.Context) SessionStore
	Blacklist(ctx context.Context) BlacklistStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByVerificationToken(ctx context.Context, tokenHash string) (*User, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*User, error)
	// MarkEmailVerified sets is_email_verified and clears verification fields.
	MarkEmailVerified(ctx context.Context, userID string) error
	SetResetToken(ctx context.Context, userID, tokenHash string, expires time.Time) error
	// UpdatePassword replaces the hash and clears any pending reset token.
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Create(ctx context.Context, p *Permission) error
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
	Find(ctx context.Context, id string) (*Permission, error)
	ForRole(ctx context.Context, roleID string) ([]Permission, error)
	// ForUser returns the deduplicated union over all assigned roles.
	ForUser(ctx context.Context, userID string) ([]Permission, error)
}

// RoleStore manages roles and user assignments.
type RoleStore interface {
	// Create persists the role and its permission associations atomically;
	// an unknown permission id fails the whole operation.
	Create(ctx context.Context, role *Role, permissionIDs []string) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	// Delete removes the role; association rows cascade at the store level.
	Delete(ctx context.Context, roleID string) error
	// Assign and Unassign are idempotent.
	Assign(ctx context.Context, userID, roleID string) error
	Unassign(ctx context.Context, userID, roleID string) error
	Assignments(ctx context.Context, userID string) ([]UserRoleAssignment, error)
}

// SessionStore manages refresh-token sessions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	// ListByUser orders by last activity, most recent first.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	// Deactivate flips is_active to false only if it was true and reports
	// whether this call won the flip. Losing the race means a concurrent
	// rotation or revocation already consumed the session.
	Deactivate(ctx context.Context, id string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) error
	Touch(ctx context.Context, id string, at time.Time) error
	// DeleteInactiveBefore removes inactive sessions not updated since cutoff.
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BlacklistStore manages revoked access tokens.
type BlacklistStore interface {
	// Add is idempotent: inserting an already-present token hash is a no-op.
	Add(ctx context.Context, t *RevokedToken) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
