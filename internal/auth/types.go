package auth

import "time"

// User is an account identified by email. Verification and reset token
// fields hold SHA-256 digests of the opaque tokens mailed to the user and
// are cleared once consumed.
type User struct {
	ID                       string     `json:"id"`
	Email                    string     `json:"email"`
	FirstName                string     `json:"first_name"`
	LastName                 string     `json:"last_name"`
	PasswordHash             string     `json:"-"`
	IsActive                 bool       `json:"is_active"`
	IsEmailVerified          bool       `json:"is_email_verified"`
	EmailVerificationToken   *string    `json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`
	PasswordResetToken       *string    `json:"-"`
	PasswordResetExpires     *time.Time `json:"-"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// Permission is a fine-grained capability named "resource:action".
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role groups permissions. System roles cannot be deleted.
type Role struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserRoleAssignment links a user to a role. Composite key (UserID, RoleID).
type UserRoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one refresh-token/device pairing. The refresh token secret is
// stored as a SHA-256 digest; the opaque token handed to the client embeds
// the session id, so refresh-token uniqueness follows from id uniqueness.
type Session struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	RefreshTokenHash string     `json:"-"`
	DeviceName       string     `json:"device_name,omitempty"`
	DeviceType       string     `json:"device_type,omitempty"`
	Browser          string     `json:"browser,omitempty"`
	OS               string     `json:"os,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	UserAgent        string     `json:"-"`
	ExpiresAt        time.Time  `json:"expires_at"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RevokedToken is a blacklist entry for an access token invalidated before
// its natural expiry. TokenHash is the SHA-256 hex of the full token string.
type RevokedToken struct {
	ID        string    `json:"id"`
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// DeviceInfo is derived from a User-Agent string; parsing never fails and
// unrecognized agents classify as DeviceUnknown.
type DeviceInfo struct {
	Name    string
	Type    string
	Browser string
	OS      string
}

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceUnknown = "unknown"
)

// DeviceContext carries per-request transport metadata used when creating
// session rows.
type DeviceContext struct {
	UserAgent string
	IPAddress string
}

// TokenPair is the result of login or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Principal is a user with their resolved session and, when a route asked
// for it, the effective permission set.
type Principal struct {
	User        *User
	SessionID   string
	Permissions map[string]struct{}
}

// HasPermission reports whether the resolved permission set contains name.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}
