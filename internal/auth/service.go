package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgrid.dev/internal/ids"
	"authgrid.dev/internal/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultVerifyTTL  = 24 * time.Hour
	defaultResetTTL   = time.Hour
)

const (
	// RevocationReasonLogout marks tokens blacklisted by an ordinary logout.
	RevocationReasonLogout = "logout"
	// RevocationReasonSecurity marks tokens blacklisted defensively.
	RevocationReasonSecurity = "security"
)

// Service provides token issuance, session tracking and revocation.
type Service struct {
	store Store
	cache RevocationCache
	now   func() time.Time

	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithSecret sets the HS256 signing secret. Required.
func WithSecret(secret string) ServiceOption {
	return func(s *Service) error {
		if strings.TrimSpace(secret) == "" {
			return errors.New("auth: signing secret is required")
		}
		s.secret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithRevocationCache fronts blacklist lookups with a fast cache. Negative
// results are never cached, so a stale cache can only over-reject.
func WithRevocationCache(cache RevocationCache) ServiceOption {
	return func(s *Service) error {
		s.cache = cache
		return nil
	}
}

// NewService constructs a Service. A signing secret must be provided.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		issuer:     "authgrid",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		verifyTTL:  defaultVerifyTTL,
		resetTTL:   defaultResetTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if len(svc.secret) == 0 {
		return nil, errors.New("auth: signing secret is required")
	}
	return svc, nil
}

// EnsureBuiltins makes sure the builtin permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions)
}

// Register creates a user and returns the email verification token to be
// delivered out of band. Only the token digest is persisted.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}
	verifyToken, verifyHash, err := newOpaqueToken()
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	expires := now.Add(s.verifyTTL)
	user := &User{
		ID:                       ids.New(),
		Email:                    email,
		FirstName:                strings.TrimSpace(firstName),
		LastName:                 strings.TrimSpace(lastName),
		PasswordHash:             hash,
		IsActive:                 true,
		EmailVerificationToken:   &verifyHash,
		EmailVerificationExpires: &expires,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, "", err
	}
	return user, verifyToken, nil
}

// VerifyEmail consumes a verification token and flips the verified flag.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	users := s.store.Users(ctx)
	user, err := users.FindByVerificationToken(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if user.EmailVerificationExpires == nil || s.now().After(*user.EmailVerificationExpires) {
		return ErrInvalidToken
	}
	return users.MarkEmailVerified(ctx, user.ID)
}

// Login authenticates credentials and issues a fresh token pair along with
// a session row recording the device.
func (s *Service) Login(ctx context.Context, email, password string, device DeviceContext) (TokenPair, *User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrUnauthenticated
		}
		return TokenPair{}, nil, err
	}
	if !user.IsActive {
		return TokenPair{}, nil, ErrUnauthenticated
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthenticated
	}
	pair, err := s.mintTokens(ctx, user, device)
	if err != nil {
		return TokenPair{}, nil, err
	}
	obs.TokenIssued("login")
	return pair, user, nil
}

// Refresh rotates a refresh token: the presented session is atomically
// deactivated and a replacement session with a new pair is created.
// Presenting an already-rotated token is treated as a compromise signal and
// deactivates every session of the implicated user.
func (s *Service) Refresh(ctx context.Context, refreshToken string, device DeviceContext) (TokenPair, *User, error) {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	sessions := s.store.Sessions(ctx)
	session, err := sessions.Find(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}
	if !secureCompareHash(session.RefreshTokenHash, secret) {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if !session.IsActive {
		// The token itself is genuine but its session was already rotated
		// or revoked: someone is replaying it. Kill every session.
		if err := sessions.DeactivateAllForUser(ctx, session.UserID); err != nil {
			return TokenPair{}, nil, err
		}
		obs.TokenReuseDetected()
		return TokenPair{}, nil, ErrTokenReuse
	}
	if s.now().After(session.ExpiresAt) {
		return TokenPair{}, nil, ErrSessionExpired
	}
	user, err := s.store.Users(ctx).Find(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrInvalidToken
		}
		return TokenPair{}, nil, err
	}
	if !user.IsActive {
		return TokenPair{}, nil, ErrUnauthenticated
	}

	// Compare-and-swap on is_active; a losing concurrent refresh fails whole.
	won, err := sessions.Deactivate(ctx, session.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !won {
		return TokenPair{}, nil, ErrSessionRevoked
	}

	pair, err := s.mintTokens(ctx, user, device)
	if err != nil {
		return TokenPair{}, nil, err
	}
	obs.TokenIssued("refresh")
	return pair, user, nil
}

// Logout blacklists the presented access token until its natural expiry and
// deactivates the owning session.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.verifyAccessToken(accessToken)
	if err != nil {
		return ErrUnauthenticated
	}
	expiresAt := s.now().Add(s.accessTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := s.RevokeAccessToken(ctx, accessToken, claims.Subject, expiresAt, RevocationReasonLogout); err != nil {
		return err
	}
	if claims.SessionID != "" {
		if _, err := s.store.Sessions(ctx).Deactivate(ctx, claims.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// Authenticate validates an access token end to end: signature, expiry,
// revocation ledger, then identity. Session activity is touched best-effort.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.verifyAccessToken(accessToken)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	revoked, err := s.IsAccessTokenRevoked(ctx, accessToken)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if !user.IsActive {
		return Principal{}, ErrUnauthenticated
	}
	if claims.SessionID != "" {
		// Lossy under contention; an unrecorded touch is acceptable.
		_ = s.store.Sessions(ctx).Touch(ctx, claims.SessionID, s.now().UTC())
	}
	return Principal{User: user, SessionID: claims.SessionID}, nil
}

// ChangePassword verifies the current password, replaces the hash, and logs
// the user out everywhere.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if strings.TrimSpace(next) == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, userID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrUnauthenticated
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	return s.RevokeAllSessions(ctx, userID)
}

// RequestPasswordReset issues a reset token for the account. The caller is
// responsible for delivering it; only its digest is stored.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	token, tokenHash, err := newOpaqueToken()
	if err != nil {
		return "", err
	}
	expires := s.now().UTC().Add(s.resetTTL)
	if err := s.store.Users(ctx).SetResetToken(ctx, user.ID, tokenHash, expires); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword consumes a reset token, replaces the password hash and logs
// the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(newPassword) == "" {
		return ErrInvalidToken
	}
	users := s.store.Users(ctx)
	user, err := users.FindByResetToken(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if user.PasswordResetExpires == nil || s.now().After(*user.PasswordResetExpires) {
		return ErrInvalidToken
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	return s.RevokeAllSessions(ctx, user.ID)
}

func (s *Service) mintTokens(ctx context.Context, user *User, device DeviceContext) (TokenPair, error) {
	now := s.now().UTC()
	refreshToken, sessionID, secretHash, err := newRefreshToken()
	if err != nil {
		return TokenPair{}, err
	}
	info := ParseUserAgent(device.UserAgent)
	session := &Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: secretHash,
		DeviceName:       info.Name,
		DeviceType:       info.Type,
		Browser:          info.Browser,
		OS:               info.OS,
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		ExpiresAt:        now.Add(s.refreshTTL),
		IsActive:         true,
	}
	if err := s.store.Sessions(ctx).Create(ctx, session); err != nil {
		return TokenPair{}, err
	}
	accessToken, accessExp, err := s.signAccessToken(user, sessionID, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}
