package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

var testDevice = auth.DeviceContext{
	UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	IPAddress: "203.0.113.7",
}

func newTestService(t *testing.T, clock *testClock, opts ...auth.ServiceOption) (*auth.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SetClock(clock.Now)
	all := append([]auth.ServiceOption{
		auth.WithSecret("test-secret"),
		auth.WithClock(clock.Now),
	}, opts...)
	svc, err := auth.NewService(store, all...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func registerVerified(t *testing.T, svc *auth.Service, email, password string) *auth.User {
	t.Helper()
	ctx := context.Background()
	user, verifyToken, err := svc.Register(ctx, email, password, "Test", "User")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.VerifyEmail(ctx, verifyToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return user
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	user, verifyToken, err := svc.Register(ctx, "New@Example.COM", "s3cret!", "Ada", "Lovelace")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "new@example.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.IsEmailVerified {
		t.Error("new user should not be verified")
	}
	if verifyToken == "" {
		t.Fatal("no verification token returned")
	}

	if err := svc.VerifyEmail(ctx, "wrong-token"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("VerifyEmail(wrong) = %v, want ErrInvalidToken", err)
	}
	if err := svc.VerifyEmail(ctx, verifyToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	// A second register with the same email must conflict.
	if _, _, err := svc.Register(ctx, "new@example.com", "other", "", ""); !errors.Is(err, auth.ErrDuplicateName) {
		t.Fatalf("duplicate Register = %v, want ErrDuplicateName", err)
	}
}

func TestVerifyEmailTokenExpires(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()

	_, verifyToken, err := svc.Register(ctx, "a@example.com", "pw", "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	clock.Advance(25 * time.Hour)
	if err := svc.VerifyEmail(ctx, verifyToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("VerifyEmail after expiry = %v, want ErrInvalidToken", err)
	}
}

func TestLogin(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "correct-horse")

	if _, _, err := svc.Login(ctx, "a@example.com", "wrong", testDevice); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("Login wrong password = %v, want ErrUnauthenticated", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "correct-horse", testDevice); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("Login unknown email = %v, want ErrUnauthenticated", err)
	}

	pair, user, err := svc.Login(ctx, "A@Example.com", "correct-horse", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty token pair")
	}
	if user.Email != "a@example.com" {
		t.Errorf("user email = %q", user.Email)
	}

	principal, err := svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if principal.User.ID != user.ID {
		t.Errorf("principal user = %q, want %q", principal.User.ID, user.ID)
	}
	if principal.SessionID == "" {
		t.Error("principal has no session id")
	}

	sessions, err := svc.ListSessions(ctx, user.ID, principal.SessionID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	if !sessions[0].IsCurrent {
		t.Error("session not marked current")
	}
	if sessions[0].DeviceName != "Firefox on Linux" {
		t.Errorf("device name = %q", sessions[0].DeviceName)
	}
	if sessions[0].IPAddress != "203.0.113.7" {
		t.Errorf("ip = %q", sessions[0].IPAddress)
	}
}

func TestRefreshRotation(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "pw")

	pair, user, err := svc.Login(ctx, "a@example.com", "pw", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	next, _, err := svc.Refresh(ctx, pair.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// Replaying the consumed token is a compromise signal that must revoke
	// every session of the user.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, testDevice); !errors.Is(err, auth.ErrTokenReuse) {
		t.Fatalf("replayed Refresh = %v, want ErrTokenReuse", err)
	}
	if _, _, err := svc.Refresh(ctx, next.RefreshToken, testDevice); !errors.Is(err, auth.ErrTokenReuse) {
		t.Fatalf("Refresh after reuse = %v, want ErrTokenReuse", err)
	}
	sessions, err := svc.ListSessions(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("active sessions after reuse = %d, want 0", len(sessions))
	}
}

func TestRefreshRejectsGarbageAndExpiry(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock, auth.WithRefreshTTL(time.Hour))
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "pw")

	if _, _, err := svc.Refresh(ctx, "not-a-token", testDevice); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("Refresh(garbage) = %v, want ErrInvalidToken", err)
	}

	pair, _, err := svc.Login(ctx, "a@example.com", "pw", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, testDevice); !errors.Is(err, auth.ErrSessionExpired) {
		t.Fatalf("Refresh after expiry = %v, want ErrSessionExpired", err)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "pw")

	pair, _, err := svc.Login(ctx, "a@example.com", "pw", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("Authenticate after logout = %v, want ErrUnauthenticated", err)
	}
	// The session behind the token is deactivated, so its refresh token now
	// trips reuse detection.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, testDevice); !errors.Is(err, auth.ErrTokenReuse) {
		t.Fatalf("Refresh after logout = %v, want ErrTokenReuse", err)
	}
}

func TestChangePassword(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()
	user := registerVerified(t, svc, "a@example.com", "old-pass")

	pair, _, err := svc.Login(ctx, "a@example.com", "old-pass", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong", "new-pass"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("ChangePassword wrong current = %v, want ErrUnauthenticated", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "old-pass", "new-pass"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := svc.Login(ctx, "a@example.com", "old-pass", testDevice); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatal("old password still accepted")
	}
	if _, _, err := svc.Login(ctx, "a@example.com", "new-pass", testDevice); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}
	// Every pre-change session is revoked.
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, testDevice); err == nil {
		t.Fatal("pre-change refresh token still accepted")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "old-pass")

	pair, _, err := svc.Login(ctx, "a@example.com", "old-pass", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	resetToken, err := svc.RequestPasswordReset(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	if err := svc.ResetPassword(ctx, "bogus", "x"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("ResetPassword bogus token = %v, want ErrInvalidToken", err)
	}
	if err := svc.ResetPassword(ctx, resetToken, "new-pass"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	// The token is single use.
	if err := svc.ResetPassword(ctx, resetToken, "again"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("reused reset token = %v, want ErrInvalidToken", err)
	}

	if _, _, err := svc.Login(ctx, "a@example.com", "new-pass", testDevice); err != nil {
		t.Fatalf("Login with reset password: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, testDevice); err == nil {
		t.Fatal("pre-reset refresh token still accepted")
	}
}

func TestResetTokenExpires(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "pw")

	resetToken, err := svc.RequestPasswordReset(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	clock.Advance(2 * time.Hour)
	if err := svc.ResetPassword(ctx, resetToken, "new"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("ResetPassword after expiry = %v, want ErrInvalidToken", err)
	}
}

func TestRevokeSessionOwnership(t *testing.T) {
	clock := newTestClock()
	svc, _ := newTestService(t, clock)
	ctx := context.Background()
	alice := registerVerified(t, svc, "alice@example.com", "pw")
	bob := registerVerified(t, svc, "bob@example.com", "pw")

	alicePair, _, err := svc.Login(ctx, "alice@example.com", "pw", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	principal, err := svc.Authenticate(ctx, alicePair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := svc.RevokeSession(ctx, principal.SessionID, bob.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("foreign RevokeSession = %v, want ErrForbidden", err)
	}
	if err := svc.RevokeSession(ctx, principal.SessionID, alice.ID); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	sessions, err := svc.ListSessions(ctx, alice.ID, "")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("active sessions = %d, want 0", len(sessions))
	}
}
