package auth

import (
	"strings"
	"testing"
	"time"
)

func testService(t *testing.T, now func() time.Time) *Service {
	t.Helper()
	return &Service{
		secret:    []byte("test-secret"),
		issuer:    "authgrid",
		now:       now,
		accessTTL: 15 * time.Minute,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := testService(t, func() time.Time { return base })
	user := &User{ID: "user-1", Email: "a@example.com"}

	token, exp, err := svc.signAccessToken(user, "sess-1", base)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if want := base.Add(15 * time.Minute); !exp.Equal(want) {
		t.Fatalf("exp = %v, want %v", exp, want)
	}

	claims, err := svc.verifyAccessToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
	if claims.SessionID != "sess-1" {
		t.Errorf("session id = %q", claims.SessionID)
	}
	if claims.ID == "" {
		t.Error("jti is empty")
	}
}

func TestVerifyAccessTokenExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := testService(t, func() time.Time { return now })
	user := &User{ID: "user-1", Email: "a@example.com"}

	token, _, err := svc.signAccessToken(user, "sess-1", now)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Advance the clock past expiry.
	now = now.Add(16 * time.Minute)
	if _, err := svc.verifyAccessToken(token); err != ErrInvalidToken {
		t.Fatalf("verify after expiry = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyAccessTokenRejectsForgery(t *testing.T) {
	base := time.Now().UTC()
	svc := testService(t, func() time.Time { return base })
	other := testService(t, func() time.Time { return base })
	other.secret = []byte("different-secret")

	token, _, err := other.signAccessToken(&User{ID: "user-1"}, "sess-1", base)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.verifyAccessToken(token); err != ErrInvalidToken {
		t.Fatalf("verify forged token = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.verifyAccessToken(""); err != ErrInvalidToken {
		t.Fatalf("verify empty token = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.verifyAccessToken("not.a.jwt"); err != ErrInvalidToken {
		t.Fatalf("verify garbage = %v, want ErrInvalidToken", err)
	}
}

func TestRefreshTokenFormat(t *testing.T) {
	token, sessionID, secretHash, err := newRefreshToken()
	if err != nil {
		t.Fatalf("newRefreshToken: %v", err)
	}
	gotID, secret, err := splitRefreshToken(token)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if gotID != sessionID {
		t.Errorf("session id = %q, want %q", gotID, sessionID)
	}
	if !secureCompareHash(secretHash, secret) {
		t.Error("secret does not match stored hash")
	}
	if secureCompareHash(secretHash, secret+"x") {
		t.Error("tampered secret matched stored hash")
	}
}

func TestSplitRefreshTokenRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"", ".", "a.", ".b", "abc", "a.b.c"} {
		if _, _, err := splitRefreshToken(raw); err == nil {
			t.Errorf("splitRefreshToken(%q) accepted malformed input", raw)
		}
	}
}

func TestOpaqueTokenDigest(t *testing.T) {
	token, tokenHash, err := newOpaqueToken()
	if err != nil {
		t.Fatalf("newOpaqueToken: %v", err)
	}
	if token == "" || tokenHash == "" {
		t.Fatal("empty token or hash")
	}
	if strings.Contains(token, ".") {
		t.Errorf("opaque token %q contains separator", token)
	}
	if hashToken(token) != tokenHash {
		t.Error("hash mismatch")
	}
}
