package auth_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"authgrid.dev/internal/auth"
)

func sha256hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// fakeCache is an in-memory RevocationCache that counts lookups so tests can
// observe the cache-then-store order.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]bool
	lookups int
	marks   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]bool)}
}

func (c *fakeCache) MarkRevoked(_ context.Context, tokenHash string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tokenHash] = true
	c.marks++
	return nil
}

func (c *fakeCache) Lookup(_ context.Context, tokenHash string) (bool, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
	revoked, found := c.entries[tokenHash]
	return revoked, found, nil
}

func TestRevokeAccessTokenWriteThrough(t *testing.T) {
	clock := newTestClock()
	cache := newFakeCache()
	svc, _ := newTestService(t, clock, auth.WithRevocationCache(cache))
	ctx := context.Background()
	registerVerified(t, svc, "a@example.com", "pw")

	pair, user, err := svc.Login(ctx, "a@example.com", "pw", testDevice)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	revoked, err := svc.IsAccessTokenRevoked(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if revoked {
		t.Fatal("fresh token reported revoked")
	}

	expiresAt := clock.Now().Add(15 * time.Minute)
	if err := svc.RevokeAccessToken(ctx, pair.AccessToken, user.ID, expiresAt, auth.RevocationReasonSecurity); err != nil {
		t.Fatalf("RevokeAccessToken: %v", err)
	}
	if cache.marks != 1 {
		t.Errorf("cache marks = %d, want 1 (write-through)", cache.marks)
	}

	revoked, err = svc.IsAccessTokenRevoked(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("IsAccessTokenRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("revoked token reported valid")
	}
	// Revoking twice is idempotent.
	if err := svc.RevokeAccessToken(ctx, pair.AccessToken, user.ID, expiresAt, auth.RevocationReasonSecurity); err != nil {
		t.Fatalf("second RevokeAccessToken: %v", err)
	}
}

func TestIsAccessTokenRevokedBackfillsCache(t *testing.T) {
	clock := newTestClock()
	_, store := newTestService(t, clock)
	ctx := context.Background()

	// Revoke with no cache attached, then attach one: the first lookup
	// misses and backfills, the second is served from the cache.
	token := "some-access-token"
	entry := &auth.RevokedToken{TokenHash: sha256hex(token), UserID: "u1", ExpiresAt: clock.Now().Add(time.Hour)}
	if err := store.Blacklist(ctx).Add(ctx, entry); err != nil {
		t.Fatalf("blacklist add: %v", err)
	}

	cache := newFakeCache()
	svcCached, err := auth.NewService(store,
		auth.WithSecret("test-secret"),
		auth.WithClock(clock.Now),
		auth.WithRevocationCache(cache),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	revoked, err := svcCached.IsAccessTokenRevoked(ctx, token)
	if err != nil || !revoked {
		t.Fatalf("first lookup = (%v, %v), want (true, nil)", revoked, err)
	}
	if cache.marks != 1 {
		t.Errorf("cache marks = %d, want 1 (backfill)", cache.marks)
	}

	revoked, err = svcCached.IsAccessTokenRevoked(ctx, token)
	if err != nil || !revoked {
		t.Fatalf("second lookup = (%v, %v), want (true, nil)", revoked, err)
	}
	if cache.lookups != 2 {
		t.Errorf("cache lookups = %d, want 2", cache.lookups)
	}
}

func TestSweepBlacklist(t *testing.T) {
	clock := newTestClock()
	svc, store := newTestService(t, clock)
	ctx := context.Background()

	old := &auth.RevokedToken{TokenHash: "hash-old", UserID: "u1", ExpiresAt: clock.Now().Add(-time.Hour)}
	fresh := &auth.RevokedToken{TokenHash: "hash-fresh", UserID: "u1", ExpiresAt: clock.Now().Add(time.Hour)}
	if err := store.Blacklist(ctx).Add(ctx, old); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Blacklist(ctx).Add(ctx, fresh); err != nil {
		t.Fatalf("add: %v", err)
	}

	n, err := svc.SweepBlacklist(ctx)
	if err != nil {
		t.Fatalf("SweepBlacklist: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept = %d, want 1", n)
	}
	revoked, err := store.Blacklist(ctx).IsRevoked(ctx, "hash-fresh")
	if err != nil || !revoked {
		t.Fatal("unexpired entry was swept")
	}
}

func TestCleanupSessions(t *testing.T) {
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

	// Inside the retention window nothing is removed.
	n, err := svc.CleanupSessions(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupSessions: %v", err)
	}
	if n != 0 {
		t.Fatalf("cleaned = %d, want 0", n)
	}

	clock.Advance(31 * 24 * time.Hour)
	n, err = svc.CleanupSessions(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("cleaned = %d, want 1", n)
	}
}
