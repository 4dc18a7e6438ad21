package auth

import (
	"context"
	"time"

	"authgrid.dev/internal/ids"
	"authgrid.dev/internal/obs"
)

// RevocationCache fronts blacklist lookups. Implementations cache positive
// entries only: a miss always falls through to the durable store, so the
// cache can never hide a revocation.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, tokenHash string, ttl time.Duration) error
	// Lookup reports (revoked, found). found=false means cache miss.
	Lookup(ctx context.Context, tokenHash string) (revoked bool, found bool, err error)
}

// RevokeAccessToken inserts the token digest into the blacklist. Inserting
// an already-present token is a no-op.
func (s *Service) RevokeAccessToken(ctx context.Context, token, userID string, expiresAt time.Time, reason string) error {
	tokenHash := hashToken(token)
	entry := &RevokedToken{
		ID:        ids.New(),
		TokenHash: tokenHash,
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: expiresAt,
	}
	if err := s.store.Blacklist(ctx).Add(ctx, entry); err != nil {
		return err
	}
	obs.TokenRevoked(reason)
	if s.cache != nil {
		if ttl := expiresAt.Sub(s.now()); ttl > 0 {
			// Write-through; a failed cache write only costs a store lookup.
			_ = s.cache.MarkRevoked(ctx, tokenHash, ttl)
		}
	}
	return nil
}

// IsAccessTokenRevoked checks the cache, then the durable blacklist. A
// positive store hit is backfilled into the cache.
func (s *Service) IsAccessTokenRevoked(ctx context.Context, token string) (bool, error) {
	tokenHash := hashToken(token)
	if s.cache != nil {
		if revoked, found, err := s.cache.Lookup(ctx, tokenHash); err == nil && found {
			return revoked, nil
		}
	}
	revoked, err := s.store.Blacklist(ctx).IsRevoked(ctx, tokenHash)
	if err != nil {
		return false, err
	}
	if revoked && s.cache != nil {
		_ = s.cache.MarkRevoked(ctx, tokenHash, s.accessTTL)
	}
	return revoked, nil
}

// SweepBlacklist deletes blacklist entries past their expiry. A concurrent
// lookup racing a not-yet-swept entry harmlessly reports "revoked": the
// token is expired and rejected either way.
func (s *Service) SweepBlacklist(ctx context.Context) (int64, error) {
	n, err := s.store.Blacklist(ctx).DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	obs.BlacklistSwept(n)
	return n, nil
}

// CleanupSessions removes inactive sessions whose last update is older than
// the retention window.
func (s *Service) CleanupSessions(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	return s.store.Sessions(ctx).DeleteInactiveBefore(ctx, cutoff)
}
