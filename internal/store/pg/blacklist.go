package pg

import (
	"context"
	"database/sql"
	"time"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/ids"
)

type blacklistStore struct{ db *sql.DB }

func (s *blacklistStore) Add(ctx context.Context, t *auth.RevokedToken) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into token_blacklist (id, token_hash, user_id, reason, expires_at)
		values ($1,$2,$3,$4,$5)
		on conflict (token_hash) do nothing`,
		t.ID, t.TokenHash, t.UserID, t.Reason, t.ExpiresAt,
	)
	return err
}

func (s *blacklistStore) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from token_blacklist where token_hash = $1)`, tokenHash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *blacklistStore) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from token_blacklist where expires_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
