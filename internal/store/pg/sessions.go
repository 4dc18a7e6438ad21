package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/ids"
)

type sessionStore struct{ db *sql.DB }

const sessionColumns = `id, user_id, refresh_token_hash, device_name, device_type, browser, os,
	ip_address, user_agent, expires_at, last_activity_at, is_active, created_at, updated_at`

func (s *sessionStore) Create(ctx context.Context, sess *auth.Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, refresh_token_hash, device_name, device_type, browser, os,
			ip_address, user_agent, expires_at, last_activity_at, is_active)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sess.ID, sess.UserID, sess.RefreshTokenHash,
		nullIfEmpty(sess.DeviceName), nullIfEmpty(sess.DeviceType),
		nullIfEmpty(sess.Browser), nullIfEmpty(sess.OS),
		nullIfEmpty(sess.IPAddress), nullIfEmpty(sess.UserAgent),
		sess.ExpiresAt, sess.LastActivityAt, sess.IsActive,
	)
	return err
}

func (s *sessionStore) Find(ctx context.Context, id string) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx, `select `+sessionColumns+` from sessions where id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *sessionStore) ListByUser(ctx context.Context, userID string) ([]*auth.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+sessionColumns+`
		from sessions
		where user_id = $1
		order by last_activity_at desc nulls last, created_at desc`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*auth.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Deactivate uses is_active as a compare-and-swap guard so that of two
// concurrent refresh attempts only one consumes the session.
func (s *sessionStore) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update sessions
		set is_active = false, updated_at = now()
		where id = $1 and is_active = true`, id)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *sessionStore) DeactivateAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions
		set is_active = false, updated_at = now()
		where user_id = $1 and is_active = true`, userID)
	return err
}

func (s *sessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update sessions
		set last_activity_at = $2, updated_at = now()
		where id = $1`, id, at)
	return err
}

func (s *sessionStore) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from sessions
		where is_active = false and updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*auth.Session, error) {
	var (
		sess                              auth.Session
		deviceName, deviceType            sql.NullString
		browser, osName, ipAddr, userAgnt sql.NullString
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.RefreshTokenHash,
		&deviceName, &deviceType, &browser, &osName, &ipAddr, &userAgnt,
		&sess.ExpiresAt, &sess.LastActivityAt, &sess.IsActive,
		&sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.DeviceName = deviceName.String
	sess.DeviceType = deviceType.String
	sess.Browser = browser.String
	sess.OS = osName.String
	sess.IPAddress = ipAddr.String
	sess.UserAgent = userAgnt.String
	return &sess, nil
}
