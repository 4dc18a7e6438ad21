package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/ids"
)

type userStore struct{ db *sql.DB }

const userColumns = `id, email, first_name, last_name, password_hash, is_active, is_email_verified,
	email_verification_token, email_verification_expires, password_reset_token, password_reset_expires,
	created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, email, first_name, last_name, password_hash, is_active, is_email_verified,
			email_verification_token, email_verification_expires)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsActive, u.IsEmailVerified,
		u.EmailVerificationToken, u.EmailVerificationExpires,
	)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrDuplicateName
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findBy(ctx, `id = $1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findBy(ctx, `email = $1`, email)
}

func (s *userStore) FindByVerificationToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return s.findBy(ctx, `email_verification_token = $1`, tokenHash)
}

func (s *userStore) FindByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	return s.findBy(ctx, `password_reset_token = $1`, tokenHash)
}

func (s *userStore) findBy(ctx context.Context, where string, arg any) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where `+where, arg)
	var u auth.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsActive, &u.IsEmailVerified,
		&u.EmailVerificationToken, &u.EmailVerificationExpires, &u.PasswordResetToken, &u.PasswordResetExpires,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *userStore) MarkEmailVerified(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set is_email_verified = true,
			email_verification_token = null,
			email_verification_expires = null,
			updated_at = now()
		where id = $1`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *userStore) SetResetToken(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_reset_token = $2,
			password_reset_expires = $3,
			updated_at = now()
		where id = $1`, userID, tokenHash, expires)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password_hash = $2,
			password_reset_token = null,
			password_reset_expires = null,
			updated_at = now()
		where id = $1`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
