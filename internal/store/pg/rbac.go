package pg

import (
	"context"
	"database/sql"
	"errors"

	"authgrid.dev/internal/auth"
	"authgrid.dev/internal/ids"
)

type permissionStore struct{ db *sql.DB }

const permissionColumns = `id, name, description, resource, action, created_at`

func (s *permissionStore) Create(ctx context.Context, p *auth.Permission) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into permissions (id, name, description, resource, action)
		values ($1,$2,$3,$4,$5)`,
		p.ID, p.Name, p.Description, p.Resource, p.Action,
	)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrDuplicateName
		}
		return err
	}
	return nil
}

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name, description, resource, action)
			values ($1,$2,$3,$4,$5)
			on conflict (name) do nothing`,
			p.ID, p.Name, p.Description, p.Resource, p.Action,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+permissionColumns+` from permissions order by resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *permissionStore) Find(ctx context.Context, id string) (*auth.Permission, error) {
	row := s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where id = $1`, id)
	var p auth.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.name, p.description, p.resource, p.action, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		where rp.role_id = $1
		order by p.resource, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func (s *permissionStore) ForUser(ctx context.Context, userID string) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.id, p.name, p.description, p.resource, p.action, p.created_at
		from permissions p
		join role_permissions rp on rp.permission_id = p.id
		join user_roles ur on ur.role_id = rp.role_id
		where ur.user_id = $1
		order by p.resource, p.action`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

func scanPermissions(rows *sql.Rows) ([]auth.Permission, error) {
	var out []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Resource, &p.Action, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type roleStore struct{ db *sql.DB }

const roleColumns = `id, name, description, is_system_role, created_at, updated_at`

func (s *roleStore) Create(ctx context.Context, role *auth.Role, permissionIDs []string) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		insert into roles (id, name, description, is_system_role)
		values ($1,$2,$3,$4)`,
		role.ID, role.Name, role.Description, role.IsSystemRole,
	)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrDuplicateName
		}
		return err
	}

	for _, permID := range permissionIDs {
		_, err = tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1,$2)`, role.ID, permID)
		if err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrUnknownPermission
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return s.findBy(ctx, `id = $1`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findBy(ctx, `name = $1`, name)
}

func (s *roleStore) findBy(ctx context.Context, where string, arg any) (*auth.Role, error) {
	row := s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where `+where, arg)
	var r auth.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystemRole, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *roleStore) List(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auth.Role
	for rows.Next() {
		var r auth.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystemRole, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *roleStore) Delete(ctx context.Context, roleID string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *roleStore) Assign(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1,$2)
		on conflict do nothing`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2`, userID, roleID)
	return err
}

func (s *roleStore) Assignments(ctx context.Context, userID string) ([]auth.UserRoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		where user_id = $1
		order by created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auth.UserRoleAssignment
	for rows.Next() {
		var a auth.UserRoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
