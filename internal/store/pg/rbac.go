package pg

import (
	"context"
	"database/sql"
	"errors"

	"studyhub.org/internal/auth"
	"studyhub.org/internal/ids"
)

func (s *Store) FindRoleByKey(ctx context.Context, key string) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx,
		`select id, key, name, created_at from roles where key=$1`, key).
		Scan(&role.ID, &role.Key, &role.Name, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, key, name, created_at from roles order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Key, &role.Name, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, key, created_at from permissions order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []auth.Permission
	for rows.Next() {
		var p auth.Permission
		if err := rows.Scan(&p.ID, &p.Key, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if p.ID == "" {
			p.ID = ids.New()
		}
		_, err := s.db.ExecContext(ctx,
			`insert into permissions(id, key) values ($1, $2) on conflict (key) do nothing`,
			p.ID, p.Key)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID string, permKeys []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, key := range permKeys {
		_, err := tx.ExecContext(ctx, `
			insert into role_permissions(role_id, permission_id)
			select $1, id from permissions where key=$2
		`, roleID, key)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Assign inserts the user-role link; a duplicate pair is a no-op thanks to
// the conflict clause, which is what makes re-assignment idempotent.
func (s *Store) Assign(ctx context.Context, a auth.RoleAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles(user_id, role_id, assigned_by)
		values ($1, $2, nullif($3,''))
		on conflict (user_id, role_id) do nothing
	`, a.UserID, a.RoleID, a.AssignedBy)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) RoleKeysForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.key
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKeys(rows)
}

func (s *Store) PermissionKeysForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct p.key
		from user_roles ur
		join role_permissions rp on rp.role_id = ur.role_id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKeys(rows)
}

func collectKeys(rows *sql.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
