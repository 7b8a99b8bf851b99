package pg

import (
	"context"
	"database/sql"
	"errors"

	"studyhub.org/internal/auth"
	"studyhub.org/internal/ids"
)

const userColumns = `id, external_id, username, email, display_name, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var (
		u           auth.User
		externalID  sql.NullString
		username    sql.NullString
		email       sql.NullString
		displayName sql.NullString
	)
	if err := row.Scan(&u.ID, &externalID, &username, &email, &displayName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.ExternalID = externalID.String
	u.Username = username.String
	u.Email = email.String
	u.DisplayName = displayName.String
	return &u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username=$1`, username)
	return scanUser(row)
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, external_id, username, email, display_name)
		values ($1, nullif($2,''), nullif($3,''), nullif($4,''), nullif($5,''))
	`, u.ID, u.ExternalID, u.Username, u.Email, u.DisplayName)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

// UpsertByExternalID inserts a user for the external identity or returns
// the existing one. Concurrent first-logins for the same external id race
// on the unique index; the conflict clause makes the insert tolerant, so
// both callers observe the same row.
func (s *Store) UpsertByExternalID(ctx context.Context, externalID, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into users(id, external_id, email)
		values ($1, $2, nullif($3,''))
		on conflict (external_id) do update
		set email = coalesce(excluded.email, users.email), updated_at = now()
		returning `+userColumns+`
	`, ids.New(), externalID, email)
	return scanUser(row)
}
