package pg

import (
	"context"
	"database/sql"
	"errors"

	"studyhub.org/internal/auth"
)

func (s *Store) FindCredential(ctx context.Context, userID string) (*auth.Credential, error) {
	var cred auth.Credential
	err := s.db.QueryRowContext(ctx, `
		select user_id, password_hash, updated_at
		from local_credentials
		where user_id=$1
	`, userID).Scan(&cred.UserID, &cred.PasswordHash, &cred.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Replace swaps the credential row wholesale; there is no partial update of
// a password hash.
func (s *Store) ReplaceCredential(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into local_credentials(user_id, password_hash)
		values ($1, $2)
		on conflict (user_id) do update
		set password_hash = excluded.password_hash, updated_at = now()
	`, userID, passwordHash)
	return err
}
