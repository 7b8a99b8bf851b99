package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"studyhub.org/internal/auth"
	"studyhub.org/internal/ids"
)

func (s *Store) CreateSession(ctx context.Context, sess *auth.Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions(id, token_hash, user_id, created_at, last_seen_at, expires_at)
		values ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.TokenHash, sess.UserID, sess.CreatedAt, sess.LastSeenAt, sess.ExpiresAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindSessionByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var (
		sess      auth.Session
		revokedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, token_hash, user_id, created_at, last_seen_at, expires_at, revoked_at
		from sessions
		where token_hash=$1
	`, tokenHash).Scan(&sess.ID, &sess.TokenHash, &sess.UserID, &sess.CreatedAt, &sess.LastSeenAt, &sess.ExpiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
	}
	return &sess, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set last_seen_at=$2 where token_hash=$1`, tokenHash, at)
	return err
}

// RevokeSession is idempotent: an already revoked or unknown token hash
// affects zero rows and reports no error.
func (s *Store) RevokeSession(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=$2 where token_hash=$1 and revoked_at is null`, tokenHash, at)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from sessions where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
