package pg

import (
	"context"
	"encoding/json"

	"studyhub.org/internal/auth"
	"studyhub.org/internal/ids"
)

func (s *Store) AppendAudit(ctx context.Context, entry *auth.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(id, occurred_at, actor_id, action, entity_type, entity_id, metadata)
		values ($1, $2, nullif($3,''), $4, $5, $6, $7)
	`, entry.ID, entry.OccurredAt, entry.ActorID, entry.Action, entry.EntityType, entry.EntityID, meta)
	return err
}
