package audit

import (
	"context"
	"time"

	"studyhub.org/internal/auth"
	"studyhub.org/internal/ids"
	"studyhub.org/internal/stream"
)

// Recorder persists audit entries, mirrors them to the structured log, and
// fans them out to live subscribers. Persistence failures are reported to the
// caller; log and stream delivery are best-effort.
type Recorder struct {
	store  auth.AuditStore
	events *stream.Stream
	now    func() time.Time
}

// Option customises a Recorder.
type Option func(*Recorder)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithStream attaches a fan-out stream for live audit subscribers.
func WithStream(s *stream.Stream) Option {
	return func(r *Recorder) { r.events = s }
}

// NewRecorder builds a Recorder over the given store.
func NewRecorder(store auth.AuditStore, opts ...Option) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one audit entry. ActorID may be empty for unauthenticated
// actions such as failed logins.
func (r *Recorder) Record(ctx context.Context, actorID, action, entityType, entityID string, metadata map[string]string) error {
	entry := &auth.AuditEntry{
		ID:         ids.New(),
		OccurredAt: r.now().UTC(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		return err
	}

	fields := map[string]any{
		"action":      action,
		"entity_type": entityType,
		"entity_id":   entityID,
	}
	for k, v := range metadata {
		fields[k] = v
	}
	_ = LogEvent(ctx, action, fields)

	if r.events != nil {
		r.events.Publish(stream.Event{
			ID:         entry.ID,
			OccurredAt: entry.OccurredAt,
			ActorID:    entry.ActorID,
			Action:     entry.Action,
			EntityType: entry.EntityType,
			EntityID:   entry.EntityID,
			Metadata:   entry.Metadata,
		})
	}
	return nil
}
