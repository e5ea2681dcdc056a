package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used by AuditHandler.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditHandler appends consumed activity events to the activity_audit_log table.
// Redelivered events are ignored by event id.
type AuditHandler struct {
	db Execer
}

// NewAuditHandler constructs a handler backed by db.
func NewAuditHandler(db Execer) *AuditHandler {
	return &AuditHandler{db: db}
}

// Handle stores the event.
func (h *AuditHandler) Handle(ctx context.Context, msg Message) error {
	tag, err := h.db.Exec(ctx,
		`INSERT INTO activity_audit_log (event_id, event_type, record_pk, record_sk, subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
         ON CONFLICT (event_id) DO NOTHING`,
		msg.EventID,
		msg.EventType,
		msg.RecordPK,
		msg.RecordSK,
		msg.Subject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		recordDuplicate(msg)
	}
	return nil
}
