package domain

import (
	"context"
	"log/slog"
	"time"

	"example.com/parkactivity/internal/events"
	"example.com/parkactivity/internal/observability"
	"example.com/parkactivity/internal/store"
)

// MutationEngine performs the final write of a request: either an atomic lock
// toggle or a full record upsert.
type MutationEngine struct {
	store     store.Store
	config    ConfigLookup
	publisher events.Publisher
	now       func() time.Time
	logger    *slog.Logger
}

// NewMutationEngine constructs a MutationEngine.
func NewMutationEngine(s store.Store, publisher events.Publisher, now func() time.Time, logger *slog.Logger) *MutationEngine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MutationEngine{
		store:     s,
		config:    NewConfigLookup(s),
		publisher: publisher,
		now:       now,
		logger:    logger,
	}
}

// Toggle sets isLocked to locked on an existing record. The store applies the
// change only when the stored value differs, so of two racing identical
// toggles exactly one succeeds and the other gets KindLockConflict.
func (m *MutationEngine) Toggle(ctx context.Context, perms Permissions, key RecordKey, locked bool) (ActivityRecord, error) {
	now := m.now().UTC()
	res, err := m.store.ConditionalUpdate(ctx, key.StoreKey(),
		map[string]any{AttrIsLocked: locked, AttrLastUpdated: now.Format(time.RFC3339Nano)},
		store.Condition{Attribute: AttrIsLocked, NotEqual: locked},
	)
	if err != nil {
		return ActivityRecord{}, wrapError(KindStore, "lock update failed", err)
	}
	if !res.Applied {
		if locked {
			return ActivityRecord{}, newError(KindLockConflict, "record is already locked")
		}
		return ActivityRecord{}, newError(KindLockConflict, "record is already unlocked")
	}

	rec := RecordFromItem(res.Item)
	observability.RecordPersisted(now)
	m.publish(ctx, events.New(events.TypeActivityLockChanged, key.StoreKey().PK, key.Date, perms.Subject, now, events.ActivityLockChanged{
		SubAreaID:  key.SubAreaID,
		Activity:   key.Activity,
		Date:       key.Date,
		IsLocked:   locked,
		OccurredAt: now,
	}))
	return rec, nil
}

// Upsert overwrites the record with the submission enriched by the activity
// configuration. The put is unconditional: concurrent edits are last-writer-wins.
func (m *MutationEngine) Upsert(ctx context.Context, perms Permissions, sub Submission, locked bool) (ActivityRecord, error) {
	cfg, err := m.config.Lookup(ctx, sub.SubAreaID, sub.Activity)
	if err != nil {
		return ActivityRecord{}, err
	}

	fields := make(map[string]any, len(sub.Fields))
	for k, v := range sub.Fields {
		fields[k] = v
	}
	rec := ActivityRecord{
		SubAreaID:   sub.SubAreaID,
		Activity:    sub.Activity,
		Date:        sub.Date,
		Orcs:        cfg.Orcs,
		ParkName:    cfg.ParkName,
		SubAreaName: cfg.SubAreaName,
		Config:      cfg.Attributes,
		IsLocked:    locked,
		LastUpdated: m.now().UTC(),
		Fields:      fields,
	}

	if err := m.store.Put(ctx, rec.Item()); err != nil {
		return ActivityRecord{}, wrapError(KindStore, "record write failed", err)
	}
	observability.RecordPersisted(rec.LastUpdated)

	m.publish(ctx, events.New(events.TypeActivityUpserted, rec.Key().StoreKey().PK, rec.Date, perms.Subject, rec.LastUpdated, events.ActivityUpserted{
		SubAreaID:   rec.SubAreaID,
		Activity:    rec.Activity,
		Date:        rec.Date,
		Orcs:        rec.Orcs,
		IsLocked:    rec.IsLocked,
		LastUpdated: rec.LastUpdated,
	}))
	return rec, nil
}

// publish never fails the request; the write has already happened.
func (m *MutationEngine) publish(ctx context.Context, evt events.Event) {
	if err := m.publisher.Publish(ctx, evt); err != nil {
		observability.RecordPublishFailure(evt.Type)
		m.logger.WarnContext(ctx, "activity event publish failed",
			"event_type", evt.Type, "record_pk", evt.RecordPK, "record_sk", evt.RecordSK, "error", err)
	}
}
