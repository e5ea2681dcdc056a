// Package events defines activity record events and their publishers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types emitted after successful writes.
const (
	TypeActivityUpserted    = "activity.upserted"
	TypeActivityLockChanged = "activity.lock_changed"
)

// Header keys carried on every published message.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderRecordPK  = "record_pk"
	HeaderRecordSK  = "record_sk"
	HeaderSubject   = "subject"
)

// ActivityUpserted is emitted when a record is created or overwritten.
type ActivityUpserted struct {
	SubAreaID   string    `json:"subAreaId"`
	Activity    string    `json:"activity"`
	Date        string    `json:"date"`
	Orcs        string    `json:"orcs"`
	IsLocked    bool      `json:"isLocked"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ActivityLockChanged is emitted when a record's lock state is toggled.
type ActivityLockChanged struct {
	SubAreaID  string    `json:"subAreaId"`
	Activity   string    `json:"activity"`
	Date       string    `json:"date"`
	IsLocked   bool      `json:"isLocked"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Event is an envelope routed by record key.
type Event struct {
	ID         string
	Type       string
	RecordPK   string
	RecordSK   string
	Subject    string
	OccurredAt time.Time
	Payload    any
}

// New builds an Event with a fresh identifier.
func New(eventType, recordPK, recordSK, subject string, occurredAt time.Time, payload any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		RecordPK:   recordPK,
		RecordSK:   recordSK,
		Subject:    subject,
		OccurredAt: occurredAt.UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NoopPublisher drops events; used when no broker is configured.
type NoopPublisher struct{}

// Publish performs no action.
func (NoopPublisher) Publish(context.Context, Event) error { return nil }
