package domain

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"example.com/parkactivity/internal/events"
	"example.com/parkactivity/internal/observability"
	"example.com/parkactivity/internal/store"
)

// LockAction selects the path a submission takes.
type LockAction int

const (
	LockActionNone LockAction = iota
	LockActionLock
	LockActionUnlock
)

func (a LockAction) String() string {
	switch a {
	case LockActionLock:
		return "lock"
	case LockActionUnlock:
		return "unlock"
	default:
		return "upsert"
	}
}

// Settings carries the immutable policy values and collaborators of a Service.
type Settings struct {
	// FiscalYearFinalMonth is the last month (1-12) of a fiscal year.
	FiscalYearFinalMonth int
	// Location is the time zone the lock window is evaluated in.
	Location  *time.Location
	Now       func() time.Time
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Service is the activity record controller. It holds no per-request state.
type Service struct {
	store   store.Store
	fiscal  *FiscalYearGate
	window  *LockWindowGate
	mutator *MutationEngine
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewService wires the gates and mutation engine around s.
func NewService(s store.Store, settings Settings) *Service {
	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   s,
		fiscal:  NewFiscalYearGate(s, settings.FiscalYearFinalMonth),
		window:  NewLockWindowGate(settings.Location, settings.Now),
		mutator: NewMutationEngine(s, settings.Publisher, settings.Now, logger),
		logger:  logger,
		tracer:  otel.Tracer("example.com/parkactivity/internal/domain"),
	}
}

// Submit creates, updates, locks or unlocks one activity record.
func (s *Service) Submit(ctx context.Context, perms Permissions, sub Submission, action LockAction) (rec ActivityRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "activity.submit", trace.WithAttributes(
		attribute.String("activity.action", action.String()),
	))
	start := time.Now()
	defer func() {
		outcome := observability.OutcomeOK
		if err != nil {
			outcome = string(KindOf(err))
			span.SetStatus(codes.Error, outcome)
			span.RecordError(err)
		}
		observability.RecordMutation(action.String(), outcome, time.Since(start))
		span.End()
	}()

	if !perms.IsAuthenticated {
		return ActivityRecord{}, newError(KindAuthentication, "authentication required")
	}
	sub, err = ValidateSubmission(sub)
	if err != nil {
		return ActivityRecord{}, err
	}
	span.SetAttributes(
		attribute.String("activity.sub_area_id", sub.SubAreaID),
		attribute.String("activity.name", sub.Activity),
		attribute.String("activity.date", sub.Date),
	)
	if !perms.CanAccess(sub.Orcs, sub.SubAreaID) {
		return ActivityRecord{}, newError(KindAuthorization, "not authorized for "+RoleFor(sub.Orcs, sub.SubAreaID))
	}
	if err := s.fiscal.Check(ctx, sub.Date); err != nil {
		return ActivityRecord{}, err
	}
	if action == LockActionLock {
		if err := s.window.Check(sub.Date); err != nil {
			return ActivityRecord{}, err
		}
	}

	key := sub.Key()
	existing, err := s.store.GetOne(ctx, key.StoreKey())
	if err != nil {
		return ActivityRecord{}, wrapError(KindStore, "record lookup failed", err)
	}

	switch action {
	case LockActionUnlock:
		if existing == nil {
			return ActivityRecord{}, newError(KindNotFound, "no record to unlock")
		}
		rec, err = s.mutator.Toggle(ctx, perms, key, false)
	case LockActionLock:
		if existing == nil {
			rec, err = s.mutator.Upsert(ctx, perms, sub, true)
		} else {
			rec, err = s.mutator.Toggle(ctx, perms, key, true)
		}
	default:
		if existing != nil && boolAttr(existing[AttrIsLocked]) {
			return ActivityRecord{}, newError(KindLockConflict, "record is locked and cannot be edited")
		}
		rec, err = s.mutator.Upsert(ctx, perms, sub, false)
	}
	if err != nil {
		return ActivityRecord{}, err
	}

	s.logger.InfoContext(ctx, "activity record written",
		"action", action.String(),
		"record_pk", key.StoreKey().PK,
		"record_sk", key.Date,
		"locked", rec.IsLocked,
		"subject", perms.Subject,
	)
	return rec, nil
}

// Get reads one record. orcs scopes authorization the same way as Submit.
func (s *Service) Get(ctx context.Context, perms Permissions, orcs string, key RecordKey) (ActivityRecord, error) {
	ctx, span := s.tracer.Start(ctx, "activity.get")
	defer span.End()

	if !perms.IsAuthenticated {
		return ActivityRecord{}, newError(KindAuthentication, "authentication required")
	}
	if err := validateKey(key); err != nil {
		return ActivityRecord{}, err
	}
	if !perms.CanAccess(orcs, key.SubAreaID) {
		return ActivityRecord{}, newError(KindAuthorization, "not authorized for "+RoleFor(orcs, key.SubAreaID))
	}
	item, err := s.store.GetOne(ctx, key.StoreKey())
	if err != nil {
		span.RecordError(err)
		return ActivityRecord{}, wrapError(KindStore, "record lookup failed", err)
	}
	if item == nil {
		return ActivityRecord{}, newError(KindNotFound, "record not found")
	}
	return RecordFromItem(item), nil
}

// List returns the records of a sub-area activity whose dates fall within
// [startDate, endDate], ordered by date.
func (s *Service) List(ctx context.Context, perms Permissions, orcs, subAreaID, activity, startDate, endDate string) ([]ActivityRecord, error) {
	ctx, span := s.tracer.Start(ctx, "activity.list")
	defer span.End()

	if !perms.IsAuthenticated {
		return nil, newError(KindAuthentication, "authentication required")
	}
	if err := validateKey(RecordKey{SubAreaID: subAreaID, Activity: activity, Date: startDate}); err != nil {
		return nil, err
	}
	if _, _, err := ParseDate(endDate); err != nil {
		return nil, err
	}
	if endDate < startDate {
		return nil, newError(KindValidation, "endDate precedes startDate")
	}
	if !perms.CanAccess(orcs, subAreaID) {
		return nil, newError(KindAuthorization, "not authorized for "+RoleFor(orcs, subAreaID))
	}

	items, err := s.store.Query(ctx, store.Query{
		PK:     partitionKey(subAreaID, activity),
		SKFrom: startDate,
		SKTo:   endDate,
	})
	if err != nil {
		span.RecordError(err)
		return nil, wrapError(KindStore, "record query failed", err)
	}
	out := make([]ActivityRecord, 0, len(items))
	for _, item := range items {
		out = append(out, RecordFromItem(item))
	}
	return out, nil
}
