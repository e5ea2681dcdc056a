package domain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/parkactivity/internal/events"
	"example.com/parkactivity/internal/store"
	"example.com/parkactivity/internal/store/memory"
)

var fixedNow = time.Date(2024, time.March, 15, 18, 0, 0, 0, time.UTC)

type serviceFixture struct {
	svc       *Service
	store     *countingStore
	publisher *recordingPublisher
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()
	ctx := context.Background()
	backing := memory.NewStore()
	cfg := ConfigKey("sa1", "Day Use")
	require.NoError(t, backing.Put(ctx, store.Item{
		store.AttrPK:         cfg.PK,
		store.AttrSK:         cfg.SK,
		AttrOrcs:             "0041",
		AttrParkName:         "Golden Ears",
		AttrSubAreaName:      "Alouette",
		"attendanceModifier": 3.5,
	}))

	counting := &countingStore{Store: backing}
	pub := &recordingPublisher{}
	svc := NewService(counting, Settings{
		FiscalYearFinalMonth: 3,
		Location:             time.UTC,
		Now:                  func() time.Time { return fixedNow },
		Publisher:            pub,
	})
	return serviceFixture{svc: svc, store: counting, publisher: pub}
}

func ranger() Permissions {
	return Permissions{
		IsAuthenticated: true,
		Subject:         "ranger-1",
		Roles:           map[string]struct{}{RoleFor("0041", "sa1"): {}},
	}
}

func submission(date string, fields map[string]any) Submission {
	return Submission{SubAreaID: "sa1", Activity: "Day Use", Date: date, Orcs: "0041", Fields: fields}
}

func TestSubmitRoundTrip(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	written, err := f.svc.Submit(ctx, ranger(), submission("202402", map[string]any{
		"peopleAndVehiclesTrail": 42.0,
		AttrIsLocked:             true,
	}), LockActionNone)
	require.NoError(t, err)
	require.False(t, written.IsLocked)

	got, err := f.svc.Get(ctx, ranger(), "0041", RecordKey{SubAreaID: "sa1", Activity: "Day Use", Date: "202402"})
	require.NoError(t, err)
	require.Equal(t, 42.0, got.Fields["peopleAndVehiclesTrail"])
	require.Equal(t, "0041", got.Orcs)
	require.Equal(t, "Golden Ears", got.ParkName)
	require.Equal(t, "Alouette", got.SubAreaName)
	require.Equal(t, 3.5, got.Config["attendanceModifier"])
	require.True(t, fixedNow.Equal(got.LastUpdated))
	require.False(t, got.IsLocked)
	require.NotContains(t, got.Fields, AttrIsLocked)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, events.TypeActivityUpserted, f.publisher.events[0].Type)
	require.Equal(t, "sa1::Day Use", f.publisher.events[0].RecordPK)
	require.Equal(t, "ranger-1", f.publisher.events[0].Subject)
}

func TestSubmitRejectsMissingFieldsWithoutWriting(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for _, sub := range []Submission{
		{Activity: "Day Use", Date: "202402", Orcs: "0041"},
		{SubAreaID: "sa1", Date: "202402", Orcs: "0041"},
		{SubAreaID: "sa1", Activity: "Day Use", Orcs: "0041"},
	} {
		for _, action := range []LockAction{LockActionNone, LockActionLock, LockActionUnlock} {
			_, err := f.svc.Submit(ctx, ranger(), sub, action)
			require.ErrorIs(t, err, ErrValidation)
		}
	}
	require.Zero(t, f.store.writes())
}

func TestSubmitRejectsBadDate(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Submit(context.Background(), ranger(), submission("24-02", nil), LockActionNone)
	require.ErrorIs(t, err, ErrFormat)
	require.Zero(t, f.store.writes())
}

func TestSubmitAuthorization(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, Permissions{}, submission("202402", nil), LockActionNone)
	require.ErrorIs(t, err, ErrUnauthenticated)

	other := Permissions{IsAuthenticated: true, Roles: map[string]struct{}{"0041:sa2": {}}}
	_, err = f.svc.Submit(ctx, other, submission("202402", nil), LockActionNone)
	require.ErrorIs(t, err, ErrForbidden)

	admin := Permissions{IsAuthenticated: true, IsAdmin: true}
	_, err = f.svc.Submit(ctx, admin, submission("202402", nil), LockActionNone)
	require.NoError(t, err)
}

func TestSubmitFiscalYearLockAppliesToEveryMutation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	admin := Permissions{IsAuthenticated: true, IsAdmin: true}

	// Seed a record before the fiscal year closes.
	_, err := f.svc.Submit(ctx, admin, submission("202312", nil), LockActionNone)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(ctx, store.Item{store.AttrPK: FiscalYearEndPK, store.AttrSK: "2024", AttrIsLocked: true}))
	before := f.store.writes()

	for _, action := range []LockAction{LockActionNone, LockActionLock, LockActionUnlock} {
		_, err := f.svc.Submit(ctx, admin, submission("202312", nil), action)
		require.ErrorIs(t, err, ErrFiscalYearLocked, action.String())
	}
	require.Equal(t, before, f.store.writes())

	// April 2023 already belongs to the locked year; March 2023 closes the open one.
	_, err = f.svc.Submit(ctx, admin, submission("202304", nil), LockActionLock)
	require.ErrorIs(t, err, ErrFiscalYearLocked)
	_, err = f.svc.Submit(ctx, admin, submission("202303", nil), LockActionLock)
	require.NoError(t, err)
}

func TestSubmitLockWindow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, ranger(), submission("202403", nil), LockActionLock)
	require.ErrorIs(t, err, ErrMonthNotConcluded)
	_, err = f.svc.Submit(ctx, ranger(), submission("202404", nil), LockActionLock)
	require.ErrorIs(t, err, ErrMonthNotConcluded)

	rec, err := f.svc.Submit(ctx, ranger(), submission("202402", nil), LockActionLock)
	require.NoError(t, err)
	require.True(t, rec.IsLocked)
}

func TestUnlockIgnoresLockWindow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// A current-month record that is already locked, e.g. written by an admin tool.
	rec := ActivityRecord{SubAreaID: "sa1", Activity: "Day Use", Date: "202403", Orcs: "0041", IsLocked: true}
	require.NoError(t, f.store.Put(ctx, rec.Item()))

	got, err := f.svc.Submit(ctx, ranger(), submission("202403", nil), LockActionUnlock)
	require.NoError(t, err)
	require.False(t, got.IsLocked)
	require.True(t, fixedNow.Equal(got.LastUpdated))
}

func TestStateMachine(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	perms := ranger()
	key := RecordKey{SubAreaID: "sa1", Activity: "Day Use", Date: "202401"}

	// Absent: unlock is not found.
	_, err := f.svc.Submit(ctx, perms, submission("202401", nil), LockActionUnlock)
	require.ErrorIs(t, err, ErrRecordNotFound)

	// Absent -> Locked.
	rec, err := f.svc.Submit(ctx, perms, submission("202401", map[string]any{"count": 1.0}), LockActionLock)
	require.NoError(t, err)
	require.True(t, rec.IsLocked)
	require.Equal(t, "Golden Ears", rec.ParkName)

	// Locked: plain edit and a second lock are conflicts; nothing is overwritten.
	_, err = f.svc.Submit(ctx, perms, submission("202401", map[string]any{"count": 2.0}), LockActionNone)
	require.ErrorIs(t, err, ErrLockConflict)
	_, err = f.svc.Submit(ctx, perms, submission("202401", nil), LockActionLock)
	require.ErrorIs(t, err, ErrLockConflict)
	got, err := f.svc.Get(ctx, perms, "0041", key)
	require.NoError(t, err)
	require.True(t, got.IsLocked)
	require.Equal(t, 1.0, got.Fields["count"])

	// Locked -> Unlocked.
	rec, err = f.svc.Submit(ctx, perms, submission("202401", nil), LockActionUnlock)
	require.NoError(t, err)
	require.False(t, rec.IsLocked)
	require.Equal(t, 1.0, rec.Fields["count"])

	// Unlocked: unlock again is a conflict, edits are allowed.
	_, err = f.svc.Submit(ctx, perms, submission("202401", nil), LockActionUnlock)
	require.ErrorIs(t, err, ErrLockConflict)
	rec, err = f.svc.Submit(ctx, perms, submission("202401", map[string]any{"count": 3.0}), LockActionNone)
	require.NoError(t, err)
	require.False(t, rec.IsLocked)

	// Unlocked -> Locked.
	rec, err = f.svc.Submit(ctx, perms, submission("202401", nil), LockActionLock)
	require.NoError(t, err)
	require.True(t, rec.IsLocked)
	require.Equal(t, 3.0, rec.Fields["count"])

	var types []string
	for _, evt := range f.publisher.events {
		types = append(types, evt.Type)
	}
	require.Equal(t, []string{
		events.TypeActivityUpserted,
		events.TypeActivityLockChanged,
		events.TypeActivityUpserted,
		events.TypeActivityLockChanged,
	}, types)
}

func TestConcurrentLockSingleWinner(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, ranger(), submission("202401", nil), LockActionNone)
	require.NoError(t, err)

	// Both requests pass the gates before either toggles, so the store's
	// conditional update alone decides the winner.
	f.store.holdAfterGet(2)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Submit(ctx, ranger(), submission("202401", nil), LockActionLock)
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrLockConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, conflicts)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newServiceFixture(t)
	f.publisher.err = errors.New("broker down")

	rec, err := f.svc.Submit(context.Background(), ranger(), submission("202402", nil), LockActionNone)
	require.NoError(t, err)
	require.Equal(t, "202402", rec.Date)
}

func TestSubmitConfigMissing(t *testing.T) {
	f := newServiceFixture(t)
	perms := Permissions{IsAuthenticated: true, IsAdmin: true}
	sub := Submission{SubAreaID: "sa9", Activity: "Backcountry Camping", Date: "202402"}

	_, err := f.svc.Submit(context.Background(), perms, sub, LockActionNone)
	require.ErrorIs(t, err, ErrConfigMissing)
	require.Zero(t, f.store.writes())
}

func TestSubmitStoreFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.store.getErr = errors.New("connection reset")

	_, err := f.svc.Submit(context.Background(), ranger(), submission("202402", nil), LockActionNone)
	require.ErrorIs(t, err, ErrStore)
}

func TestGetAndList(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	for _, date := range []string{"202311", "202312", "202401", "202402"} {
		_, err := f.svc.Submit(ctx, ranger(), submission(date, nil), LockActionNone)
		require.NoError(t, err)
	}

	_, err := f.svc.Get(ctx, ranger(), "0041", RecordKey{SubAreaID: "sa1", Activity: "Day Use", Date: "202310"})
	require.ErrorIs(t, err, ErrRecordNotFound)
	_, err = f.svc.Get(ctx, ranger(), "0099", RecordKey{SubAreaID: "sa1", Activity: "Day Use", Date: "202311"})
	require.ErrorIs(t, err, ErrForbidden)

	recs, err := f.svc.List(ctx, ranger(), "0041", "sa1", "Day Use", "202312", "202401")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "202312", recs[0].Date)
	require.Equal(t, "202401", recs[1].Date)

	_, err = f.svc.List(ctx, ranger(), "0041", "sa1", "Day Use", "202402", "202311")
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.List(ctx, Permissions{}, "0041", "sa1", "Day Use", "202311", "202402")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

// countingStore counts writes and can inject failures or synchronise readers.
type countingStore struct {
	store.Store

	mu      sync.Mutex
	nWrites int
	getErr  error
	barrier *sync.WaitGroup
}

func (s *countingStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nWrites
}

// holdAfterGet makes the next n record reads wait for each other.
func (s *countingStore) holdAfterGet(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.barrier = &sync.WaitGroup{}
	s.barrier.Add(n)
}

func (s *countingStore) GetOne(ctx context.Context, key store.Key) (store.Item, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	item, err := s.Store.GetOne(ctx, key)
	if key.PK == FiscalYearEndPK || strings.HasPrefix(key.PK, configPKPrefix) {
		return item, err
	}
	s.mu.Lock()
	barrier := s.barrier
	s.mu.Unlock()
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return item, err
}

func (s *countingStore) ConditionalUpdate(ctx context.Context, key store.Key, set map[string]any, cond store.Condition) (store.UpdateResult, error) {
	s.mu.Lock()
	s.nWrites++
	s.mu.Unlock()
	return s.Store.ConditionalUpdate(ctx, key, set, cond)
}

func (s *countingStore) Put(ctx context.Context, item store.Item) error {
	s.mu.Lock()
	s.nWrites++
	s.mu.Unlock()
	return s.Store.Put(ctx, item)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}
