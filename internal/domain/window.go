package domain

import "time"

// LockWindowGate allows locking only for calendar months that have fully elapsed
// in the reference time zone.
type LockWindowGate struct {
	location *time.Location
	now      func() time.Time
}

// NewLockWindowGate constructs a gate evaluated in location. A nil now uses time.Now.
func NewLockWindowGate(location *time.Location, now func() time.Time) *LockWindowGate {
	if location == nil {
		location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &LockWindowGate{location: location, now: now}
}

// Check fails with KindMonthNotConcluded when date is the current month or later.
func (g *LockWindowGate) Check(date string) error {
	year, month, err := ParseDate(date)
	if err != nil {
		return err
	}
	current := g.now().In(g.location)
	currentMonth := time.Date(current.Year(), current.Month(), 1, 0, 0, 0, 0, g.location)
	recordMonth := time.Date(year, month, 1, 0, 0, 0, 0, g.location)
	if !recordMonth.Before(currentMonth) {
		return newError(KindMonthNotConcluded, "records can only be locked after the month has concluded")
	}
	return nil
}
