package domain

import (
	"context"
	"strconv"

	"example.com/parkactivity/internal/store"
)

// FiscalYearEndPK is the partition holding fiscal-year lock items keyed by year.
const FiscalYearEndPK = "fiscalYearEnd"

// FiscalYearGate rejects mutations of records whose fiscal year is closed.
type FiscalYearGate struct {
	store      store.Store
	finalMonth int
}

// NewFiscalYearGate constructs a gate. finalMonth is the last calendar month
// (1-12) of a fiscal year; later months belong to the following fiscal year.
func NewFiscalYearGate(s store.Store, finalMonth int) *FiscalYearGate {
	return &FiscalYearGate{store: s, finalMonth: finalMonth}
}

// FiscalYear returns the fiscal year a YYYYMM date falls in.
func (g *FiscalYearGate) FiscalYear(date string) (int, error) {
	year, month, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	if int(month) > g.finalMonth {
		return year + 1, nil
	}
	return year, nil
}

// Check fails with KindFiscalYearLocked when the record's fiscal year is locked.
func (g *FiscalYearGate) Check(ctx context.Context, date string) error {
	fy, err := g.FiscalYear(date)
	if err != nil {
		return err
	}
	item, err := g.store.GetOne(ctx, store.Key{PK: FiscalYearEndPK, SK: strconv.Itoa(fy)})
	if err != nil {
		return wrapError(KindStore, "fiscal year lookup failed", err)
	}
	if item != nil && boolAttr(item[AttrIsLocked]) {
		return newError(KindFiscalYearLocked, "fiscal year "+strconv.Itoa(fy)+" has been locked against editing")
	}
	return nil
}
