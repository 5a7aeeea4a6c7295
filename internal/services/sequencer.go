package services

import (
	"errors"
	"fmt"
	"sort"

	"paycal/internal/core"
)

// CompareEntries orders entries by year, month, day of month, and finally
// puts paydays before bills on the same day. Malformed month labels compare
// as if they were "Jan '26".
func CompareEntries(a, b core.Entry) int {
	ya, ma := core.LabelParts(a.Month)
	yb, mb := core.LabelParts(b.Month)
	switch {
	case ya != yb:
		return ya - yb
	case ma != mb:
		return ma - mb
	case a.Date != b.Date:
		return a.Date - b.Date
	}
	return typeRank(a.Type) - typeRank(b.Type)
}

func typeRank(t core.EntryType) int {
	if t == core.PaydayEntry {
		return 0
	}
	return 1
}

// Sequence returns a chronologically sorted copy of entries. Entries with
// equal sort keys keep their input order.
func Sequence(entries []core.Entry) []core.Entry {
	out := make([]core.Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return CompareEntries(out[i], out[j]) < 0
	})
	return out
}

// SequenceStrict is Sequence for callers that would rather reject malformed
// month labels than have them silently placed in January '26.
func SequenceStrict(entries []core.Entry) ([]core.Entry, error) {
	var errs []error
	for _, e := range entries {
		if err := core.ValidateMonthLabel(e.Month); err != nil {
			errs = append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return Sequence(entries), nil
}
