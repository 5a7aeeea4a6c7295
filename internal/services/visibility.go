package services

import (
	"time"

	"paycal/internal/core"
)

// HideOldDays is the rolling look-back, in calendar days, kept visible by
// the hide-old filter.
const HideOldDays = 56

// Visibility selects which filters apply to a projected calendar.
type Visibility struct {
	HideOld  bool
	HidePaid bool
}

// Apply runs hide-old and then hide-paid, as enabled.
func (v Visibility) Apply(rows []Row, now time.Time) []Row {
	if v.HideOld {
		rows = HideOld(rows, now)
	}
	if v.HidePaid {
		rows = HidePaid(rows)
	}
	return rows
}

// HideOld drops rows dated before now minus 56 days. The cutoff keeps now's
// time of day, so an entry exactly 56 days old is already hidden.
func HideOld(rows []Row, now time.Time) []Row {
	cutoff := now.AddDate(0, 0, -HideOldDays)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if core.EntryDate(r.Entry, now.Location()).Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// HidePaid drops paid bills, then drops every payday not directly followed
// by a remaining bill. A payday with at least one unpaid bill stays.
func HidePaid(rows []Row) []Row {
	unpaid := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Entry.IsBill() && r.Entry.Paid {
			continue
		}
		unpaid = append(unpaid, r)
	}

	out := make([]Row, 0, len(unpaid))
	for i, r := range unpaid {
		if r.Entry.IsPayday() {
			if i+1 >= len(unpaid) || unpaid[i+1].Entry.IsPayday() {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// TodayIndex returns the index of the first row dated today or later, or -1.
func TodayIndex(rows []Row, now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i, r := range rows {
		if !core.EntryDate(r.Entry, now.Location()).Before(today) {
			return i
		}
	}
	return -1
}
