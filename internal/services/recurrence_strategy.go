// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurrence expansion. Each
// recurrence type has its own strategy that lists the calendar days a
// template falls on within one year.

package services

import (
	"fmt"
	"time"

	"paycal/internal/core"
)

const (
	weeklyIntervalDays   = 7
	biWeeklyIntervalDays = 14
	defaultIntervalDays  = 30
)

// Occurrence is one generated calendar day: a month abbreviation and a day
// of month.
type Occurrence struct {
	Month string
	Day   int
}

// MonthWindow is the inclusive range of month indexes a template may emit in.
type MonthWindow struct {
	Start int
	End   int
}

// Contains reports whether month index m lies inside the window.
func (w MonthWindow) Contains(m int) bool {
	return m >= w.Start && m <= w.End
}

// WindowOf resolves a schedule's start/end months, defaulting to Jan..Dec.
// Unknown names fall back to the same defaults.
func WindowOf(s core.Schedule) MonthWindow {
	w := MonthWindow{Start: 0, End: 11}
	if i := core.MonthIndex(s.StartMonth); s.StartMonth != "" && i >= 0 {
		w.Start = i
	}
	if i := core.MonthIndex(s.EndMonth); s.EndMonth != "" && i >= 0 {
		w.End = i
	}
	return w
}

// RecurrenceStrategy lists the occurrences of a schedule within year,
// already filtered by the month window.
type RecurrenceStrategy interface {
	Occurrences(s core.Schedule, year int, window MonthWindow) []Occurrence
}

// SingleDateStrategy emits one occurrence at (Month or Jan, Day). It serves
// both one-time and yearly templates. A date outside the template's own
// start/end window is dropped.
type SingleDateStrategy struct{}

func (SingleDateStrategy) Occurrences(s core.Schedule, _ int, window MonthWindow) []Occurrence {
	month := s.Month
	if month == "" {
		month = "Jan"
	}
	idx := core.MonthIndex(month)
	if idx < 0 || !window.Contains(idx) {
		return nil
	}
	return []Occurrence{{Month: month, Day: s.Day}}
}

// MonthlyStrategy emits Day once per month in the window.
type MonthlyStrategy struct{}

func (MonthlyStrategy) Occurrences(s core.Schedule, _ int, window MonthWindow) []Occurrence {
	var out []Occurrence
	for idx, month := range core.Months {
		if window.Contains(idx) {
			out = append(out, Occurrence{Month: month, Day: s.Day})
		}
	}
	return out
}

// SemiMonthlyStrategy emits Day and, when set, Day2 in every month of the
// window.
type SemiMonthlyStrategy struct{}

func (SemiMonthlyStrategy) Occurrences(s core.Schedule, _ int, window MonthWindow) []Occurrence {
	var out []Occurrence
	for idx, month := range core.Months {
		if !window.Contains(idx) {
			continue
		}
		out = append(out, Occurrence{Month: month, Day: s.Day})
		if s.Day2 != 0 {
			out = append(out, Occurrence{Month: month, Day: s.Day2})
		}
	}
	return out
}

// ManualStrategy emits every explicit manual date inside the window, in the
// order they were listed. Dates naming an unknown month are skipped.
type ManualStrategy struct{}

func (ManualStrategy) Occurrences(s core.Schedule, _ int, window MonthWindow) []Occurrence {
	var out []Occurrence
	for _, md := range s.ManualDates {
		idx := core.MonthIndex(md.Month)
		if idx < 0 || !window.Contains(idx) {
			continue
		}
		out = append(out, Occurrence{Month: md.Month, Day: md.Day})
	}
	return out
}

// IntervalStrategy steps a cursor seeded at (year, start month, Day) by a
// fixed number of days until it leaves the year. When IntervalDays is nil
// the schedule's own IntervalDays is used, defaulting to 30 days.
//
// The interval is always positive, so the loop runs at most
// ceil(366/interval)+1 times.
type IntervalStrategy struct {
	IntervalDays int
}

func (st IntervalStrategy) interval(s core.Schedule) int {
	n := st.IntervalDays
	if n == 0 {
		n = s.IntervalDays
	}
	if n <= 0 {
		n = defaultIntervalDays
	}
	return n
}

func (st IntervalStrategy) Occurrences(s core.Schedule, year int, window MonthWindow) []Occurrence {
	step := st.interval(s)
	var out []Occurrence
	cursor := time.Date(year, time.Month(window.Start+1), s.Day, 0, 0, 0, 0, time.UTC)
	for cursor.Year() == year {
		idx := int(cursor.Month()) - 1
		if window.Contains(idx) {
			out = append(out, Occurrence{Month: core.Months[idx], Day: cursor.Day()})
		}
		cursor = cursor.AddDate(0, 0, step)
	}
	return out
}

// recurrenceStrategies maps recurrence types to their strategies.
var recurrenceStrategies = map[core.Recurrence]RecurrenceStrategy{
	core.OneTime:        SingleDateStrategy{},
	core.Yearly:         SingleDateStrategy{},
	core.Monthly:        MonthlyStrategy{},
	core.SemiMonthly:    SemiMonthlyStrategy{},
	core.Manual:         ManualStrategy{},
	core.Weekly:         IntervalStrategy{IntervalDays: weeklyIntervalDays},
	core.BiWeekly:       IntervalStrategy{IntervalDays: biWeeklyIntervalDays},
	core.CustomInterval: IntervalStrategy{},
}

// GetRecurrenceStrategy returns the strategy for a recurrence type.
func GetRecurrenceStrategy(r core.Recurrence) (RecurrenceStrategy, error) {
	st, ok := recurrenceStrategies[r]
	if !ok {
		return nil, fmt.Errorf("unknown recurrence type: %s", r)
	}
	return st, nil
}
