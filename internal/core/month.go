package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultYearShort is the two-digit year assumed for labels without a
// readable year suffix.
const DefaultYearShort = 26

// Months lists the month abbreviations used in labels, January first.
var Months = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

var monthIndex = func() map[string]int {
	m := make(map[string]int, len(Months))
	for i, name := range Months {
		m[name] = i
	}
	return m
}()

// MonthIndex returns the zero-based index of a month abbreviation, or -1.
func MonthIndex(name string) int {
	if i, ok := monthIndex[name]; ok {
		return i
	}
	return -1
}

// MonthLabel formats a label such as "Jan '26".
func MonthLabel(month string, year int) string {
	return fmt.Sprintf("%s '%02d", month, year%100)
}

// LabelParts decomposes a month label into its two-digit year and month
// index. Unreadable years fall back to DefaultYearShort and unknown month
// names to January.
func LabelParts(label string) (yearShort, month int) {
	yearShort = DefaultYearShort
	if _, after, found := strings.Cut(label, "'"); found {
		if y, ok := leadingInt(after); ok {
			yearShort = y
		}
	}
	name, _, _ := strings.Cut(label, " ")
	month = MonthIndex(name)
	if month < 0 {
		month = 0
	}
	return yearShort, month
}

// ValidateMonthLabel rejects labels that LabelParts would silently repair.
func ValidateMonthLabel(label string) error {
	name, rest, found := strings.Cut(label, " '")
	if !found {
		return fmt.Errorf("%w: %q", ErrMalformedMonthLabel, label)
	}
	if MonthIndex(name) < 0 {
		return fmt.Errorf("%w: unknown month in %q", ErrMalformedMonthLabel, label)
	}
	if len(rest) != 2 {
		return fmt.Errorf("%w: year in %q", ErrMalformedMonthLabel, label)
	}
	if _, err := strconv.Atoi(rest); err != nil {
		return fmt.Errorf("%w: year in %q", ErrMalformedMonthLabel, label)
	}
	return nil
}

// EntryDate composes the calendar date of an entry in loc. Days beyond the
// end of the month roll into the next month.
func EntryDate(e Entry, loc *time.Location) time.Time {
	yy, m := LabelParts(e.Month)
	return time.Date(2000+yy, time.Month(m+1), e.Date, 0, 0, 0, 0, loc)
}

// leadingInt parses the integer prefix of s, skipping leading spaces.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " ")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
