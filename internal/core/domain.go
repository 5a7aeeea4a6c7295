package core

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	Weekly         Recurrence = "weekly"
	BiWeekly       Recurrence = "bi-weekly"
	SemiMonthly    Recurrence = "semi-monthly"
	Monthly        Recurrence = "monthly"
	Yearly         Recurrence = "yearly"
	CustomInterval Recurrence = "custom-interval"
	Manual         Recurrence = "manual"
	OneTime        Recurrence = "one-time"
)

const (
	BillEntry   EntryType = "bill"
	PaydayEntry EntryType = "payday"
)

type (
	Recurrence string

	EntryType string

	Account struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Order int    `json:"order"`
	}

	// ManualDate is one explicit occurrence of a manual template.
	ManualDate struct {
		Month string `json:"month"`
		Day   int    `json:"day"`
	}

	BillTemplate struct {
		ID           string       `json:"id"`
		Name         string       `json:"name"`
		Day          int          `json:"day"`
		Day2         int          `json:"day2,omitempty"`
		Month        string       `json:"month,omitempty"`
		StartMonth   string       `json:"startMonth,omitempty"`
		EndMonth     string       `json:"endMonth,omitempty"`
		Recurrence   Recurrence   `json:"recurrence"`
		IntervalDays int          `json:"intervalDays,omitempty"`
		ManualDates  []ManualDate `json:"manualDates,omitempty"`
		Amounts      Amounts      `json:"amounts"`
		AutoGenerate bool         `json:"autoGenerate"`
		IsActive     bool         `json:"isActive"`
	}

	PaydayTemplate struct {
		ID           string     `json:"id"`
		Name         string     `json:"name"`
		Day          int        `json:"day"`
		Day2         int        `json:"day2,omitempty"`
		Month        string     `json:"month,omitempty"`
		StartMonth   string     `json:"startMonth,omitempty"`
		EndMonth     string     `json:"endMonth,omitempty"`
		Recurrence   Recurrence `json:"recurrence"`
		Balances     Amounts    `json:"balances"`
		AutoGenerate bool       `json:"autoGenerate"`
		IsActive     bool       `json:"isActive"`
	}

	// Entry is a concrete bill or payday on the calendar. Bills carry
	// Amounts and Paid; paydays carry Balances.
	Entry struct {
		ID         string    `json:"id"`
		TemplateID string    `json:"templateId,omitempty"`
		Type       EntryType `json:"type"`
		Date       int       `json:"date"`
		Month      string    `json:"month"`
		Name       string    `json:"name"`
		Paid       bool      `json:"paid,omitempty"`
		Amounts    Amounts   `json:"amounts,omitempty"`
		Balances   Amounts   `json:"balances,omitempty"`
	}

	// Schedule is the recurrence view shared by bill and payday templates.
	Schedule struct {
		Recurrence   Recurrence
		Day          int
		Day2         int
		Month        string
		StartMonth   string
		EndMonth     string
		IntervalDays int
		ManualDates  []ManualDate
	}
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidRecurrence   = errors.New("invalid recurrence")
	ErrInvalidInterval     = errors.New("invalid interval")
	ErrEmptyName           = errors.New("empty name")
	ErrNameTooLong         = errors.New("name too long (max 200 characters)")
	ErrInvalidEntryType    = errors.New("invalid entry type")
	ErrDuplicateAccount    = errors.New("account name already exists")
	ErrMalformedMonthLabel = errors.New("malformed month label")
	ErrNotFound            = errors.New("not found")
)

// IsBill reports whether the entry is a bill.
func (e Entry) IsBill() bool { return e.Type == BillEntry }

// IsPayday reports whether the entry is a payday.
func (e Entry) IsPayday() bool { return e.Type == PaydayEntry }

// Values returns the per-account map relevant to the entry type.
func (e Entry) Values() Amounts {
	if e.IsPayday() {
		return e.Balances
	}
	return e.Amounts
}

// Clone returns a copy that does not share maps with e.
func (e Entry) Clone() Entry {
	e.Amounts = e.Amounts.Clone()
	e.Balances = e.Balances.Clone()
	return e
}

// NaturalKey identifies a generated entry independently of its random id by
// template, month label and day. Entries without a template have none.
func (e Entry) NaturalKey() (string, bool) {
	if e.TemplateID == "" {
		return "", false
	}
	return e.TemplateID + "\x00" + e.Month + "\x00" + strconv.Itoa(e.Date), true
}

func (r Recurrence) IsValid() bool {
	switch r {
	case Weekly, BiWeekly, SemiMonthly, Monthly, Yearly, CustomInterval, Manual, OneTime:
		return true
	default:
		return false
	}
}

// Schedule returns the recurrence description of the template.
func (t BillTemplate) Schedule() Schedule {
	return Schedule{
		Recurrence:   t.Recurrence,
		Day:          t.Day,
		Day2:         t.Day2,
		Month:        t.Month,
		StartMonth:   t.StartMonth,
		EndMonth:     t.EndMonth,
		IntervalDays: t.IntervalDays,
		ManualDates:  t.ManualDates,
	}
}

// Schedule returns the recurrence description of the template. Payday
// templates never carry manual dates or a custom interval.
func (t PaydayTemplate) Schedule() Schedule {
	return Schedule{
		Recurrence: t.Recurrence,
		Day:        t.Day,
		Day2:       t.Day2,
		Month:      t.Month,
		StartMonth: t.StartMonth,
		EndMonth:   t.EndMonth,
	}
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (s Schedule) Validate() error {
	if !s.Recurrence.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRecurrence, s.Recurrence)
	}
	if s.Day < 1 || s.Day > 31 {
		return ErrInvalidDay
	}
	if s.Day2 != 0 && (s.Day2 < 1 || s.Day2 > 31) {
		return fmt.Errorf("second day: %w", ErrInvalidDay)
	}
	for _, m := range []string{s.Month, s.StartMonth, s.EndMonth} {
		if m != "" && MonthIndex(m) < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidMonth, m)
		}
	}
	if s.StartMonth != "" && s.EndMonth != "" && MonthIndex(s.StartMonth) > MonthIndex(s.EndMonth) {
		return fmt.Errorf("%w: start month %s is after end month %s", ErrInvalidMonth, s.StartMonth, s.EndMonth)
	}
	if s.Recurrence == CustomInterval && s.IntervalDays < 0 {
		return ErrInvalidInterval
	}
	if s.Recurrence == Manual {
		for _, md := range s.ManualDates {
			if MonthIndex(md.Month) < 0 {
				return fmt.Errorf("manual date: %w: %q", ErrInvalidMonth, md.Month)
			}
			if md.Day < 1 || md.Day > 31 {
				return fmt.Errorf("manual date: %w", ErrInvalidDay)
			}
		}
	}
	return nil
}

func (t BillTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > 200 {
		return ErrNameTooLong
	}
	return t.Schedule().Validate()
}

func (t PaydayTemplate) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > 200 {
		return ErrNameTooLong
	}
	if t.Recurrence == Manual || t.Recurrence == CustomInterval {
		return fmt.Errorf("%w: %q not supported for paydays", ErrInvalidRecurrence, t.Recurrence)
	}
	return t.Schedule().Validate()
}

func (e Entry) Validate() error {
	if e.Type != BillEntry && e.Type != PaydayEntry {
		return fmt.Errorf("%w: %q", ErrInvalidEntryType, e.Type)
	}
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if e.Date < 1 || e.Date > 31 {
		return ErrInvalidDay
	}
	return ValidateMonthLabel(e.Month)
}
