package services

import (
	"github.com/google/uuid"

	"paycal/internal/core"
)

// Expander materializes templates into concrete calendar entries for one
// year. It is pure apart from id generation and never deduplicates: callers
// dedupe on (templateId, month, date), see PlanTemplateSync.
type Expander struct {
	// NewID generates entry ids. Defaults to random UUIDs.
	NewID func() string
}

// NewExpander returns an Expander that assigns UUIDs.
func NewExpander() Expander {
	return Expander{NewID: uuid.NewString}
}

// Expand generates bill entries for templates followed by payday entries for
// paydayTemplates. Inactive templates and templates with auto-generation
// disabled are skipped, as are unknown recurrence types.
func (x Expander) Expand(templates []core.BillTemplate, paydayTemplates []core.PaydayTemplate, year int) []core.Entry {
	var entries []core.Entry
	for _, t := range templates {
		if !t.AutoGenerate || !t.IsActive {
			continue
		}
		for _, occ := range occurrences(t.Schedule(), year) {
			entries = append(entries, core.Entry{
				ID:         x.id(),
				TemplateID: t.ID,
				Type:       core.BillEntry,
				Name:       t.Name,
				Date:       occ.Day,
				Month:      core.MonthLabel(occ.Month, year),
				Paid:       false,
				Amounts:    t.Amounts.Clone(),
			})
		}
	}
	for _, t := range paydayTemplates {
		if !t.AutoGenerate || !t.IsActive {
			continue
		}
		for _, occ := range occurrences(t.Schedule(), year) {
			entries = append(entries, core.Entry{
				ID:         x.id(),
				TemplateID: t.ID,
				Type:       core.PaydayEntry,
				Name:       t.Name,
				Date:       occ.Day,
				Month:      core.MonthLabel(occ.Month, year),
				Balances:   t.Balances.Clone(),
			})
		}
	}
	return entries
}

func (x Expander) id() string {
	if x.NewID == nil {
		return uuid.NewString()
	}
	return x.NewID()
}

func occurrences(s core.Schedule, year int) []Occurrence {
	st, err := GetRecurrenceStrategy(s.Recurrence)
	if err != nil {
		return nil
	}
	return st.Occurrences(s, year, WindowOf(s))
}
