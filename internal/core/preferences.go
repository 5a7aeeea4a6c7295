package core

import "sort"

// Preferences are the per-user display settings of the calendar.
type Preferences struct {
	HideOldData          bool     `json:"hideOldData"`
	HidePaid             bool     `json:"hidePaid"`
	Theme                string   `json:"theme,omitempty"`
	DismissedBillChanges []string `json:"dismissedBillChanges,omitempty"`
}

// DefaultPreferences hides old data and shows paid bills.
func DefaultPreferences() Preferences {
	return Preferences{HideOldData: true, Theme: "dark"}
}

// Dismissed returns the dismissed template ids as a set.
func (p Preferences) Dismissed() map[string]bool {
	set := make(map[string]bool, len(p.DismissedBillChanges))
	for _, id := range p.DismissedBillChanges {
		set[id] = true
	}
	return set
}

// Dismiss records templateID as dismissed, keeping the list sorted and
// free of duplicates.
func (p *Preferences) Dismiss(templateID string) {
	if p.Dismissed()[templateID] {
		return
	}
	p.DismissedBillChanges = append(p.DismissedBillChanges, templateID)
	sort.Strings(p.DismissedBillChanges)
}
