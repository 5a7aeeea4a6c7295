package services

import (
	"paycal/internal/core"
)

// PlanTemplateSync returns the generated entries whose (templateId, month,
// date) is not yet present in existing, so re-running expansion for a
// template never duplicates entries. Duplicates within generated are also
// collapsed.
func PlanTemplateSync(existing, generated []core.Entry) []core.Entry {
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		if k, ok := e.NaturalKey(); ok {
			seen[k] = struct{}{}
		}
	}
	var out []core.Entry
	for _, g := range generated {
		k, ok := g.NaturalKey()
		if ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, g)
	}
	return out
}

// PlanTemplateRemoval returns the ids of entries generated by templateID
// that should go away with the template. Paid bills are kept so financial
// history does not disappear.
func PlanTemplateRemoval(entries []core.Entry, templateID string) []string {
	var ids []string
	for _, e := range entries {
		if templateID == "" || e.TemplateID != templateID {
			continue
		}
		if e.IsBill() && e.Paid {
			continue
		}
		ids = append(ids, e.ID)
	}
	return ids
}
