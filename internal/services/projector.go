package services

import (
	"github.com/shopspring/decimal"

	"paycal/internal/core"
)

// OrphanPeriod marks rows that precede the first payday.
const OrphanPeriod = -1

// Annotation holds the derived balances of one entry. TotalOwed is only set
// for paydays; orphan bills have no annotation at all.
type Annotation struct {
	CalculatedBalances core.Totals `json:"calculatedBalances"`
	TotalOwed          core.Totals `json:"totalOwed,omitempty"`
}

// Row is one entry of a projection, in display order.
type Row struct {
	Entry  core.Entry `json:"entry"`
	Period int        `json:"period"`
}

// Period summarizes one payday and the bills that follow it.
type Period struct {
	PaydayID  string      `json:"paydayId"`
	BillIDs   []string    `json:"billIds"`
	Owed      core.Totals `json:"owed"`
	Paid      core.Totals `json:"paid"`
	Remaining core.Totals `json:"remaining"`
}

// Projection is the derived view of a sequenced calendar. Annotations are
// keyed by entry id and joined to rows at presentation time; stored
// entries are never modified.
type Projection struct {
	Rows        []Row                 `json:"rows"`
	Periods     []Period              `json:"periods"`
	Annotations map[string]Annotation `json:"annotations"`
}

// Annotation returns the derived balances of an entry, if any.
func (p Projection) Annotation(entryID string) (Annotation, bool) {
	a, ok := p.Annotations[entryID]
	return a, ok
}

// Entries returns the projected entries in display order.
func (p Projection) Entries() []core.Entry {
	out := make([]core.Entry, len(p.Rows))
	for i, r := range p.Rows {
		out[i] = r.Entry
	}
	return out
}

// Projector groups a sequenced calendar into payday-bounded periods.
type Projector struct {
	Resolver core.AccountResolver
}

// NewProjector returns a Projector joining accounts on their names.
func NewProjector() Projector {
	return Projector{Resolver: core.ByName{}}
}

// Project walks sorted once. A payday opens a period; bills before the
// first payday are orphans and are emitted first, unannotated. Every bill of
// a period carries the period's remaining balance, not its own residual.
// Only the given accounts are totalled; missing amounts count as zero.
func (p Projector) Project(sorted []core.Entry, accounts []core.Account) Projection {
	resolver := p.Resolver
	if resolver == nil {
		resolver = core.ByName{}
	}
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = resolver.Key(a)
	}

	type group struct {
		payday core.Entry
		bills  []core.Entry
	}
	var (
		orphans []core.Entry
		groups  []*group
		current *group
	)
	for _, e := range sorted {
		if e.IsPayday() {
			current = &group{payday: e}
			groups = append(groups, current)
			continue
		}
		if current == nil {
			orphans = append(orphans, e)
			continue
		}
		current.bills = append(current.bills, e)
	}

	proj := Projection{
		Rows:        make([]Row, 0, len(sorted)),
		Periods:     make([]Period, 0, len(groups)),
		Annotations: make(map[string]Annotation, len(sorted)),
	}
	for _, e := range orphans {
		proj.Rows = append(proj.Rows, Row{Entry: e, Period: OrphanPeriod})
	}
	for i, g := range groups {
		owed := zeroTotals(keys)
		paid := zeroTotals(keys)
		for _, b := range g.bills {
			for _, k := range keys {
				amount := b.Amounts.Get(k)
				if amount.IsZero() {
					continue
				}
				owed[k] = owed[k].Add(amount)
				if b.Paid {
					paid[k] = paid[k].Add(amount)
				}
			}
		}
		remaining := make(core.Totals, len(keys))
		for _, k := range keys {
			remaining[k] = owed[k].Sub(paid[k])
		}

		period := Period{PaydayID: g.payday.ID, Owed: owed, Paid: paid, Remaining: remaining}
		proj.Annotations[g.payday.ID] = Annotation{
			CalculatedBalances: cloneTotals(remaining),
			TotalOwed:          cloneTotals(owed),
		}
		proj.Rows = append(proj.Rows, Row{Entry: g.payday, Period: i})
		for _, b := range g.bills {
			period.BillIDs = append(period.BillIDs, b.ID)
			proj.Annotations[b.ID] = Annotation{CalculatedBalances: cloneTotals(remaining)}
			proj.Rows = append(proj.Rows, Row{Entry: b, Period: i})
		}
		proj.Periods = append(proj.Periods, period)
	}
	return proj
}

func zeroTotals(keys []string) core.Totals {
	t := make(core.Totals, len(keys))
	for _, k := range keys {
		t[k] = decimal.Zero
	}
	return t
}

func cloneTotals(t core.Totals) core.Totals {
	out := make(core.Totals, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
