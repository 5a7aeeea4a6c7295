package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"paycal/internal/core"
)

type ChangeType string

const (
	ChangeNone     ChangeType = "none"
	ChangeIncrease ChangeType = "increase"
	ChangeDecrease ChangeType = "decrease"
)

// driftThreshold is the smallest difference between the configured amount
// and the average paid amount reported as a change.
var driftThreshold = decimal.RequireFromString("0.01")

// AnalyticsRow compares one bill template against what was paid for it
// during a year.
type AnalyticsRow struct {
	TemplateID        string          `json:"templateId"`
	TemplateName      string          `json:"templateName"`
	YTDPaid           decimal.Decimal `json:"ytdPaid"`
	YTDPlanned        decimal.Decimal `json:"ytdPlanned"`
	PaidCount         int             `json:"paidCount"`
	PlannedCount      int             `json:"plannedCount"`
	CurrentAmount     decimal.Decimal `json:"currentAmount"`
	AveragePaidAmount decimal.Decimal `json:"averagePaidAmount"`
	HasChange         bool            `json:"hasChange"`
	ChangeType        ChangeType      `json:"changeType"`
	ChangeAmount      decimal.Decimal `json:"changeAmount"`
	ChangePercentage  decimal.Decimal `json:"changePercentage"`
}

// AnalyzeBills builds one row per template for year. Entries count toward a
// template when they are bills labelled with the year and either link to
// the template or, for entries created before templates were linked, share
// its name and carry no template id.
//
// Drift is a fixed-threshold heuristic: a change is flagged when the
// current amount differs from the average paid amount by more than 0.01.
func AnalyzeBills(templates []core.BillTemplate, entries []core.Entry, year int) []AnalyticsRow {
	yy := fmt.Sprintf("%02d", year%100)
	markers := []string{"'" + yy, " " + yy, fmt.Sprintf("%d", year)}
	inYear := func(label string) bool {
		for _, m := range markers {
			if strings.Contains(label, m) {
				return true
			}
		}
		return false
	}

	rows := make([]AnalyticsRow, 0, len(templates))
	for _, t := range templates {
		var planned, paid []core.Entry
		for _, e := range entries {
			if !e.IsBill() || !inYear(e.Month) {
				continue
			}
			linked := t.ID != "" && e.TemplateID == t.ID
			legacy := e.TemplateID == "" && e.Name == t.Name
			if !linked && !legacy {
				continue
			}
			planned = append(planned, e)
			if e.Paid {
				paid = append(paid, e)
			}
		}

		ytdPaid := decimal.Zero
		for _, e := range paid {
			ytdPaid = ytdPaid.Add(e.Amounts.Total())
		}
		current := t.Amounts.Total()

		row := AnalyticsRow{
			TemplateID:        t.ID,
			TemplateName:      t.Name,
			YTDPaid:           ytdPaid,
			YTDPlanned:        current.Mul(decimal.NewFromInt(int64(len(planned)))),
			PaidCount:         len(paid),
			PlannedCount:      len(planned),
			CurrentAmount:     current,
			AveragePaidAmount: decimal.Zero,
			ChangeType:        ChangeNone,
			ChangeAmount:      decimal.Zero,
			ChangePercentage:  decimal.Zero,
		}
		if len(paid) > 0 {
			row.AveragePaidAmount = ytdPaid.Div(decimal.NewFromInt(int64(len(paid))))
		}
		if len(paid) > 0 && row.AveragePaidAmount.IsPositive() {
			diff := current.Sub(row.AveragePaidAmount)
			if diff.Abs().GreaterThan(driftThreshold) {
				row.HasChange = true
				row.ChangeAmount = diff
				row.ChangePercentage = diff.Div(row.AveragePaidAmount).Mul(decimal.NewFromInt(100))
				if diff.IsPositive() {
					row.ChangeType = ChangeIncrease
				} else {
					row.ChangeType = ChangeDecrease
				}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// ChangedBills keeps rows with a detected change that the user has not
// dismissed.
func ChangedBills(rows []AnalyticsRow, dismissed map[string]bool) []AnalyticsRow {
	var out []AnalyticsRow
	for _, r := range rows {
		if r.HasChange && !dismissed[r.TemplateID] {
			out = append(out, r)
		}
	}
	return out
}
