// Package sheets exports projected calendars to spreadsheets.
package sheets

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"paycal/internal/core"
	"paycal/internal/services"
)

// Ports for outbound adapters.
type (
	// CalendarExporter writes a table into a spreadsheet, replacing what was
	// there, and returns a reference to the written range.
	CalendarExporter interface {
		ExportCalendar(ctx context.Context, t Table) (rangeRef string, err error)
	}
)

// Table is a header row followed by data rows, all as display strings.
type Table struct {
	Header []string
	Rows   [][]string
}

// Values returns the table as the row-major matrix spreadsheet APIs take.
func (t Table) Values() [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	out = append(out, toAny(t.Header))
	for _, r := range t.Rows {
		out = append(out, toAny(r))
	}
	return out
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// CalendarTable lays out one row per calendar entry. For every account it
// emits the entry's own amount (bill amount or payday balance) and the
// projected remaining balance of the entry's period; paydays also carry the
// period total owed.
func CalendarTable(view services.CalendarView) Table {
	header := []string{"Month", "Day", "Type", "Name", "Paid"}
	for _, a := range view.Accounts {
		header = append(header, a.Name)
	}
	for _, a := range view.Accounts {
		header = append(header, a.Name+" remaining")
	}
	for _, a := range view.Accounts {
		header = append(header, a.Name+" owed")
	}

	rows := make([][]string, 0, len(view.Rows))
	for _, r := range view.Rows {
		paid := ""
		if r.IsBill() {
			paid = strconv.FormatBool(r.Paid)
		}
		row := []string{r.Month, strconv.Itoa(r.Date), string(r.Type), r.Name, paid}
		values := r.Values()
		for _, a := range view.Accounts {
			v, ok := values[a.Name]
			row = append(row, amountCell(v, ok))
		}
		for _, a := range view.Accounts {
			v, ok := r.CalculatedBalances[a.Name]
			row = append(row, amountCell(v, ok))
		}
		for _, a := range view.Accounts {
			v, ok := r.TotalOwed[a.Name]
			row = append(row, amountCell(v, ok))
		}
		rows = append(rows, row)
	}
	return Table{Header: header, Rows: rows}
}

func amountCell(v decimal.Decimal, ok bool) string {
	if !ok {
		return ""
	}
	return core.FormatAmount(v)
}
