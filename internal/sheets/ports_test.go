package sheets

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"paycal/internal/core"
	"paycal/internal/services"
)

func TestCalendarTable(t *testing.T) {
	view := services.CalendarView{
		Accounts: []core.Account{{ID: "a1", Name: "Checking", Order: 0}, {ID: "a2", Name: "Savings", Order: 1}},
		Rows: []services.CalendarRow{
			{
				Entry: core.Entry{ID: "p1", Type: core.PaydayEntry, Date: 1, Month: "Jan '26", Name: "Salary",
					Balances: core.NewAmounts(map[string]float64{"Checking": 1000})},
				CalculatedBalances: core.Totals{"Checking": decimal.NewFromInt(200), "Savings": decimal.Zero},
				TotalOwed:          core.Totals{"Checking": decimal.NewFromInt(800), "Savings": decimal.Zero},
			},
			{
				Entry: core.Entry{ID: "b1", Type: core.BillEntry, Date: 2, Month: "Jan '26", Name: "Rent", Paid: true,
					Amounts: core.NewAmounts(map[string]float64{"Checking": 800})},
				CalculatedBalances: core.Totals{"Checking": decimal.NewFromInt(200), "Savings": decimal.Zero},
			},
		},
	}

	got := CalendarTable(view)

	wantHeader := []string{"Month", "Day", "Type", "Name", "Paid",
		"Checking", "Savings", "Checking remaining", "Savings remaining", "Checking owed", "Savings owed"}
	if !reflect.DeepEqual(got.Header, wantHeader) {
		t.Errorf("header = %v", got.Header)
	}
	wantRows := [][]string{
		{"Jan '26", "1", "payday", "Salary", "", "1000.00", "", "200.00", "0.00", "800.00", "0.00"},
		{"Jan '26", "2", "bill", "Rent", "true", "800.00", "", "200.00", "0.00", "", ""},
	}
	if !reflect.DeepEqual(got.Rows, wantRows) {
		t.Errorf("rows = %v", got.Rows)
	}

	values := got.Values()
	if len(values) != 3 || values[0][0] != "Month" || values[2][3] != "Rent" {
		t.Errorf("Values() = %v", values)
	}
}
