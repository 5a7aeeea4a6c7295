package http

import (
	"net/http"
	"testing"

	"paycal/internal/core"
)

// seedYear fills the default user's calendar with a semi-monthly payday
// and five monthly bills for the whole of 2026.
func seedYear(tb testing.TB, ts *testServer) {
	tb.Helper()
	expectStatus(tb, ts.do(tb, http.MethodPost, "/api/accounts", "", map[string]string{"name": "Checking"}), http.StatusCreated)
	expectStatus(tb, ts.do(tb, http.MethodPost, "/api/templates/paydays", "", core.PaydayTemplate{
		Name: "Salary", Recurrence: core.SemiMonthly, Day: 1, Day2: 15,
		Balances: core.NewAmounts(map[string]float64{"Checking": 2000}), AutoGenerate: true, IsActive: true,
	}), http.StatusCreated)
	for _, name := range []string{"Rent", "Power", "Water", "Phone", "Internet"} {
		expectStatus(tb, ts.do(tb, http.MethodPost, "/api/templates/bills", "", core.BillTemplate{
			Name: name, Recurrence: core.Monthly, Day: 5,
			Amounts: core.NewAmounts(map[string]float64{"Checking": 100}), AutoGenerate: true, IsActive: true,
		}), http.StatusCreated)
	}
}

func benchmarkCalendar(b *testing.B, cached bool) {
	ts := newTestServer(b)
	seedYear(b, ts)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !cached {
			ts.calendar.Invalidate("local")
		}
		expectStatus(b, ts.do(b, http.MethodGet, "/api/calendar?hideOld=false", "", nil), http.StatusOK)
	}
}

func BenchmarkCalendarCached(b *testing.B)   { benchmarkCalendar(b, true) }
func BenchmarkCalendarUncached(b *testing.B) { benchmarkCalendar(b, false) }

func TestSeedYearProjectsEveryMonth(t *testing.T) {
	ts := newTestServer(t)
	seedYear(t, ts)

	rec := ts.do(t, http.MethodGet, "/api/calendar?hideOld=false", "", nil)
	expectStatus(t, rec, http.StatusOK)
	view := decodeBody[struct {
		Total   int   `json:"total"`
		Periods []any `json:"periods"`
	}](t, rec)
	// 24 paydays and 60 bills.
	if view.Total != 84 || len(view.Periods) != 24 {
		t.Errorf("total = %d, periods = %d", view.Total, len(view.Periods))
	}
}
