package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paycal/internal/cache"
	"paycal/internal/core"
	"paycal/internal/metrics"
)

func seedCalendar(t *testing.T) (*LedgerService, *CalendarService, *metrics.Metrics) {
	t.Helper()
	ctx := context.Background()
	svc, _ := newTestLedger(t)
	m := metrics.New()
	cal := NewCalendarService(svc, cache.NewLRUCache[Projection](16, time.Minute), m)
	cal.SetClock(func() time.Time { return fixedNow })
	svc.OnChange(cal.Invalidate)

	if _, err := svc.AddAccount(ctx, testUser, "Checking"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SavePaydayTemplate(ctx, testUser, core.PaydayTemplate{
		Name: "Salary", Recurrence: core.Monthly, Day: 1, EndMonth: "Apr",
		Balances: core.NewAmounts(map[string]float64{"Checking": 2000}), AutoGenerate: true, IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SaveBillTemplate(ctx, testUser, core.BillTemplate{
		Name: "Rent", Recurrence: core.Monthly, Day: 2, EndMonth: "Apr",
		Amounts: core.NewAmounts(map[string]float64{"Checking": 800}), AutoGenerate: true, IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}
	return svc, cal, m
}

func TestCalendar_View(t *testing.T) {
	ctx := context.Background()
	_, cal, _ := seedCalendar(t)

	view, err := cal.Calendar(ctx, testUser, Visibility{})
	if err != nil {
		t.Fatalf("Calendar() error = %v", err)
	}
	if view.Total != 8 || len(view.Rows) != 8 || len(view.Periods) != 4 {
		t.Fatalf("view has %d rows of %d and %d periods", len(view.Rows), view.Total, len(view.Periods))
	}
	first := view.Rows[0]
	if !first.IsPayday() || first.Month != "Jan '26" || !first.TotalOwed["Checking"].Equal(dec("800")) {
		t.Errorf("first row = %+v", first)
	}
	if !view.Rows[1].CalculatedBalances["Checking"].Equal(dec("800")) {
		t.Errorf("bill balance = %s, want 800", view.Rows[1].CalculatedBalances["Checking"])
	}
	// fixedNow is Mar 10, so the first row on or after today is Apr 1.
	if view.TodayIndex != 6 {
		t.Errorf("TodayIndex = %d, want 6", view.TodayIndex)
	}

	hidden, err := cal.Calendar(ctx, testUser, Visibility{HideOld: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(hidden.Rows) != 6 || hidden.Total != 8 || hidden.Rows[0].Month != "Feb '26" {
		t.Errorf("hide-old rows = %d starting %s", len(hidden.Rows), hidden.Rows[0].Month)
	}
}

func TestCalendar_CachesUntilLedgerChanges(t *testing.T) {
	ctx := context.Background()
	svc, cal, m := seedCalendar(t)

	for i := 0; i < 3; i++ {
		if _, err := cal.Calendar(ctx, testUser, Visibility{}); err != nil {
			t.Fatal(err)
		}
	}
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, line := range []string{
		`paycal_projections_total{cache="hit"} 2`,
		`paycal_projections_total{cache="miss"} 1`,
	} {
		if !strings.Contains(rec.Body.String(), line) {
			t.Errorf("metrics missing %q", line)
		}
	}

	view, _ := cal.Calendar(ctx, testUser, Visibility{})
	if _, err := svc.TogglePaid(ctx, testUser, view.Rows[1].ID); err != nil {
		t.Fatal(err)
	}
	after, _ := cal.Calendar(ctx, testUser, Visibility{})
	if !after.Rows[1].Paid || !after.Rows[0].CalculatedBalances["Checking"].IsZero() {
		t.Errorf("projection not refreshed after toggle: %+v", after.Rows[0])
	}
}

func TestCalendar_Analytics(t *testing.T) {
	ctx := context.Background()
	svc, cal, _ := seedCalendar(t)

	view, _ := cal.Calendar(ctx, testUser, Visibility{})
	rentID := view.Rows[1].TemplateID
	entry := view.Rows[1].Entry
	entry.Amounts = core.NewAmounts(map[string]float64{"Checking": 700})
	entry.Paid = true
	if _, err := svc.UpdateEntry(ctx, testUser, entry); err != nil {
		t.Fatal(err)
	}

	rows, err := cal.Analytics(ctx, testUser, 0)
	if err != nil {
		t.Fatalf("Analytics() error = %v", err)
	}
	var rent AnalyticsRow
	for _, r := range rows {
		if r.TemplateID == rentID {
			rent = r
		}
	}
	if !rent.HasChange || rent.ChangeType != ChangeIncrease || rent.PlannedCount != 4 {
		t.Errorf("rent analytics = %+v", rent)
	}
	if got := ChangedBills(rows, map[string]bool{rentID: true}); len(got) != 0 {
		t.Errorf("dismissed change still reported: %+v", got)
	}
}
