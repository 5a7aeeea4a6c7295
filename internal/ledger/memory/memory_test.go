package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"paycal/internal/core"
)

func TestStoreUserIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.SaveAccounts(ctx, "alice", core.Account{ID: "a1", Name: "Checking"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveEntries(ctx, "bob", core.Entry{ID: "e1", Type: core.BillEntry, Month: "Jan '26", Date: 3, Name: "Rent"}); err != nil {
		t.Fatal(err)
	}

	if got, _ := s.ListAccounts(ctx, "bob"); len(got) != 0 {
		t.Errorf("bob sees accounts %v", got)
	}
	if got, _ := s.ListEntries(ctx, "alice"); len(got) != 0 {
		t.Errorf("alice sees entries %v", got)
	}
	// Reading an unknown user must not make it appear in Users.
	_, _ = s.Snapshot(ctx, "carol")
	users, _ := s.Users(ctx)
	if !reflect.DeepEqual(users, []string{"alice", "bob"}) {
		t.Errorf("Users() = %v", users)
	}
}

func TestStoreMissingIDsAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	tests := []struct {
		name     string
		call     func() error
		notFound bool
	}{
		{"entry without id", func() error { return s.SaveEntries(ctx, "u", core.Entry{Name: "x"}) }, false},
		{"account without id", func() error { return s.SaveAccounts(ctx, "u", core.Account{Name: "x"}) }, false},
		{"bill template without id", func() error { return s.SaveBillTemplate(ctx, "u", core.BillTemplate{}) }, false},
		{"payday template without id", func() error { return s.SavePaydayTemplate(ctx, "u", core.PaydayTemplate{}) }, false},
		{"unknown account", func() error { return s.DeleteAccount(ctx, "u", "nope") }, true},
		{"unknown bill template", func() error { return s.DeleteBillTemplate(ctx, "u", "nope") }, true},
		{"unknown payday template", func() error { return s.DeletePaydayTemplate(ctx, "u", "nope") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, core.ErrNotFound); got != tt.notFound {
				t.Errorf("errors.Is(ErrNotFound) = %v for %v", got, err)
			}
		})
	}
	if err := s.DeleteEntries(ctx, "u", "nope"); err != nil {
		t.Errorf("DeleteEntries unknown id: %v", err)
	}
}

func TestStoreEntriesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	e := core.Entry{ID: "e1", Type: core.BillEntry, Month: "Jan '26", Date: 3, Name: "Rent",
		Amounts: core.NewAmounts(map[string]float64{"Checking": 800})}
	if err := s.SaveEntries(ctx, "u", e); err != nil {
		t.Fatal(err)
	}
	e.Amounts["Checking"] = decimal.NewFromInt(1)

	got, _ := s.ListEntries(ctx, "u")
	if core.FormatAmount(got[0].Amounts.Get("Checking")) != "800.00" {
		t.Errorf("stored entry changed through caller's map: %+v", got[0].Amounts)
	}
}

func TestStoreBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := core.Backup{
		Entries:         []core.Entry{{ID: "e1", Type: core.PaydayEntry, Month: "Jan '26", Date: 1, Name: "Salary"}},
		Accounts:        []core.Account{{ID: "a2", Name: "Savings", Order: 1}, {ID: "a1", Name: "Checking", Order: 0}},
		Templates:       []core.BillTemplate{{ID: "t1", Name: "Rent"}},
		PaydayTemplates: []core.PaydayTemplate{{ID: "p1", Name: "Salary"}},
	}
	s := NewFromBackup("u", b)

	snap, err := s.Snapshot(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Backup().Len(); got != b.Len() {
		t.Errorf("snapshot has %d documents, want %d", got, b.Len())
	}
	if snap.Accounts[0].ID != "a1" {
		t.Errorf("accounts not sorted by order: %+v", snap.Accounts)
	}

	other := New()
	if err := other.Import(ctx, "v", snap.Backup()); err != nil {
		t.Fatal(err)
	}
	again, _ := other.Snapshot(ctx, "v")
	if !reflect.DeepEqual(again, snap) {
		t.Errorf("imported snapshot differs:\n got %+v\nwant %+v", again, snap)
	}

	if err := other.DeleteAll(ctx, "v"); err != nil {
		t.Fatal(err)
	}
	if users, _ := other.Users(ctx); len(users) != 0 {
		t.Errorf("Users() after DeleteAll = %v", users)
	}
}

func TestStoreInsertMissingEntries(t *testing.T) {
	ctx := context.Background()
	s := New()
	rent := func(id, month string) core.Entry {
		return core.Entry{ID: id, Type: core.BillEntry, Name: "Rent", Date: 1, Month: month, TemplateID: "t1"}
	}
	if err := s.SaveEntries(ctx, "u", rent("e1", "Jan '26")); err != nil {
		t.Fatal(err)
	}

	inserted, err := s.InsertMissingEntries(ctx, "u", rent("e2", "Jan '26"), rent("e3", "Feb '26"), rent("e4", "Feb '26"))
	if err != nil {
		t.Fatal(err)
	}
	if len(inserted) != 1 || inserted[0].ID != "e3" {
		t.Errorf("inserted = %+v, want only e3", inserted)
	}
	if _, err := s.InsertMissingEntries(ctx, "u", core.Entry{Name: "no id"}); err == nil {
		t.Error("entry without id was accepted")
	}
	if entries, _ := s.ListEntries(ctx, "u"); len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestStorePreferences(t *testing.T) {
	ctx := context.Background()
	s := New()

	prefs, found, err := s.GetPreferences(ctx, "u")
	if err != nil || found || !reflect.DeepEqual(prefs, core.DefaultPreferences()) {
		t.Fatalf("GetPreferences() = %+v, %v, %v, want defaults", prefs, found, err)
	}
	if users, _ := s.Users(ctx); len(users) != 0 {
		t.Errorf("reading preferences created a user: %v", users)
	}

	prefs.Dismiss("t1")
	if err := s.SavePreferences(ctx, "u", prefs); err != nil {
		t.Fatal(err)
	}
	prefs.Dismiss("t2")

	got, found, _ := s.GetPreferences(ctx, "u")
	if !found || len(got.DismissedBillChanges) != 1 {
		t.Errorf("stored preferences share memory with the caller: %+v", got)
	}
	got.DismissedBillChanges[0] = "changed"
	again, _, _ := s.GetPreferences(ctx, "u")
	if again.DismissedBillChanges[0] != "t1" {
		t.Errorf("returned preferences share memory with the store: %+v", again)
	}
}
