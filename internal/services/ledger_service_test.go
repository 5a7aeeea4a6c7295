package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"paycal/internal/amqp"
	"paycal/internal/core"
	"paycal/internal/ledger/memory"
)

const testUser = "u1"

var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, opts ...LedgerOption) (*LedgerService, *memory.Store) {
	t.Helper()
	store := memory.New()
	opts = append([]LedgerOption{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	}, opts...)
	return NewLedgerService(store, opts...), store
}

func monthlyRent() core.BillTemplate {
	return core.BillTemplate{
		Name:         "Rent",
		Recurrence:   core.Monthly,
		Day:          1,
		StartMonth:   "Jan",
		EndMonth:     "Mar",
		Amounts:      core.NewAmounts(map[string]float64{"Checking": 1000}),
		AutoGenerate: true,
		IsActive:     true,
	}
}

func TestLedger_Accounts(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	checking, err := svc.AddAccount(ctx, testUser, "  Checking ")
	if err != nil {
		t.Fatalf("AddAccount() error = %v", err)
	}
	savings, _ := svc.AddAccount(ctx, testUser, "Savings")
	if checking.Name != "Checking" || checking.Order != 0 || savings.Order != 1 {
		t.Errorf("accounts = %+v, %+v", checking, savings)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"duplicate ignoring case", func() error { _, err := svc.AddAccount(ctx, testUser, "checking"); return err }, core.ErrDuplicateAccount},
		{"empty name", func() error { _, err := svc.AddAccount(ctx, testUser, "   "); return err }, core.ErrEmptyName},
		{"rename onto another account", func() error { _, err := svc.RenameAccount(ctx, testUser, savings.ID, "CHECKING"); return err }, core.ErrDuplicateAccount},
		{"rename unknown", func() error { _, err := svc.RenameAccount(ctx, testUser, "nope", "X"); return err }, core.ErrNotFound},
		{"reorder with missing ids", func() error { _, err := svc.ReorderAccounts(ctx, testUser, []string{savings.ID}); return err }, ErrInvalidInput},
		{"reorder with unknown id", func() error { _, err := svc.ReorderAccounts(ctx, testUser, []string{savings.ID, "nope"}); return err }, core.ErrNotFound},
		{"remove unknown", func() error { return svc.RemoveAccount(ctx, testUser, "nope") }, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := svc.RenameAccount(ctx, testUser, checking.ID, "checking"); err != nil {
		t.Errorf("renaming an account to its own name in another case: %v", err)
	}
	reordered, err := svc.ReorderAccounts(ctx, testUser, []string{savings.ID, checking.ID})
	if err != nil {
		t.Fatalf("ReorderAccounts() error = %v", err)
	}
	if reordered[0].ID != savings.ID || reordered[0].Order != 0 || reordered[1].Order != 1 {
		t.Errorf("ReorderAccounts() = %+v", reordered)
	}
	list, _ := svc.Accounts(ctx, testUser)
	if list[0].Name != "Savings" {
		t.Errorf("Accounts() first = %s, want Savings", list[0].Name)
	}
}

func TestLedger_AddAccountOrderFollowsHighest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	first, _ := svc.AddAccount(ctx, testUser, "First")
	second, _ := svc.AddAccount(ctx, testUser, "Second")
	if err := svc.RemoveAccount(ctx, testUser, first.ID); err != nil {
		t.Fatal(err)
	}
	third, err := svc.AddAccount(ctx, testUser, "Third")
	if err != nil {
		t.Fatalf("AddAccount() error = %v", err)
	}
	if third.Order != second.Order+1 {
		t.Errorf("third order = %d, want %d after the highest", third.Order, second.Order+1)
	}
}

func TestLedger_Entries(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	e, err := svc.AddEntry(ctx, testUser, core.Entry{
		Type: core.BillEntry, Name: "Car", Month: "Mar '26", Date: 4, Paid: true,
		Amounts:  core.NewAmounts(map[string]float64{"Checking": 250}),
		Balances: core.NewAmounts(map[string]float64{"Checking": 1}),
	})
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if e.ID == "" || e.Paid || len(e.Balances) != 0 {
		t.Errorf("AddEntry() = %+v, want new unpaid bill without balances", e)
	}

	toggled, err := svc.TogglePaid(ctx, testUser, e.ID)
	if err != nil || !toggled.Paid {
		t.Fatalf("TogglePaid() = %+v, %v", toggled, err)
	}

	updated, err := svc.UpdateEntry(ctx, testUser, core.Entry{
		ID: e.ID, Type: core.PaydayEntry, Name: "Car loan", Month: "Apr '26", Date: 4, Paid: true,
		Amounts: core.NewAmounts(map[string]float64{"Checking": 260}),
	})
	if err != nil {
		t.Fatalf("UpdateEntry() error = %v", err)
	}
	if updated.Type != core.BillEntry || updated.Name != "Car loan" || updated.Amounts.Get("Checking").String() != "260" {
		t.Errorf("UpdateEntry() = %+v", updated)
	}

	invalid := []struct {
		name  string
		entry core.Entry
	}{
		{"bad type", core.Entry{Type: "transfer", Name: "x", Month: "Mar '26", Date: 1}},
		{"bad label", core.Entry{Type: core.BillEntry, Name: "x", Month: "March", Date: 1}},
		{"bad day", core.Entry{Type: core.BillEntry, Name: "x", Month: "Mar '26", Date: 32}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AddEntry(ctx, testUser, tt.entry); !IsValidation(err) {
				t.Errorf("AddEntry() error = %v, want validation error", err)
			}
		})
	}

	if err := svc.DeleteEntry(ctx, testUser, e.ID); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if err := svc.DeleteEntry(ctx, testUser, e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second DeleteEntry() error = %v, want ErrNotFound", err)
	}
}

func TestLedger_TemplateLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestLedger(t)

	changes := 0
	svc.OnChange(func(string) { changes++ })

	tmpl, err := svc.SaveBillTemplate(ctx, testUser, monthlyRent())
	if err != nil {
		t.Fatalf("SaveBillTemplate() error = %v", err)
	}
	entries, _ := store.ListEntries(ctx, testUser)
	if len(entries) != 3 {
		t.Fatalf("entries after create = %d, want 3", len(entries))
	}

	// Editing only adds what is missing.
	tmpl.EndMonth = "Apr"
	if _, err := svc.SaveBillTemplate(ctx, testUser, tmpl); err != nil {
		t.Fatalf("SaveBillTemplate(update) error = %v", err)
	}
	entries, _ = store.ListEntries(ctx, testUser)
	if len(entries) != 4 {
		t.Fatalf("entries after update = %d, want 4", len(entries))
	}

	for _, e := range entries {
		if e.Month == "Jan '26" {
			if _, err := svc.TogglePaid(ctx, testUser, e.ID); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := svc.DeleteBillTemplate(ctx, testUser, tmpl.ID); err != nil {
		t.Fatalf("DeleteBillTemplate() error = %v", err)
	}
	entries, _ = store.ListEntries(ctx, testUser)
	if len(entries) != 1 || !entries[0].Paid {
		t.Errorf("entries after delete = %+v, want only the paid January bill", entries)
	}
	if changes != 4 {
		t.Errorf("OnChange called %d times, want 4", changes)
	}

	if _, err := svc.SaveBillTemplate(ctx, testUser, core.BillTemplate{ID: "missing", Name: "x", Recurrence: core.Monthly, Day: 1}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("saving unknown template id: %v", err)
	}
	bad := monthlyRent()
	bad.StartMonth, bad.EndMonth = "Dec", "Jan"
	if _, err := svc.SaveBillTemplate(ctx, testUser, bad); !IsValidation(err) {
		t.Errorf("inverted window error = %v, want validation error", err)
	}
}

func TestLedger_PaydayTemplateRemovesEveryEntry(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestLedger(t)

	pt, err := svc.SavePaydayTemplate(ctx, testUser, core.PaydayTemplate{
		Name: "Salary", Recurrence: core.Monthly, Day: 25, EndMonth: "Feb",
		Balances: core.NewAmounts(map[string]float64{"Checking": 3000}), AutoGenerate: true, IsActive: true,
	})
	if err != nil {
		t.Fatalf("SavePaydayTemplate() error = %v", err)
	}
	if entries, _ := store.ListEntries(ctx, testUser); len(entries) != 2 {
		t.Fatalf("payday entries = %d, want 2", len(entries))
	}
	if err := svc.DeletePaydayTemplate(ctx, testUser, pt.ID); err != nil {
		t.Fatal(err)
	}
	if entries, _ := store.ListEntries(ctx, testUser); len(entries) != 0 {
		t.Errorf("payday entries after delete = %d, want 0", len(entries))
	}

	_, err = svc.SavePaydayTemplate(ctx, testUser, core.PaydayTemplate{Name: "x", Recurrence: core.Manual, Day: 1})
	if !IsValidation(err) {
		t.Errorf("manual payday error = %v, want validation error", err)
	}
}

type fakePublisher struct {
	msgs []*amqp.TemplateChangedMessage
	err  error
}

func (p *fakePublisher) PublishTemplateChanged(_ context.Context, msg *amqp.TemplateChangedMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func TestLedger_PublishesTemplateChanges(t *testing.T) {
	ctx := context.Background()

	t.Run("published changes are not expanded inline", func(t *testing.T) {
		pub := &fakePublisher{}
		svc, store := newTestLedger(t, WithPublisher(pub))
		tmpl, err := svc.SaveBillTemplate(ctx, testUser, monthlyRent())
		if err != nil {
			t.Fatal(err)
		}
		if len(pub.msgs) != 1 {
			t.Fatalf("published %d messages, want 1", len(pub.msgs))
		}
		m := pub.msgs[0]
		if m.TemplateID != tmpl.ID || m.Kind != amqp.KindBill || m.Action != amqp.ActionUpsert || m.Year != 2026 {
			t.Errorf("message = %+v", m)
		}
		if entries, _ := store.ListEntries(ctx, testUser); len(entries) != 0 {
			t.Errorf("entries = %d, want none until the worker runs", len(entries))
		}
	})

	t.Run("publish failure falls back to inline", func(t *testing.T) {
		pub := &fakePublisher{err: amqp.ErrCircuitOpen}
		svc, store := newTestLedger(t, WithPublisher(pub))
		if _, err := svc.SaveBillTemplate(ctx, testUser, monthlyRent()); err != nil {
			t.Fatal(err)
		}
		if entries, _ := store.ListEntries(ctx, testUser); len(entries) != 3 {
			t.Errorf("entries = %d, want 3", len(entries))
		}
	})
}

func TestLedger_SyncAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)
	if _, err := svc.SaveBillTemplate(ctx, testUser, monthlyRent()); err != nil {
		t.Fatal(err)
	}
	n, err := svc.SyncAll(ctx, testUser, 2026)
	if err != nil || n != 0 {
		t.Errorf("SyncAll(2026) = %d, %v, want 0 new entries", n, err)
	}
	n, err = svc.SyncAll(ctx, testUser, 2027)
	if err != nil || n != 3 {
		t.Errorf("SyncAll(2027) = %d, %v, want 3", n, err)
	}
}

// slowSnapshotStore widens the gap between reading a snapshot and writing
// the generated entries.
type slowSnapshotStore struct {
	*memory.Store
	delay time.Duration
}

func (s slowSnapshotStore) Snapshot(ctx context.Context, userID string) (core.Snapshot, error) {
	snap, err := s.Store.Snapshot(ctx, userID)
	time.Sleep(s.delay)
	return snap, err
}

func distinctNaturalKeys(entries []core.Entry) int {
	keys := map[string]bool{}
	for _, e := range entries {
		if k, ok := e.NaturalKey(); ok {
			keys[k] = true
		}
	}
	return len(keys)
}

func TestLedger_ConcurrentSyncKeepsNaturalKeysUnique(t *testing.T) {
	ctx := context.Background()
	clock := WithClock(func() time.Time { return fixedNow })

	tests := []struct {
		name     string
		services int
	}{
		{"one service", 1},
		{"services sharing a store", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := slowSnapshotStore{Store: memory.New(), delay: 5 * time.Millisecond}
			rent := monthlyRent()
			rent.ID = "t-rent"
			if err := store.SaveBillTemplate(ctx, testUser, rent); err != nil {
				t.Fatal(err)
			}

			svcs := make([]*LedgerService, tt.services)
			for i := range svcs {
				svcs[i] = NewLedgerService(store, clock)
			}

			var wg sync.WaitGroup
			var mu sync.Mutex
			total := 0
			for i := 0; i < 8; i++ {
				svc := svcs[i%len(svcs)]
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					var n int
					var err error
					if i%2 == 0 {
						n, err = svc.SyncTemplate(ctx, testUser, rent.ID, 2026)
					} else {
						n, err = svc.SyncAll(ctx, testUser, 2026)
					}
					if err != nil {
						t.Errorf("sync error = %v", err)
					}
					mu.Lock()
					total += n
					mu.Unlock()
				}(i)
			}
			wg.Wait()

			entries, _ := store.ListEntries(ctx, testUser)
			if len(entries) != 3 || distinctNaturalKeys(entries) != 3 {
				t.Errorf("entries = %d with %d natural keys, want 3 and 3", len(entries), distinctNaturalKeys(entries))
			}
			if total != 3 {
				t.Errorf("reported new entries = %d, want 3", total)
			}
		})
	}
}

func TestLedger_ConcurrentAddAccountAdmitsOneName(t *testing.T) {
	ctx := context.Background()
	svc := NewLedgerService(memory.New())

	names := []string{"Checking", "checking", " CHECKING ", "Checking"}
	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = svc.AddAccount(ctx, testUser, name)
		}(i, name)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, core.ErrDuplicateAccount):
			t.Errorf("AddAccount() error = %v", err)
		}
	}
	accounts, _ := svc.Accounts(ctx, testUser)
	if ok != 1 || len(accounts) != 1 {
		t.Errorf("successes = %d, accounts = %d, want 1 and 1", ok, len(accounts))
	}
	svc.locks.mu.Lock()
	defer svc.locks.mu.Unlock()
	if len(svc.locks.locks) != 0 {
		t.Errorf("user locks still held = %d", len(svc.locks.locks))
	}
}

func TestLedger_ImportExport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLedger(t)

	backup := core.Backup{
		Accounts:  []core.Account{{ID: "a-old", Name: "Checking"}},
		Templates: []core.BillTemplate{{ID: "t-old", Name: "Rent", Recurrence: core.Monthly, Day: 1}},
		Entries: []core.Entry{
			{ID: "e-old", TemplateID: "t-old", Type: core.BillEntry, Name: "Rent", Month: "Jan '26", Date: 1},
			{ID: "e-manual", Type: core.PaydayEntry, Name: "Bonus", Month: "Jan '26", Date: 5},
		},
	}
	n, err := svc.Import(ctx, testUser, backup)
	if err != nil || n != 4 {
		t.Fatalf("Import() = %d, %v, want 4", n, err)
	}

	out, err := svc.Export(ctx, testUser)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 4 {
		t.Fatalf("Export() has %d documents, want 4", out.Len())
	}
	newTemplateID := out.Templates[0].ID
	if newTemplateID == "t-old" || out.Accounts[0].ID == "a-old" {
		t.Error("Import() kept ids from the file")
	}
	for _, e := range out.Entries {
		if e.ID == "e-old" || e.ID == "e-manual" {
			t.Errorf("entry kept its id %s", e.ID)
		}
		if e.Name == "Rent" && e.TemplateID != newTemplateID {
			t.Errorf("entry template link = %s, want %s", e.TemplateID, newTemplateID)
		}
	}

	if _, err := svc.Import(ctx, testUser, core.Backup{Entries: []core.Entry{{Type: "x", Name: "x"}}}); !IsValidation(err) {
		t.Errorf("Import(bad type) error = %v, want validation error", err)
	}

	users, _ := svc.Users(ctx)
	if len(users) != 1 || users[0] != testUser {
		t.Errorf("Users() = %v", users)
	}
	if err := svc.DeleteAll(ctx, testUser); err != nil {
		t.Fatal(err)
	}
	if out, _ := svc.Export(ctx, testUser); out.Len() != 0 {
		t.Errorf("Export() after DeleteAll = %d documents", out.Len())
	}
}
