package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"paycal/internal/core"
	"paycal/internal/ledger/memory"
)

func TestPreferences_GetPutUpdate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewPreferencesService(store)

	got, err := svc.Get(ctx, testUser)
	if err != nil || !got.HideOldData || got.Theme != "dark" {
		t.Fatalf("Get() on new user = %+v, %v, want defaults", got, err)
	}

	if err := svc.Put(ctx, testUser, core.Preferences{HidePaid: true, Theme: "light"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	updated, err := svc.Update(ctx, testUser, func(p *core.Preferences) { p.Dismiss("t1") })
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.HideOldData || !updated.HidePaid || updated.Theme != "light" || len(updated.DismissedBillChanges) != 1 {
		t.Errorf("Update() = %+v", updated)
	}

	stored, found, _ := store.GetPreferences(ctx, testUser)
	if !found || !stored.Dismissed()["t1"] {
		t.Errorf("stored preferences = %+v, found %v", stored, found)
	}
}

func TestPreferences_ConcurrentDismissKeepsEveryID(t *testing.T) {
	ctx := context.Background()
	svc := NewPreferencesService(memory.New())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Update(ctx, testUser, func(p *core.Preferences) { p.Dismiss(fmt.Sprintf("t%02d", i)) }); err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := svc.Get(ctx, testUser)
	if len(got.DismissedBillChanges) != 20 {
		t.Errorf("dismissed = %d ids, want 20", len(got.DismissedBillChanges))
	}
}
