package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"paycal/internal/amqp"
	"paycal/internal/core"
)

func TestDefaultExpansionProcessorConfig(t *testing.T) {
	config := DefaultExpansionProcessorConfig()
	if config.Interval != time.Hour {
		t.Errorf("expected Interval 1h, got %v", config.Interval)
	}
	if config.Concurrency != 4 {
		t.Errorf("expected Concurrency 4, got %d", config.Concurrency)
	}
}

func TestExpansionProcessor_HandleTemplateChanged(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, store := newTestLedger(t, WithPublisher(pub))
	p := NewExpansionProcessor(svc, DefaultExpansionProcessorConfig())

	tmpl, err := svc.SaveBillTemplate(ctx, testUser, monthlyRent())
	if err != nil {
		t.Fatal(err)
	}
	if err := p.HandleTemplateChanged(ctx, pub.msgs[0]); err != nil {
		t.Fatalf("HandleTemplateChanged(upsert) error = %v", err)
	}
	// Redelivery must not duplicate entries.
	if err := p.HandleTemplateChanged(ctx, pub.msgs[0]); err != nil {
		t.Fatal(err)
	}
	if entries, _ := store.ListEntries(ctx, testUser); len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	if err := svc.DeleteBillTemplate(ctx, testUser, tmpl.ID); err != nil {
		t.Fatal(err)
	}
	if err := p.HandleTemplateChanged(ctx, pub.msgs[1]); err != nil {
		t.Fatalf("HandleTemplateChanged(delete) error = %v", err)
	}
	if entries, _ := store.ListEntries(ctx, testUser); len(entries) != 0 {
		t.Errorf("entries after delete = %d, want 0", len(entries))
	}

	t.Run("upsert of a deleted template is dropped", func(t *testing.T) {
		if err := p.HandleTemplateChanged(ctx, pub.msgs[0]); err != nil {
			t.Errorf("error = %v, want nil", err)
		}
	})
	t.Run("invalid message", func(t *testing.T) {
		err := p.HandleTemplateChanged(ctx, &amqp.TemplateChangedMessage{UserID: testUser})
		if err == nil {
			t.Error("expected error for message without template id")
		}
	})
}

type failingExpansion struct {
	Expansion
	users []string
	fail  string
	calls chan string
}

func (f *failingExpansion) Users(context.Context) ([]string, error) { return f.users, nil }

func (f *failingExpansion) SyncAll(_ context.Context, userID string, _ int) (int, error) {
	f.calls <- userID
	if userID == f.fail {
		return 0, errors.New("store unavailable")
	}
	return 2, nil
}

func TestExpansionProcessor_RunYearPass(t *testing.T) {
	ctx := context.Background()

	t.Run("expands every user", func(t *testing.T) {
		svc, store := newTestLedger(t)
		for _, user := range []string{"a", "b"} {
			if err := store.SaveBillTemplate(ctx, user, core.BillTemplate{
				ID: "t-" + user, Name: "Rent", Recurrence: core.Monthly, Day: 1,
				AutoGenerate: true, IsActive: true,
			}); err != nil {
				t.Fatal(err)
			}
		}
		p := NewExpansionProcessor(svc, ExpansionProcessorConfig{Interval: time.Hour, Concurrency: 2})
		n, err := p.RunYearPass(ctx, 2027)
		if err != nil || n != 24 {
			t.Errorf("RunYearPass() = %d, %v, want 24", n, err)
		}
		n, _ = p.RunYearPass(ctx, 2027)
		if n != 0 {
			t.Errorf("second RunYearPass() = %d, want 0", n)
		}
	})

	t.Run("one failing user does not stop the pass", func(t *testing.T) {
		f := &failingExpansion{users: []string{"a", "b", "c"}, fail: "b", calls: make(chan string, 3)}
		p := NewExpansionProcessor(f, ExpansionProcessorConfig{Concurrency: 1})
		n, err := p.RunYearPass(ctx, 2026)
		if err == nil {
			t.Error("expected the failure to be reported")
		}
		if n != 4 || len(f.calls) != 3 {
			t.Errorf("generated %d across %d users, want 4 across 3", n, len(f.calls))
		}
	})
}

func TestExpansionProcessor_StartStop(t *testing.T) {
	f := &failingExpansion{calls: make(chan string, 1)}
	p := NewExpansionProcessor(f, ExpansionProcessorConfig{Interval: time.Hour, Concurrency: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
