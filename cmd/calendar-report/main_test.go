package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"paycal/internal/core"
)

func writeBackupFile(t *testing.T) string {
	t.Helper()
	b := core.Backup{
		Accounts: []core.Account{{ID: "a1", Name: "Checking"}},
		PaydayTemplates: []core.PaydayTemplate{{
			ID: "p1", Name: "Salary", Recurrence: core.Monthly, Day: 1, EndMonth: "Feb",
			Balances: core.NewAmounts(map[string]float64{"Checking": 2000}), AutoGenerate: true, IsActive: true,
		}},
		Templates: []core.BillTemplate{{
			ID: "b1", Name: "Rent", Recurrence: core.Monthly, Day: 2, EndMonth: "Feb",
			Amounts: core.NewAmounts(map[string]float64{"Checking": 800}), AutoGenerate: true, IsActive: true,
		}},
	}
	var buf bytes.Buffer
	if err := core.WriteBackup(&buf, b); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "backup.json")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun(t *testing.T) {
	path := writeBackupFile(t)
	now := func() time.Time { return time.Date(2026, time.March, 20, 9, 0, 0, 0, time.UTC) }

	tests := []struct {
		name      string
		args      []string
		wantLines int
		contains  []string
		wantErr   bool
	}{
		{"missing backup flag", nil, 0, nil, true},
		{"unknown file", []string{"-backup", filepath.Join(t.TempDir(), "nope.json")}, 0, nil, true},
		{"no entries without expansion", []string{"-backup", path}, 1, []string{"Month", "Checking remaining"}, false},
		{"expanded", []string{"-backup", path, "-expand", "2026"}, 5, []string{"Salary", "Rent", "1200.00"}, false},
		{"hide old", []string{"-backup", path, "-expand", "2026", "-hide-old"}, 3, []string{"Feb '26"}, false},
		{"analytics", []string{"-backup", path, "-expand", "2026", "-analytics"}, 2, []string{"Rent", "800.00"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), tt.args, &out, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
			if len(lines) != tt.wantLines {
				t.Errorf("got %d lines:\n%s", len(lines), out.String())
			}
			for _, s := range tt.contains {
				if !strings.Contains(out.String(), s) {
					t.Errorf("output missing %q:\n%s", s, out.String())
				}
			}
		})
	}
}

func TestRunHelpDescribesHideOldCutoff(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-h"}, &out, time.Now)
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("run(-h) error = %v, want flag.ErrHelp", err)
	}
	if !strings.Contains(out.String(), "more than 56 days before today") {
		t.Errorf("usage does not describe the hide-old cutoff:\n%s", out.String())
	}
}
