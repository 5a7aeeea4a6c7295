// Command calendar-report prints the projected calendar of a backup file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"paycal/internal/core"
	"paycal/internal/ledger/memory"
	"paycal/internal/services"
	"paycal/internal/sheets"
)

const reportUser = "report"

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, time.Now); err != nil {
		fmt.Fprintln(os.Stderr, "calendar-report:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, now func() time.Time) error {
	fs := flag.NewFlagSet("calendar-report", flag.ContinueOnError)
	fs.SetOutput(out)
	backupPath := fs.String("backup", "", "Backup JSON file to report on (required)")
	expandYear := fs.Int("expand", 0, "Materialize template entries for this year before projecting")
	hideOld := fs.Bool("hide-old", false,
		fmt.Sprintf("Hide entries dated more than %d days before today", services.HideOldDays))
	hidePaid := fs.Bool("hide-paid", false, "Hide paid bills")
	analytics := fs.Bool("analytics", false, "Print the bill analytics table instead of the calendar")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *backupPath == "" {
		return fmt.Errorf("-backup is required")
	}

	f, err := os.Open(*backupPath)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()
	b, err := core.ReadBackup(f)
	if err != nil {
		return err
	}

	ledgerSvc := services.NewLedgerService(memory.NewFromBackup(reportUser, b), services.WithClock(now))
	if *expandYear != 0 {
		if _, err := ledgerSvc.SyncAll(ctx, reportUser, *expandYear); err != nil {
			return fmt.Errorf("expand %d: %w", *expandYear, err)
		}
	}
	calendar := services.NewCalendarService(ledgerSvc, nil, nil)
	calendar.SetClock(now)

	if *analytics {
		rows, err := calendar.Analytics(ctx, reportUser, *expandYear)
		if err != nil {
			return err
		}
		return writeAnalytics(out, rows)
	}

	view, err := calendar.Calendar(ctx, reportUser, services.Visibility{HideOld: *hideOld, HidePaid: *hidePaid})
	if err != nil {
		return err
	}
	return writeTable(out, sheets.CalendarTable(view))
}

func writeTable(out io.Writer, t sheets.Table) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Header, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func writeAnalytics(out io.Writer, rows []services.AnalyticsRow) error {
	t := sheets.Table{Header: []string{"Bill", "Paid", "Planned", "Current", "Average", "Change"}}
	for _, r := range rows {
		change := ""
		if r.HasChange {
			change = fmt.Sprintf("%s %s (%s%%)", r.ChangeType, core.FormatAmount(r.ChangeAmount), r.ChangePercentage.StringFixed(1))
		}
		t.Rows = append(t.Rows, []string{
			r.TemplateName,
			fmt.Sprintf("%s (%d)", core.FormatAmount(r.YTDPaid), r.PaidCount),
			fmt.Sprintf("%s (%d)", core.FormatAmount(r.YTDPlanned), r.PlannedCount),
			core.FormatAmount(r.CurrentAmount),
			core.FormatAmount(r.AveragePaidAmount),
			change,
		})
	}
	return writeTable(out, t)
}
