// Package worker pushes projected calendars to external spreadsheets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paycal/internal/amqp"
	"paycal/internal/services"
	"paycal/internal/sheets"
)

// CalendarViewer renders the projected calendar of a user.
type CalendarViewer interface {
	Calendar(ctx context.Context, userID string, vis services.Visibility) (services.CalendarView, error)
}

// ExportWorker writes a user's whole calendar, unfiltered, to a spreadsheet.
type ExportWorker struct {
	calendar CalendarViewer
	exporter sheets.CalendarExporter
	owner    string
}

// NewExportWorker exports through exporter. Template change events are
// followed only for owner, since every export replaces the same sheet; an
// empty owner follows every user.
func NewExportWorker(calendar CalendarViewer, exporter sheets.CalendarExporter, owner string) *ExportWorker {
	return &ExportWorker{calendar: calendar, exporter: exporter, owner: owner}
}

// Owns reports whether userID may write the sheet. Without an owner every
// user may.
func (w *ExportWorker) Owns(userID string) bool {
	return w.owner == "" || w.owner == userID
}

// ExportUser replaces the sheet with the calendar of userID and returns the
// written range.
func (w *ExportWorker) ExportUser(ctx context.Context, userID string) (string, error) {
	if w.exporter == nil {
		return "", errors.New("no calendar exporter configured")
	}
	view, err := w.calendar.Calendar(ctx, userID, services.Visibility{})
	if err != nil {
		return "", fmt.Errorf("calendar: %w", err)
	}
	ref, err := w.exporter.ExportCalendar(ctx, sheets.CalendarTable(view))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to export calendar",
			"user_id", userID,
			"rows", len(view.Rows),
			"error", err)
		return "", fmt.Errorf("export calendar: %w", err)
	}
	slog.InfoContext(ctx, "Calendar exported",
		"user_id", userID,
		"rows", len(view.Rows),
		"range", ref)
	return ref, nil
}

// HandleTemplateChanged re-exports the owner's calendar after one of their
// templates changed. Events for other users are acknowledged untouched.
func (w *ExportWorker) HandleTemplateChanged(ctx context.Context, msg *amqp.TemplateChangedMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if !w.Owns(msg.UserID) {
		slog.DebugContext(ctx, "Skipping export for non-owner",
			"user_id", msg.UserID,
			"template_id", msg.TemplateID)
		return nil
	}
	_, err := w.ExportUser(ctx, msg.UserID)
	return err
}

// StartupExport brings the sheet up to date when the worker starts, in case
// changes happened while it was down. Without an owner there is no single
// calendar to export and it does nothing.
func (w *ExportWorker) StartupExport(ctx context.Context) error {
	if w.owner == "" {
		slog.InfoContext(ctx, "No export owner configured, skipping startup export")
		return nil
	}
	_, err := w.ExportUser(ctx, w.owner)
	return err
}
