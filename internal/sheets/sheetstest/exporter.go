// Package sheetstest provides an in-memory CalendarExporter for tests of
// code that exports calendars.
package sheetstest

import (
	"context"
	"fmt"
	"sync"

	ports "paycal/internal/sheets"
)

// Exporter records every exported table instead of writing a spreadsheet.
type Exporter struct {
	mu      sync.Mutex
	exports []ports.Table
}

var _ ports.CalendarExporter = (*Exporter)(nil)

func New() *Exporter { return &Exporter{} }

// ExportCalendar stores t and returns a synthetic range reference.
func (e *Exporter) ExportCalendar(_ context.Context, t ports.Table) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports = append(e.exports, t)
	return fmt.Sprintf("mem:%d!A1:%d", len(e.exports), len(t.Rows)+1), nil
}

// Last returns the most recent export.
func (e *Exporter) Last() (ports.Table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.exports) == 0 {
		return ports.Table{}, false
	}
	return e.exports[len(e.exports)-1], true
}

// Count returns how many exports were made.
func (e *Exporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.exports)
}
