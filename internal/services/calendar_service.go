package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"paycal/internal/cache"
	"paycal/internal/core"
	"paycal/internal/metrics"
)

// SnapshotReader is the read side the calendar needs from the ledger.
type SnapshotReader interface {
	Snapshot(ctx context.Context, userID string) (core.Snapshot, error)
}

// CalendarRow is an entry joined with its derived balances for display.
type CalendarRow struct {
	core.Entry
	Period             int         `json:"period"`
	CalculatedBalances core.Totals `json:"calculatedBalances,omitempty"`
	TotalOwed          core.Totals `json:"totalOwed,omitempty"`
}

// CalendarView is the visible, projected calendar of one user.
type CalendarView struct {
	Accounts   []core.Account `json:"accounts"`
	Rows       []CalendarRow  `json:"rows"`
	Periods    []Period       `json:"periods"`
	TodayIndex int            `json:"todayIndex"`
	HideOld    bool           `json:"hideOld"`
	HidePaid   bool           `json:"hidePaid"`
	Total      int            `json:"total"`
}

// CalendarService projects ledgers on demand. Projections are cached by
// user and ledger content, so unchanged ledgers skip sequencing and
// projection entirely and concurrent requests for the same ledger share
// one computation.
type CalendarService struct {
	reader    SnapshotReader
	projector Projector
	cache     cache.Cache[Projection]
	group     singleflight.Group
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewCalendarService wires a calendar over reader. A nil cache disables
// caching.
func NewCalendarService(reader SnapshotReader, c cache.Cache[Projection], m *metrics.Metrics) *CalendarService {
	return &CalendarService{
		reader:    reader,
		projector: NewProjector(),
		cache:     c,
		metrics:   m,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for visibility and analytics.
func (s *CalendarService) SetClock(now func() time.Time) {
	s.now = now
}

// Invalidate drops every cached projection of userID.
func (s *CalendarService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeletePrefix(userID + ":"); n > 0 {
		slog.Debug("Projection cache invalidated", "user_id", userID, "removed", n)
	}
}

// Project sequences and projects the whole ledger of userID.
func (s *CalendarService) Project(ctx context.Context, userID string) (Projection, core.Snapshot, error) {
	snap, err := s.reader.Snapshot(ctx, userID)
	if err != nil {
		return Projection{}, core.Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	core.SortAccounts(snap.Accounts)

	key, err := fingerprint(userID, snap)
	if err != nil {
		return Projection{}, core.Snapshot{}, err
	}
	if s.cache != nil {
		if p, ok := s.cache.Get(key); ok {
			s.metrics.Projection(true, 0)
			return p, snap, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		start := time.Now()
		p := s.projector.Project(Sequence(snap.Entries), snap.Accounts)
		s.metrics.Projection(false, time.Since(start))
		if s.cache != nil {
			s.cache.Set(key, p)
		}
		return p, nil
	})
	if err != nil {
		return Projection{}, core.Snapshot{}, err
	}
	return v.(Projection), snap, nil
}

// Calendar returns the projected calendar filtered by vis, with the index
// of the first row dated today or later.
func (s *CalendarService) Calendar(ctx context.Context, userID string, vis Visibility) (CalendarView, error) {
	proj, snap, err := s.Project(ctx, userID)
	if err != nil {
		return CalendarView{}, err
	}
	now := s.now()
	rows := vis.Apply(proj.Rows, now)

	view := CalendarView{
		Accounts:   snap.Accounts,
		Rows:       make([]CalendarRow, len(rows)),
		Periods:    proj.Periods,
		TodayIndex: TodayIndex(rows, now),
		HideOld:    vis.HideOld,
		HidePaid:   vis.HidePaid,
		Total:      len(proj.Rows),
	}
	for i, r := range rows {
		cr := CalendarRow{Entry: r.Entry, Period: r.Period}
		if a, ok := proj.Annotation(r.Entry.ID); ok {
			cr.CalculatedBalances = a.CalculatedBalances
			cr.TotalOwed = a.TotalOwed
		}
		view.Rows[i] = cr
	}
	return view, nil
}

// Analytics compares every bill template of userID with what was paid for
// it during year. A zero year means the current one.
func (s *CalendarService) Analytics(ctx context.Context, userID string, year int) ([]AnalyticsRow, error) {
	if year == 0 {
		year = s.now().Year()
	}
	snap, err := s.reader.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return AnalyzeBills(snap.Templates, snap.Entries, year), nil
}

// fingerprint keys a projection by user and by the exact entries and
// accounts it was computed from.
func fingerprint(userID string, snap core.Snapshot) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	if err := enc.Encode(snap.Entries); err != nil {
		return "", fmt.Errorf("fingerprint entries: %w", err)
	}
	if err := enc.Encode(snap.Accounts); err != nil {
		return "", fmt.Errorf("fingerprint accounts: %w", err)
	}
	return userID + ":" + hex.EncodeToString(h.Sum(nil)), nil
}
