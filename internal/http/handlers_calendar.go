package http

import (
	"net/http"
	"strings"

	"paycal/internal/core"
	"paycal/internal/services"
)

// handleCalendar serves the projected calendar. hideOld and hidePaid
// override the user's stored preferences for this request only.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	prefs, err := s.prefs.Get(r.Context(), userID)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	query := r.URL.Query()
	vis := services.Visibility{
		HideOld:  parseBoolQuery(query, "hideOld", prefs.HideOldData),
		HidePaid: parseBoolQuery(query, "hidePaid", prefs.HidePaid),
	}

	view, err := s.calendar.Calendar(r.Context(), userID, vis)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	year, err := parseYear(r.URL.Query())
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	rows, err := s.calendar.Analytics(r.Context(), s.userID(r), year)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(rows).Write(w)
}

// handleChanges lists templates whose amount drifted from what was paid,
// minus the ones the user dismissed.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	year, err := parseYear(r.URL.Query())
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	rows, err := s.calendar.Analytics(r.Context(), userID, year)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	prefs, err := s.prefs.Get(r.Context(), userID)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	changed := services.ChangedBills(rows, prefs.Dismissed())
	if changed == nil {
		changed = []services.AnalyticsRow{}
	}
	NewJSONResponse().Body(changed).Write(w)
}

func (s *Server) handleDismissChange(w http.ResponseWriter, r *http.Request) {
	templateID := sanitizeInput(r.PathValue("templateId"))
	if templateID == "" {
		BadRequestError("missing template id").Write(w)
		return
	}
	prefs, err := s.prefs.Update(r.Context(), s.userID(r), func(p *core.Preferences) {
		p.Dismiss(templateID)
	})
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(prefs).Write(w)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.prefs.Get(r.Context(), s.userID(r))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(prefs).Write(w)
}

// handlePutPreferences replaces the stored preferences. Fields missing from
// the body take their default.
func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	prefs := core.DefaultPreferences()
	if err := decodeJSON(w, r, maxBodyBytes, &prefs); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	prefs.Theme = strings.TrimSpace(prefs.Theme)
	if err := s.prefs.Put(r.Context(), s.userID(r), prefs); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(prefs).Write(w)
}

type exportResponse struct {
	Range string `json:"range"`
}

// handleExportSheets overwrites the configured spreadsheet, so only its
// owner may trigger it.
func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		NotFoundError("sheets export is not configured").Write(w)
		return
	}
	userID := s.userID(r)
	if !s.exporter.Owns(userID) {
		ForbiddenError("sheets export belongs to another user").Write(w)
		return
	}
	ref, err := s.exporter.ExportUser(r.Context(), userID)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(exportResponse{Range: ref}).Write(w)
}
