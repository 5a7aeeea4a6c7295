package http

import (
	"net/http"

	"paycal/internal/core"
)

func (s *Server) handleListBillTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.ledger.BillTemplates(r.Context(), s.userID(r))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if templates == nil {
		templates = []core.BillTemplate{}
	}
	NewJSONResponse().Body(templates).Write(w)
}

// handleSaveBillTemplate creates a template on POST and replaces the one
// named by the path on PUT. A POST body id is ignored.
func (s *Server) handleSaveBillTemplate(w http.ResponseWriter, r *http.Request) {
	var t core.BillTemplate
	if err := decodeJSON(w, r, maxBodyBytes, &t); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	t.ID = r.PathValue("id")
	t.Name = sanitizeInput(t.Name)

	saved, err := s.ledger.SaveBillTemplate(r.Context(), s.userID(r), t)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Body(saved).Write(w)
}

func (s *Server) handleDeleteBillTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteBillTemplate(r.Context(), s.userID(r), r.PathValue("id")); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleListPaydayTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.ledger.PaydayTemplates(r.Context(), s.userID(r))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if templates == nil {
		templates = []core.PaydayTemplate{}
	}
	NewJSONResponse().Body(templates).Write(w)
}

func (s *Server) handleSavePaydayTemplate(w http.ResponseWriter, r *http.Request) {
	var t core.PaydayTemplate
	if err := decodeJSON(w, r, maxBodyBytes, &t); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	t.ID = r.PathValue("id")
	t.Name = sanitizeInput(t.Name)

	saved, err := s.ledger.SavePaydayTemplate(r.Context(), s.userID(r), t)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	NewJSONResponse().Status(status).Body(saved).Write(w)
}

func (s *Server) handleDeletePaydayTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeletePaydayTemplate(r.Context(), s.userID(r), r.PathValue("id")); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NoContent().Write(w)
}
