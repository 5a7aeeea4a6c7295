package http

import (
	"fmt"
	"net/http"

	"paycal/internal/core"
	"paycal/internal/services"
)

type accountRequest struct {
	Name string `json:"name"`
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.Accounts(r.Context(), s.userID(r))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if accounts == nil {
		accounts = []core.Account{}
	}
	NewJSONResponse().Body(accounts).Write(w)
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	acc, err := s.ledger.AddAccount(r.Context(), s.userID(r), sanitizeInput(req.Name))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/accounts/"+acc.ID).
		Body(acc).
		Write(w)
}

func (s *Server) handleRenameAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	acc, err := s.ledger.RenameAccount(r.Context(), s.userID(r), r.PathValue("id"), sanitizeInput(req.Name))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(acc).Write(w)
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.RemoveAccount(r.Context(), s.userID(r), r.PathValue("id")); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleReorderAccounts(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	accounts, err := s.ledger.ReorderAccounts(r.Context(), s.userID(r), req.IDs)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(accounts).Write(w)
}

// decodeEntry reads an entry body and cleans its free-text fields.
func decodeEntry(w http.ResponseWriter, r *http.Request) (core.Entry, error) {
	var e core.Entry
	if err := decodeJSON(w, r, maxBodyBytes, &e); err != nil {
		return core.Entry{}, err
	}
	e.Name = sanitizeInput(e.Name)
	e.Month = sanitizeInput(e.Month)
	return e, nil
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	e, err := decodeEntry(w, r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	if e.TemplateID != "" {
		ServiceError(r, fmt.Errorf("%w: manual entries cannot link a template", services.ErrInvalidInput)).Write(w)
		return
	}
	created, err := s.ledger.AddEntry(r.Context(), s.userID(r), e)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(created).Write(w)
}

// handleUpdateEntry edits an entry. The id in the path wins over the body.
func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	e, err := decodeEntry(w, r)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	e.ID = r.PathValue("id")
	updated, err := s.ledger.UpdateEntry(r.Context(), s.userID(r), e)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(updated).Write(w)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteEntry(r.Context(), s.userID(r), r.PathValue("id")); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleTogglePaid(w http.ResponseWriter, r *http.Request) {
	e, err := s.ledger.TogglePaid(r.Context(), s.userID(r), r.PathValue("id"))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}
