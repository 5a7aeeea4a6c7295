package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"paycal/internal/core"
	"paycal/internal/services"
)

type importResponse struct {
	Imported int `json:"imported"`
}

// handleExportBackup streams every document of the user as a backup file.
func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.Export(r.Context(), s.userID(r))
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	name := fmt.Sprintf("paycal-backup-%s.json", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := core.WriteBackup(w, b); err != nil {
		slog.ErrorContext(r.Context(), "Failed to write backup", "error", err)
	}
}

// handleImportBackup adds the uploaded backup to the user's ledger.
func (s *Server) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	b, err := core.ReadBackup(http.MaxBytesReader(w, r.Body, maxBackupBytes))
	if err != nil {
		ServiceError(r, fmt.Errorf("%w: %v", services.ErrInvalidInput, err)).Write(w)
		return
	}
	n, err := s.ledger.Import(r.Context(), s.userID(r), b)
	if err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NewJSONResponse().Body(importResponse{Imported: n}).Write(w)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAll(r.Context(), s.userID(r)); err != nil {
		ServiceError(r, err).Write(w)
		return
	}
	NoContent().Write(w)
}
