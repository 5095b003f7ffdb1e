package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mailmirror/internal/progress"
	syncer "mailmirror/internal/sync"
)

// StatsResponse represents replica statistics.
type StatsResponse struct {
	TotalItems    int64 `json:"total_items"`
	TotalContacts int64 `json:"total_contacts"`
	TotalSources  int64 `json:"total_sources"`
	DatabaseSize  int64 `json:"database_size_bytes"`
}

// SourceStatusResponse represents the sync status of one source.
type SourceStatusResponse struct {
	Source          string `json:"source"`
	Synced          bool   `json:"synced"`
	TotalItems      int64  `json:"total_items"`
	LastSyncAt      string `json:"last_sync_at,omitempty"`
	HasMoreBackfill bool   `json:"has_more_backfill"`
}

// SyncResponse represents the outcome of a sync run.
type SyncResponse struct {
	Source  string `json:"source"`
	Added   int64  `json:"added"`
	Deleted int64  `json:"deleted"`
	Errors  int64  `json:"errors"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// parseLimit reads the optional ?limit= query parameter. 0 means unbounded.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}

// handleStats returns replica statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalItems:    stats.ItemCount,
		TotalContacts: stats.ContactCount,
		TotalSources:  stats.SourceCount,
		DatabaseSize:  stats.DatabaseSize,
	})
}

// handleListSources returns the sync status of every known source.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.ListSources()
	if err != nil {
		s.logger.Error("failed to list sources", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sources")
		return
	}

	resp := make([]SourceStatusResponse, 0, len(states))
	for _, st := range states {
		resp = append(resp, SourceStatusResponse{
			Source:          st.Source,
			Synced:          true,
			TotalItems:      st.TotalItems,
			LastSyncAt:      formatTime(st.LastSyncAt),
			HasMoreBackfill: st.BackfillCursor != "",
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns the sync status for one source.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	status, err := s.engine.Status(source)
	if err != nil {
		s.logger.Error("failed to get status", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve status")
		return
	}

	writeJSON(w, http.StatusOK, SourceStatusResponse{
		Source:          source,
		Synced:          status.Synced,
		TotalItems:      status.TotalItems,
		LastSyncAt:      formatTime(status.LastSyncAt),
		HasMoreBackfill: status.HasMoreBackfill,
	})
}

// handleSync runs a sync for the source and reports the outcome.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.runSync(w, r, s.engine.Sync)
}

// handleSyncMore continues the source's historical backfill.
func (s *Server) handleSyncMore(w http.ResponseWriter, r *http.Request) {
	s.runSync(w, r, s.engine.SyncMore)
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, source string, limit int, rep progress.Reporter) (*syncer.Result, error)) {
	source := chi.URLParam(r, "source")
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}

	res, err := run(r.Context(), source, limit, nil)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", "A sync for this source is already running")
		return
	case err != nil:
		s.logger.Error("sync failed", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, "sync_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Source:  source,
		Added:   res.Added,
		Deleted: res.Deleted,
		Errors:  res.Errors,
	})
}

// handleClear removes all local data for the source.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	err := s.engine.Clear(source)
	switch {
	case errors.Is(err, syncer.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "sync_in_progress", "A sync for this source is already running")
		return
	case err != nil:
		s.logger.Error("clear failed", "source", source, "error", err)
		writeError(w, http.StatusInternalServerError, "clear_failed", "Failed to clear source data")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
