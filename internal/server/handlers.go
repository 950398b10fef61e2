// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/internal/fetch"
	"github.com/pdiddy/paper-extractor/internal/store"
	"github.com/pdiddy/paper-extractor/pkg/types"
)

const maxRequestBytes = 1 << 20

// noteFromStore marks outcomes served from the store under skip_existing.
const noteFromStore = "retrieved from store"

type extractRequest struct {
	PaperIDs     []string `json:"paper_ids"`
	SkipExisting bool     `json:"skip_existing"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PaperIDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "paper_ids must not be empty")
		return
	}

	ctx := r.Context()
	outcomes := make([]types.Outcome, len(req.PaperIDs))
	var pending []string
	var pendingIdx []int
	for i, id := range req.PaperIDs {
		if req.SkipExisting {
			if rec, err := s.lookupExisting(r, id); err == nil {
				outcomes[i] = types.Outcome{
					Identifier: id,
					PaperID:    rec.ID,
					Status:     types.OutcomeSuccess,
					Note:       noteFromStore,
					Figures:    len(rec.Figures),
					Entities:   rec.EntityCount(),
				}
				continue
			}
		}
		pending = append(pending, id)
		pendingIdx = append(pendingIdx, i)
	}

	summary := s.extractor.ExtractBatch(ctx, pending)
	for j, o := range summary.Outcomes {
		outcomes[pendingIdx[j]] = o
	}
	summary.Outcomes = outcomes
	summary.Tally()

	s.respondJSON(w, http.StatusOK, summary)
}

// lookupExisting returns the stored record for a canonical identifier.
func (s *Server) lookupExisting(r *http.Request, id string) (*types.PaperRecord, error) {
	id = strings.TrimSpace(id)
	if !fetch.IsCanonical(id) {
		return nil, types.ErrInvalidIdentifier
	}
	return s.store.Get(r.Context(), id)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := s.paperID(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	s.exportCSV(w, r, "papers.csv")
}

func (s *Server) handleExportOneCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := s.paperID(w, r)
	if !ok {
		return
	}
	s.exportCSV(w, r, id+".csv", id)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request, filename string, ids ...string) {
	// Records are collected before writing so a lookup failure can still
	// produce an error status.
	records, err := store.Collect(r.Context(), s.store, ids...)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := store.WriteCSV(w, records); err != nil {
		s.logger.Error("writing CSV export", zap.Error(err))
	}
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	records, err := store.Collect(r.Context(), s.store)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="papers.xlsx"`)
	if err := store.WriteXLSX(w, records); err != nil {
		s.logger.Error("writing XLSX export", zap.Error(err))
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// paperID reads and validates the {id} path parameter.
func (s *Server) paperID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if !fetch.IsCanonical(id) {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid paper id %q", id))
		return "", false
	}
	return id, true
}

// statusFor maps an error to an HTTP status by its kind.
func statusFor(err error) int {
	switch types.ErrorKind(err) {
	case "invalid_identifier":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "transient_fetch":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	msg := err.Error()
	if errors.Is(err, types.ErrStoreFailure) {
		msg = "store failure"
	}
	s.respondError(w, status, msg)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encoding response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
