package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/okian/elorank/internal/adapters/repository"
	service "github.com/okian/elorank/internal/app"
	"github.com/okian/elorank/internal/domain/convergence"
	"github.com/okian/elorank/internal/domain/model"
	"github.com/okian/elorank/internal/domain/types"
	"github.com/okian/elorank/pkg/logger"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// itemsRequest mirrors the OpenAPI schema for PUT /collections/{id}/items.
type itemsRequest struct {
	Items []string `json:"items" validate:"required,max=10000,dive,max=256"`
}

type itemsResponse struct {
	Collection string   `json:"collection"`
	Items      []string `json:"items"`
	Count      int      `json:"count"`
}

// judgmentRequest mirrors the OpenAPI schema for POST /collections/{id}/judgments.
type judgmentRequest struct {
	JudgmentID string `json:"judgment_id" validate:"omitempty,max=128"`
	Baseline   string `json:"baseline" validate:"required,max=256"`
	Candidate  string `json:"candidate" validate:"required,max=256"`
	Outcome    string `json:"outcome" validate:"required"`
}

type judgmentResponse struct {
	Status     string        `json:"status"`
	JudgmentID string        `json:"judgment_id"`
	Duplicate  bool          `json:"duplicate"`
	Baseline   *model.Record `json:"baseline,omitempty"`
	Candidate  *model.Record `json:"candidate,omitempty"`
	K          float64       `json:"k,omitempty"`
}

type convergenceResponse struct {
	Collection  string  `json:"collection"`
	Convergence float64 `json:"convergence"`
	Percent     int     `json:"percent"`
	Items       int     `json:"items"`
}

type standingsResponse struct {
	Collection string           `json:"collection"`
	Standings  []types.Standing `json:"standings"`
}

type exportResponse struct {
	repository.ExportDocument
	Path string `json:"path"`
}

// collectionID reads and checks the {id} path parameter.
func (s *Server) collectionID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if err := s.validate.Var(id, "required,max=128"); err != nil {
		return "", fmt.Errorf("%w: collection id: %w", ErrBadRequest, err)
	}
	return id, nil
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

// handlePutItems handles PUT /collections/{id}/items.
func (s *Server) handlePutItems(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req itemsRequest
	if err := s.decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if _, err := s.deps.RegisterItems(r.Context(), id, req.Items); err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeItems(w, id)
}

// handleGetItems handles GET /collections/{id}/items.
func (s *Server) handleGetItems(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.writeItems(w, id)
}

func (s *Server) writeItems(w http.ResponseWriter, id string) {
	items, err := s.deps.Items(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResponse{Collection: id, Items: items, Count: len(items)})
}

// handleGetRecord handles GET /collections/{id}/items/{item}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rec, err := s.deps.Record(r.Context(), id, chi.URLParam(r, "item"))
	if err != nil {
		if errors.Is(err, service.ErrUnknownItem) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleGetMatchup handles GET /collections/{id}/matchup. It answers 204
// when the pool has fewer than two items.
func (s *Server) handleGetMatchup(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	m, ok, err := s.deps.NextMatchup(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handlePostJudgment handles POST /collections/{id}/judgments.
func (s *Server) handlePostJudgment(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req judgmentRequest
	if err := s.decode(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	outcome, err := model.ParseOutcome(req.Outcome)
	if err != nil {
		writeServiceError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	res, err := s.deps.Judge(r.Context(), model.Judgment{
		ID:         req.JudgmentID,
		Collection: id,
		Baseline:   req.Baseline,
		Candidate:  req.Candidate,
		Outcome:    outcome,
	})
	if errors.Is(err, service.ErrDuplicateJudgment) {
		writeJSON(w, http.StatusOK, judgmentResponse{Status: "duplicate", JudgmentID: res.JudgmentID, Duplicate: true})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, judgmentResponse{
		Status:     "applied",
		JudgmentID: res.JudgmentID,
		Baseline:   &res.Result.Baseline,
		Candidate:  &res.Result.Candidate,
		K:          res.Result.K,
	})
}

// handleGetConvergence handles GET /collections/{id}/convergence.
func (s *Server) handleGetConvergence(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	c, err := s.deps.Convergence(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := s.deps.Items(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convergenceResponse{
		Collection:  id,
		Convergence: c,
		Percent:     convergence.Percent(c),
		Items:       len(items),
	})
}

// handleGetStandings handles GET /collections/{id}/standings?limit=N. A
// missing limit returns up to the configured maximum.
func (s *Server) handleGetStandings(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	limit := s.maxStandings
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest))
			return
		}
		if n > s.maxStandings {
			writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%w: %d", ErrLimitExceeded, s.maxStandings))
			return
		}
		limit = n
	}
	st, err := s.deps.Standings(r.Context(), id, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standingsResponse{Collection: id, Standings: st})
}

// exportFile names the export of a collection. Escaping keeps ids with
// separators inside the export directory.
func (s *Server) exportFile(collection string) string {
	return filepath.Join(s.exportDir, url.PathEscape(collection)+".json")
}

// handlePostExport handles POST /collections/{id}/export.
func (s *Server) handlePostExport(w http.ResponseWriter, r *http.Request) {
	id, err := s.collectionID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	path := s.exportFile(id)
	doc, err := s.deps.Export(r.Context(), id, path)
	if err != nil {
		s.logger.Error(r.Context(), "export failed", logger.String("collection", id), logger.Error(err))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{ExportDocument: doc, Path: path})
}
