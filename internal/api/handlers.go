package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/engine"
)

type extractionRequest struct {
	TargetDate      string `json:"target_date"`
	SaveAttachments bool   `json:"save_attachments"`
	MaxCandidates   int    `json:"max_candidates"`
}

type backfillRequest struct {
	extractionRequest
	Days int `json:"days"`
}

func (r extractionRequest) params() engine.RunParams {
	return engine.RunParams{
		TargetDate:      r.TargetDate,
		SaveAttachments: r.SaveAttachments,
		MaxCandidates:   r.MaxCandidates,
	}
}

func (s *Server) triggerExtraction(w http.ResponseWriter, r *http.Request) {
	var req extractionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !s.TryAcquireRun() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.ReleaseRun()

	summary, err := s.runner.Run(r.Context(), req.params())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.history.add(summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) triggerBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Days <= 0 {
		writeError(w, http.StatusBadRequest, "days must be positive")
		return
	}
	if !s.TryAcquireRun() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.ReleaseRun()

	summary, err := s.runner.Backfill(r.Context(), req.Days, req.params())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.history.add(summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.history.list()})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	summary, ok := s.history.byID(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not configured")
		return
	}
	counts, err := s.stats.CountByStatus(r.Context())
	if err != nil {
		s.logger.Warn("dashboard counts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	recent, err := s.stats.RecentRecords(r.Context(), 10)
	if err != nil {
		s.logger.Warn("dashboard recents failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_records": total,
		"by_status":     counts,
		"recent":        recent,
	})
}

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.scheduler.Enabled(),
		"spec":    s.scheduler.Spec(),
	})
}

func (s *Server) schedulerEnable(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	s.scheduler.Enable()
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
}

func (s *Server) schedulerDisable(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not configured")
		return
	}
	s.scheduler.Disable()
	writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
}

// decodeBody tolerates an empty body so triggers can run on defaults.
func decodeBody(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(out)
}
