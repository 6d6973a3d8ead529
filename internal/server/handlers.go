package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/catalyst/internal/pipeline"
	"github.com/jonathan/catalyst/internal/types"
)

// maxRunListLimit caps GET /runs page size
const maxRunListLimit = 200

// RunResponse represents the response for starting or resuming a run
type RunResponse struct {
	RunID  string          `json:"run_id"`
	Status types.RunStatus `json:"status"`
}

// RunListResponse represents the response for GET /runs
type RunListResponse struct {
	Runs  []types.Run `json:"runs"`
	Count int         `json:"count"`
}

// handleCreateRun persists a run and drives the pipeline in the background
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.startRun(w, r)
	if !ok {
		return
	}

	runID := run.ID
	s.background(func(ctx context.Context) {
		if _, err := s.orch.RunPipeline(ctx, runID, nil); err != nil {
			s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("pipeline run failed")
		}
	})

	s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: runID.String(), Status: run.Status})
}

// handleRunStream starts a run and streams progress via SSE until it settles
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Headers are deferred until the request is accepted, so validation
	// errors still come back as plain JSON.
	run, ok := s.startRun(w, r)
	if !ok {
		return
	}
	sse.Start()

	s.logger.Info().Str("run_id", run.ID.String()).Msg("starting streaming pipeline run")
	// The run continues if the client disconnects; only the stream stops.
	disconnected := r.Context().Done()
	result, err := s.orch.RunPipeline(context.WithoutCancel(r.Context()), run.ID, func(event pipeline.ProgressEvent) {
		select {
		case <-disconnected:
			return
		default:
		}
		if err := sse.WriteEvent("step", event); err != nil {
			s.logger.Debug().Err(err).Msg("failed to write SSE event")
		}
	})
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID.String()).Msg("pipeline run failed")
		sse.WriteError(err.Error())
		return
	}
	sse.WriteComplete(result.ID.String(), string(result.Status))
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) (*types.Run, bool) {
	var req types.CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return nil, false
	}
	run, err := s.orch.StartRun(r.Context(), &req)
	if err != nil {
		s.errorFrom(w, err)
		return nil, false
	}
	return run, true
}

// handleListRuns lists runs, optionally filtered by status and owner
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filters := &types.RunFilters{Limit: 50}
	q := r.URL.Query()

	if status := q.Get("status"); status != "" {
		st := types.RunStatus(status)
		switch st {
		case types.RunStatusCreated, types.RunStatusProcessing, types.RunStatusCompleted, types.RunStatusFailed:
			filters.Status = &st
		default:
			s.errorFrom(w, &ErrValidation{Field: "status", Message: "unknown status " + status})
			return
		}
	}
	if owner := q.Get("owner_id"); owner != "" {
		id, err := uuid.Parse(owner)
		if err != nil {
			s.errorFrom(w, &ErrValidation{Field: "owner_id", Message: "must be a UUID"})
			return
		}
		filters.OwnerID = &id
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			s.errorFrom(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		filters.Limit = min(n, maxRunListLimit)
	}

	runs, err := s.store.ListRuns(r.Context(), filters)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	s.jsonResponse(w, http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

// handleGetRun returns a run with its step records and step availability
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	status, err := s.orch.Status(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleDeleteRun deletes a run and everything it produced
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.orch.DeleteRun(r.Context(), runID); err != nil {
		s.errorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResumeRun re-enters a failed run in the background
func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if run == nil {
		s.errorFrom(w, pipeline.ErrRunNotFound)
		return
	}
	if run.Status != types.RunStatusFailed {
		s.errorResponse(w, http.StatusConflict, "only failed runs can be resumed, run is "+string(run.Status))
		return
	}
	if s.orch.IsActive(runID) {
		s.errorFrom(w, pipeline.ErrRunBusy)
		return
	}

	s.background(func(ctx context.Context) {
		if _, err := s.orch.ResumeRun(ctx, runID, nil); err != nil {
			s.logger.Error().Err(err).Str("run_id", runID.String()).Msg("resume failed")
		}
	})
	s.jsonResponse(w, http.StatusAccepted, RunResponse{RunID: runID.String(), Status: types.RunStatusProcessing})
}

// handleCancelRun requests cooperative cancellation of an active run
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	if !s.orch.Cancel(runID) {
		s.errorResponse(w, http.StatusConflict, "run is not active")
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"run_id": runID.String(), "status": "cancelling"})
}

// pathID parses a UUID path parameter, writing a 400 when it is malformed
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid "+name+" format")
		return uuid.Nil, false
	}
	return id, true
}
