package server

import (
	"net/http"

	"github.com/jonathan/catalyst/internal/pipeline/steps"
	"github.com/jonathan/catalyst/internal/types"
)

// RunStepsListResponse represents the list of all step records for a run
type RunStepsListResponse struct {
	RunID     string             `json:"run_id"`
	Status    types.RunStatus    `json:"status"`
	Steps     []types.StepRecord `json:"steps"`
	Summary   RunStepsSummary    `json:"summary"`
	Available []types.StepType   `json:"available"`
	Blocked   []types.StepType   `json:"blocked"`
}

// RunStepsSummary counts the latest record of each step type by status
type RunStepsSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	NotRun    int `json:"not_run"`
}

// StepStatusResponse is the latest record of one step type plus its earlier attempts
type StepStatusResponse struct {
	RunID    string             `json:"run_id"`
	Step     types.StepType     `json:"step"`
	Category string             `json:"category"`
	Fatal    bool               `json:"fatal"`
	Latest   *types.StepRecord  `json:"latest,omitempty"`
	Attempts []types.StepRecord `json:"attempts"`
}

// handleListRunSteps returns every step record for a run with availability
func (s *Server) handleListRunSteps(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	status, err := s.orch.Status(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	pipe := s.orch.Pipeline()
	latest := steps.LatestRecords(status.Steps)
	summary := RunStepsSummary{Total: pipe.Len()}
	for _, rec := range latest {
		switch rec.Status {
		case types.StepStatusCompleted:
			summary.Completed++
		case types.StepStatusRunning:
			summary.Running++
		case types.StepStatusPending:
			summary.Pending++
		case types.StepStatusFailed:
			summary.Failed++
		}
	}
	summary.NotRun = summary.Total - len(latest)

	s.jsonResponse(w, http.StatusOK, RunStepsListResponse{
		RunID:     runID.String(),
		Status:    status.Run.Status,
		Steps:     status.Steps,
		Summary:   summary,
		Available: status.Available,
		Blocked:   status.Blocked,
	})
}

// handleGetStepStatus returns the attempts of a single step type
func (s *Server) handleGetStepStatus(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	st, ok := s.pathStep(w, r)
	if !ok {
		return
	}
	def, _ := s.orch.Pipeline().Definition(st)

	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}
	attempts, err := s.store.ListStepRecords(r.Context(), runID, &types.StepRecordFilters{Step: &st})
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if attempts == nil {
		attempts = []types.StepRecord{}
	}

	resp := StepStatusResponse{
		RunID:    runID.String(),
		Step:     st,
		Category: def.Category,
		Fatal:    s.orch.Pipeline().IsFatal(st),
		Attempts: attempts,
	}
	if rec, ok := steps.LatestRecords(attempts)[st]; ok {
		resp.Latest = &rec
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleRetryStep re-runs one failed step as a new attempt and settles the run
func (s *Server) handleRetryStep(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	st, ok := s.pathStep(w, r)
	if !ok {
		return
	}

	rec, err := s.orch.RetryStep(r.Context(), runID, st, nil)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	resp := map[string]any{"record": rec}
	if run != nil {
		resp["run_status"] = run.Status
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) pathStep(w http.ResponseWriter, r *http.Request) (types.StepType, bool) {
	st, err := types.ParseStepType(r.PathValue("step"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	if _, ok := s.orch.Pipeline().Definition(st); !ok {
		s.errorResponse(w, http.StatusNotFound, "step "+string(st)+" is not part of this pipeline")
		return "", false
	}
	return st, true
}
