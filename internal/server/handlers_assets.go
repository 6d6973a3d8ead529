package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/catalyst/internal/types"
)

// AssetListResponse represents the assets produced by a run
type AssetListResponse struct {
	RunID  string        `json:"run_id"`
	Assets []types.Asset `json:"assets"`
	Count  int           `json:"count"`
}

// handleRunAssets lists the assets of a run, optionally filtered by ?type=
func (s *Server) handleRunAssets(w http.ResponseWriter, r *http.Request) {
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
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}

	assets, err := s.store.ListAssets(r.Context(), runID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if want := types.AssetType(r.URL.Query().Get("type")); want != "" {
		filtered := assets[:0]
		for _, a := range assets {
			if a.Type == want {
				filtered = append(filtered, a)
			}
		}
		assets = filtered
	}
	if assets == nil {
		assets = []types.Asset{}
	}
	s.jsonResponse(w, http.StatusOK, AssetListResponse{RunID: runID.String(), Assets: assets, Count: len(assets)})
}

// handleGetAsset returns one asset
func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	asset, err := s.store.GetAsset(r.Context(), assetID)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if asset == nil {
		s.errorResponse(w, http.StatusNotFound, "Asset not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, asset)
}

// handleAssetFeedback merges out-of-band performance metrics into an asset
func (s *Server) handleAssetFeedback(w http.ResponseWriter, r *http.Request) {
	assetID, ok := s.pathID(w, r, "id")
	if !ok {
		return
	}
	var req types.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	asset, err := s.orch.RecordFeedback(r.Context(), assetID, &req)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, asset)
}
