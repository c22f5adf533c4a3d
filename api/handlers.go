package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"mixsim/app"
	"mixsim/domain/model"
	"mixsim/internal/engine"
)

// intervalRequest is the wire form of one interval computation. Unset
// optional fields fall back to the service's configured defaults.
type intervalRequest struct {
	Rows            model.Frame `json:"rows"`
	Level           *float64    `json:"level,omitempty"`
	NSims           *int        `json:"n_sims,omitempty"`
	PointStatistic  string      `json:"point_statistic,omitempty"`
	OutputScale     string      `json:"output_scale,omitempty"`
	IncludeResidVar *bool       `json:"include_resid_var,omitempty"`
	Seed            *uint64     `json:"seed,omitempty"`
	Persist         bool        `json:"persist,omitempty"`
}

func (s *Server) handleIntervals(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	opts := engine.DefaultOptions()
	opts.Level = s.defaults.Level
	opts.NSims = s.defaults.NSims
	opts.Workers = s.defaults.Workers
	if req.Level != nil {
		opts.Level = *req.Level
	}
	if req.NSims != nil {
		opts.NSims = *req.NSims
	}
	if req.PointStatistic != "" {
		opts.Point = engine.PointStatistic(req.PointStatistic)
	}
	if req.OutputScale != "" {
		opts.Scale = engine.OutputScale(req.OutputScale)
	}
	opts.IncludeResidVar = req.IncludeResidVar
	opts.Seed = req.Seed

	result, err := s.service.ComputeIntervals(r.Context(), app.IntervalRequest{
		Frame:   req.Rows,
		Options: opts,
		Persist: req.Persist,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
