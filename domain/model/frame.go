package model

// ObservationRow is one row of prediction input: covariate values by design
// column name and grouping-factor membership by factor name. Group membership
// is optional; absent or unseen levels fall back to fixed-effects-only
// prediction.
type ObservationRow struct {
	Covariates map[string]float64 `json:"covariates"`
	Groups     map[string]string  `json:"groups,omitempty"`
}

// Frame is an ordered collection of observation rows. Output intervals follow
// frame order.
type Frame []ObservationRow

// PredictionInterval is the per-observation result: a point estimate and the
// bounds of the simulated interval at the requested confidence level.
type PredictionInterval struct {
	Fit   float64 `json:"fit"`
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
}
