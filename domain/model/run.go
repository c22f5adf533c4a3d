package model

import (
	"time"

	"github.com/google/uuid"
)

// IntervalRun records one completed interval computation for persistence and
// audit: which model family, which settings, and the per-row results.
type IntervalRun struct {
	RunID     uuid.UUID            `json:"run_id"`
	CreatedAt time.Time            `json:"created_at"`
	Family    Family               `json:"family"`
	Level     float64              `json:"level"`
	NSims     int                  `json:"n_sims"`
	Seed      uint64               `json:"seed"`
	Intervals []PredictionInterval `json:"intervals"`
}
