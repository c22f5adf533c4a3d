package app

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mixsim/domain/model"
	"mixsim/internal/engine"
	"mixsim/ports"
)

// StaticModelSource serves an already-constructed fitted model. Useful when
// the model is built in process or in tests.
type StaticModelSource struct {
	Model *model.FittedModel
}

// FittedModel implements ports.ModelSource.
func (s StaticModelSource) FittedModel(context.Context) (*model.FittedModel, error) {
	return s.Model, nil
}

// IntervalService is the primary entry point: it resolves the fitted model,
// runs the simulation engine, and optionally persists the run.
type IntervalService struct {
	engine *engine.Engine
	source ports.ModelSource
	repo   ports.IntervalRepository // optional
	log    zerolog.Logger
}

// IntervalRequest describes one interval computation.
type IntervalRequest struct {
	Frame   model.Frame
	Options engine.Options
	Persist bool
}

// IntervalResult is the outcome of one computation, tagged with a run id.
type IntervalResult struct {
	RunID     uuid.UUID                  `json:"run_id"`
	Seed      uint64                     `json:"seed"`
	Intervals []model.PredictionInterval `json:"intervals"`
	Elapsed   time.Duration              `json:"elapsed"`
}

// NewIntervalService creates an interval service. repo may be nil when
// persistence is not configured.
func NewIntervalService(eng *engine.Engine, source ports.ModelSource, repo ports.IntervalRepository, log zerolog.Logger) *IntervalService {
	return &IntervalService{engine: eng, source: source, repo: repo, log: log}
}

// ComputeIntervals runs the simulation for req and returns one interval per
// input row, in input order.
func (s *IntervalService) ComputeIntervals(ctx context.Context, req IntervalRequest) (*IntervalResult, error) {
	m, err := s.source.FittedModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving fitted model: %w", err)
	}

	runID := uuid.New()
	opts := req.Options
	// Fill the engine defaults up front so the persisted run and the log
	// record what actually ran.
	def := engine.DefaultOptions()
	if opts.Level == 0 {
		opts.Level = def.Level
	}
	if opts.NSims == 0 {
		opts.NSims = def.NSims
	}
	if opts.Logger == nil {
		runLog := s.log.With().Stringer("run_id", runID).Logger()
		opts.Logger = &runLog
	}
	// Resolve the seed here so the persisted run records it even when the
	// caller left it to chance.
	seed := rand.Uint64()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	opts.Seed = &seed

	start := time.Now()
	intervals, err := s.engine.Compute(ctx, m, req.Frame, opts)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if req.Persist && s.repo != nil {
		run := model.IntervalRun{
			RunID:     runID,
			CreatedAt: time.Now().UTC(),
			Family:    m.Family,
			Level:     opts.Level,
			NSims:     opts.NSims,
			Seed:      seed,
			Intervals: intervals,
		}
		if err := s.repo.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("persisting interval run %s: %w", runID, err)
		}
	}

	s.log.Info().
		Stringer("run_id", runID).
		Int("rows", len(intervals)).
		Int("n_sims", opts.NSims).
		Float64("level", opts.Level).
		Dur("elapsed", elapsed).
		Msg("prediction intervals computed")

	return &IntervalResult{
		RunID:     runID,
		Seed:      seed,
		Intervals: intervals,
		Elapsed:   elapsed,
	}, nil
}
