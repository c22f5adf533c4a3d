package engine

import (
	"fmt"
	"runtime"

	"github.com/rs/zerolog"

	"mixsim/domain/core"
	"mixsim/domain/model"
)

// PointStatistic selects the point estimate reported for each observation.
type PointStatistic string

const (
	PointMean   PointStatistic = "mean"
	PointMedian PointStatistic = "median"
)

// OutputScale selects the scale of the reported draws: the raw linear
// predictor, or the response scale (probability for binomial models).
type OutputScale string

const (
	ScaleLinearPredictor OutputScale = "linear"
	ScaleResponse        OutputScale = "response"
)

// Options configures one interval computation.
type Options struct {
	// Level is the interval confidence level, strictly in (0, 1).
	Level float64
	// NSims is the number of simulation replicates, at least 1.
	NSims int
	// Point selects mean or median as the reported point estimate.
	Point PointStatistic
	// Scale selects linear-predictor or response-scale output.
	Scale OutputScale
	// IncludeResidVar adds per-draw residual noise. Gaussian models only;
	// requesting it on another family is a configuration error. Nil means on
	// for gaussian models and not applicable otherwise.
	IncludeResidVar *bool
	// Seed makes the simulation reproducible. When nil a seed is drawn once
	// and logged.
	Seed *uint64
	// Workers bounds the simulation worker pool. Zero means GOMAXPROCS.
	Workers int
	// Logger receives fallback and timing events. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// DefaultOptions returns the engine defaults: 95% level, 1000 replicates,
// median point estimate, linear-predictor scale, residual noise included for
// gaussian models.
func DefaultOptions() Options {
	return Options{
		Level: 0.95,
		NSims: 1000,
		Point: PointMedian,
		Scale: ScaleLinearPredictor,
	}
}

func (o *Options) normalize() {
	if o.Level == 0 {
		o.Level = 0.95
	}
	if o.NSims == 0 {
		o.NSims = 1000
	}
	if o.Point == "" {
		o.Point = PointMedian
	}
	if o.Scale == "" {
		o.Scale = ScaleLinearPredictor
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
}

// validate checks option ranges and family compatibility. It runs before any
// random stream is opened so configuration errors never cost simulation work.
func (o Options) validate(family model.Family) error {
	if o.Level <= 0 || o.Level >= 1 {
		return core.NewInvalidOptionError("level", fmt.Sprintf("%g outside (0, 1)", o.Level))
	}
	if o.NSims < 1 {
		return core.NewInvalidOptionError("n_sims", fmt.Sprintf("%d < 1", o.NSims))
	}
	switch o.Point {
	case PointMean, PointMedian:
	default:
		return core.NewInvalidOptionError("point_statistic", fmt.Sprintf("unknown value %q", o.Point))
	}
	switch o.Scale {
	case ScaleLinearPredictor, ScaleResponse:
	default:
		return core.NewInvalidOptionError("output_scale", fmt.Sprintf("unknown value %q", o.Scale))
	}
	if o.IncludeResidVar != nil && *o.IncludeResidVar && family != model.FamilyGaussian {
		return core.NewUnsupportedOptionError("include_resid_var",
			"residual variance exists only for gaussian models")
	}
	return nil
}
