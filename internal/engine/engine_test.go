package engine

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"mixsim/adapters/rng"
	"mixsim/domain/core"
	"mixsim/domain/model"
	"mixsim/ports"
)

func boolPtr(b bool) *bool     { return &b }
func seedPtr(s uint64) *uint64 { return &s }
func newTestEngine() *Engine   { return New(rng.NewPCGStreams()) }

// gaussianModel is a linear mixed model with two fixed effects and one
// grouping factor with five levels and a pooled conditional covariance.
func gaussianModel() *model.FittedModel {
	return &model.FittedModel{
		Family: model.FamilyGaussian,
		Fixed: model.FixedEffects{
			Terms: []string{model.InterceptTerm, "x"},
			Coef:  []float64{1, 2},
			Cov:   mat.NewSymDense(2, []float64{0.04, 0, 0, 0.01}),
		},
		Groups: []model.GroupingFactor{{
			Name:      "subject",
			Terms:     []string{model.InterceptTerm},
			Levels:    []string{"s1", "s2", "s3", "s4", "s5"},
			Modes:     mat.NewDense(5, 1, []float64{-0.5, -0.25, 0, 0.25, 0.5}),
			PooledCov: mat.NewSymDense(1, []float64{0.09}),
		}},
		ResidualVariance: 1,
	}
}

func binomialModel() *model.FittedModel {
	return &model.FittedModel{
		Family: model.FamilyBinomial,
		Fixed: model.FixedEffects{
			Terms: []string{model.InterceptTerm, "x"},
			Coef:  []float64{0, 1},
			Cov:   mat.NewSymDense(2, []float64{0.09, 0, 0, 0.04}),
		},
		Groups: []model.GroupingFactor{{
			Name:      "subject",
			Terms:     []string{model.InterceptTerm},
			Levels:    []string{"s1", "s2"},
			Modes:     mat.NewDense(2, 1, []float64{-0.3, 0.3}),
			PooledCov: mat.NewSymDense(1, []float64{0.04}),
		}},
	}
}

func subjectFrame() model.Frame {
	return model.Frame{
		{Covariates: map[string]float64{"x": -1}, Groups: map[string]string{"subject": "s1"}},
		{Covariates: map[string]float64{"x": 0}, Groups: map[string]string{"subject": "s3"}},
		{Covariates: map[string]float64{"x": 1}, Groups: map[string]string{"subject": "s5"}},
	}
}

func TestComputeBoundsOrdered(t *testing.T) {
	got, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), Options{
		Level: 0.95, NSims: 500, Seed: seedPtr(7),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, iv := range got {
		require.False(t, math.IsNaN(iv.Fit), "row %d fit is NaN", i)
		require.LessOrEqual(t, iv.Lower, iv.Fit, "row %d", i)
		require.LessOrEqual(t, iv.Fit, iv.Upper, "row %d", i)
	}
}

func TestSingleReplicateCollapsesInterval(t *testing.T) {
	got, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), Options{
		Level: 0.95, NSims: 1, Seed: seedPtr(11),
	})
	require.NoError(t, err)
	for i, iv := range got {
		require.Equal(t, iv.Fit, iv.Lower, "row %d", i)
		require.Equal(t, iv.Fit, iv.Upper, "row %d", i)
	}
}

func TestDeterministicForFixedSeed(t *testing.T) {
	opts := Options{Level: 0.95, NSims: 200, Seed: seedPtr(42)}
	a, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), opts)
	require.NoError(t, err)
	b, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), opts)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDeterministicAcrossWorkerCounts(t *testing.T) {
	base := Options{Level: 0.95, NSims: 200, Seed: seedPtr(42)}
	serial := base
	serial.Workers = 1
	parallel := base
	parallel.Workers = 8

	a, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), serial)
	require.NoError(t, err)
	b, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), parallel)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestHigherLevelWidensInterval(t *testing.T) {
	widths := make([]float64, 0, 3)
	for _, level := range []float64{0.80, 0.95, 0.99} {
		got, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), Options{
			Level: level, NSims: 1000, Seed: seedPtr(9),
		})
		require.NoError(t, err)
		total := 0.0
		for _, iv := range got {
			total += iv.Upper - iv.Lower
		}
		widths = append(widths, total)
	}
	require.LessOrEqual(t, widths[0], widths[1])
	require.LessOrEqual(t, widths[1], widths[2])
}

// An unseen grouping level must reproduce a pure fixed-effects prediction:
// with residual noise off, the draws for such a row depend only on the
// fixed-effect stream, which is drawn before any group stream.
func TestUnseenLevelFallsBackToFixedEffects(t *testing.T) {
	withGroups := gaussianModel()
	fixedOnly := gaussianModel()
	fixedOnly.Groups = nil

	rows := model.Frame{
		{Covariates: map[string]float64{"x": 0.5}, Groups: map[string]string{"subject": "never-seen"}},
	}
	bare := model.Frame{
		{Covariates: map[string]float64{"x": 0.5}},
	}
	opts := Options{Level: 0.9, NSims: 400, Seed: seedPtr(3), IncludeResidVar: boolPtr(false)}

	a, err := newTestEngine().Compute(context.Background(), withGroups, rows, opts)
	require.NoError(t, err)
	b, err := newTestEngine().Compute(context.Background(), fixedOnly, bare, opts)
	require.NoError(t, err)
	require.Equal(t, b, a)
}

// Known-group rows carry conditional-mode uncertainty, so their intervals are
// wider than the equivalent fixed-effects-only intervals in aggregate.
func TestRandomEffectDrawsWidenIntervals(t *testing.T) {
	withGroups := gaussianModel()
	fixedOnly := gaussianModel()
	fixedOnly.Groups = nil

	rows := subjectFrame()
	bare := make(model.Frame, len(rows))
	for i, r := range rows {
		bare[i] = model.ObservationRow{Covariates: r.Covariates}
	}
	opts := Options{Level: 0.95, NSims: 2000, Seed: seedPtr(17), IncludeResidVar: boolPtr(false)}

	a, err := newTestEngine().Compute(context.Background(), withGroups, rows, opts)
	require.NoError(t, err)
	b, err := newTestEngine().Compute(context.Background(), fixedOnly, bare, opts)
	require.NoError(t, err)

	widthA, widthB := 0.0, 0.0
	for i := range a {
		widthA += a[i].Upper - a[i].Lower
		widthB += b[i].Upper - b[i].Lower
	}
	require.Greater(t, widthA, widthB)
}

func TestScenarioGaussianMedianWithResidualNoise(t *testing.T) {
	frame := make(model.Frame, 0, 10)
	levels := []string{"s1", "s2", "s3", "s4", "s5"}
	for i := 0; i < 10; i++ {
		frame = append(frame, model.ObservationRow{
			Covariates: map[string]float64{"x": float64(i) / 5},
			Groups:     map[string]string{"subject": levels[i%5]},
		})
	}
	got, err := newTestEngine().Compute(context.Background(), gaussianModel(), frame, Options{
		Level: 0.95, NSims: 1000, Point: PointMedian, Seed: seedPtr(23), IncludeResidVar: boolPtr(true),
	})
	require.NoError(t, err)
	require.Len(t, got, len(frame))
	for i, iv := range got {
		require.False(t, math.IsNaN(iv.Fit) || math.IsInf(iv.Fit, 0), "row %d", i)
		require.Less(t, iv.Lower, iv.Upper, "row %d", i)
		require.LessOrEqual(t, iv.Lower, iv.Fit, "row %d", i)
		require.LessOrEqual(t, iv.Fit, iv.Upper, "row %d", i)
	}
}

func TestBinomialResponseScaleStaysInUnitInterval(t *testing.T) {
	frame := model.Frame{
		{Covariates: map[string]float64{"x": -4}, Groups: map[string]string{"subject": "s1"}},
		{Covariates: map[string]float64{"x": 0}, Groups: map[string]string{"subject": "s2"}},
		{Covariates: map[string]float64{"x": 4}},
	}
	got, err := newTestEngine().Compute(context.Background(), binomialModel(), frame, Options{
		Level: 0.95, NSims: 500, Scale: ScaleResponse, Seed: seedPtr(5),
	})
	require.NoError(t, err)
	for i, iv := range got {
		for _, v := range []float64{iv.Fit, iv.Lower, iv.Upper} {
			require.GreaterOrEqual(t, v, 0.0, "row %d", i)
			require.LessOrEqual(t, v, 1.0, "row %d", i)
		}
	}
}

// countingRNG counts stream requests so tests can prove validation happens
// before any simulation work.
type countingRNG struct {
	inner ports.RNGPort
	calls atomic.Int64
}

func (c *countingRNG) Stream(name string, seed uint64, replicate uint64) rand.Source {
	c.calls.Add(1)
	return c.inner.Stream(name, seed, replicate)
}

func TestResidualVarianceRejectedForBinomialBeforeSimulation(t *testing.T) {
	counter := &countingRNG{inner: rng.NewPCGStreams()}
	_, err := New(counter).Compute(context.Background(), binomialModel(), subjectFrame(), Options{
		Level: 0.95, NSims: 100, IncludeResidVar: boolPtr(true), Seed: seedPtr(1),
	})
	require.ErrorIs(t, err, core.ErrUnsupportedOption)
	require.Zero(t, counter.calls.Load())
}

func TestMissingCovariateFailsBeforeSimulation(t *testing.T) {
	counter := &countingRNG{inner: rng.NewPCGStreams()}
	frame := model.Frame{{Covariates: map[string]float64{"y": 1}}}
	_, err := New(counter).Compute(context.Background(), gaussianModel(), frame, Options{
		Level: 0.95, NSims: 100, Seed: seedPtr(1),
	})
	require.ErrorIs(t, err, core.ErrMissingCovariate)
	require.Zero(t, counter.calls.Load())
}

func TestDegenerateFixedCovarianceAborts(t *testing.T) {
	m := gaussianModel()
	// Eigenvalues 3 and -1: not positive definite.
	m.Fixed.Cov = mat.NewSymDense(2, []float64{1, 2, 2, 1})
	_, err := newTestEngine().Compute(context.Background(), m, subjectFrame(), Options{
		Level: 0.95, NSims: 100, Seed: seedPtr(1),
	})
	require.ErrorIs(t, err, core.ErrDegenerateCovariance)
}

func TestUnsupportedFamilyRejected(t *testing.T) {
	m := gaussianModel()
	m.Family = model.Family("poisson")
	_, err := newTestEngine().Compute(context.Background(), m, subjectFrame(), Options{NSims: 10})
	require.ErrorIs(t, err, core.ErrUnsupportedModelKind)
}

func TestEmptyFrameRejected(t *testing.T) {
	_, err := newTestEngine().Compute(context.Background(), gaussianModel(), nil, Options{NSims: 10})
	require.ErrorIs(t, err, core.ErrEmptyFrame)
}

func TestInvalidLevelRejected(t *testing.T) {
	for _, level := range []float64{-0.1, 1, 1.5} {
		_, err := newTestEngine().Compute(context.Background(), gaussianModel(), subjectFrame(), Options{
			Level: level, NSims: 10,
		})
		require.ErrorIs(t, err, core.ErrInvalidOption, "level %g", level)
	}
}

func TestCancelledContextAbortsSimulation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine().Compute(ctx, gaussianModel(), subjectFrame(), Options{
		Level: 0.95, NSims: 5000, Seed: seedPtr(1),
	})
	require.ErrorIs(t, err, context.Canceled)
}
