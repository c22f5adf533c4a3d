package engine

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"mixsim/domain/core"
	"mixsim/domain/model"
	"mixsim/ports"
)

// replicateStream names the RNG stream family used for simulation replicates.
const replicateStream = "replicate"

// Engine computes simulation-based prediction intervals for fitted mixed
// models. It draws joint fixed-effect and conditional-mode replicates,
// assembles per-row linear predictors, optionally adds residual noise or
// applies the inverse link, and summarizes the draws into intervals.
//
// The engine holds no per-call state; one Engine serves concurrent calls.
type Engine struct {
	rng ports.RNGPort
}

// New creates an engine drawing randomness through the given port.
func New(rng ports.RNGPort) *Engine {
	return &Engine{rng: rng}
}

// Compute runs the full simulation for every row of frame and returns one
// interval per row, in frame order. All configuration and input validation
// happens before the first random draw; numeric failures abort the whole call
// rather than returning partial output.
func (e *Engine) Compute(ctx context.Context, m *model.FittedModel, frame model.Frame, opts Options) ([]model.PredictionInterval, error) {
	opts.normalize()
	log := opts.Logger

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := opts.validate(m.Family); err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, core.ErrEmptyFrame
	}

	cf, err := compileFrame(m, frame, log)
	if err != nil {
		return nil, err
	}
	sampler, err := newCoefficientSampler(m)
	if err != nil {
		return nil, err
	}

	seed := rand.Uint64()
	if opts.Seed != nil {
		seed = *opts.Seed
	} else {
		log.Info().Uint64("seed", seed).Msg("no seed supplied, generated one")
	}

	start := time.Now()
	n := len(cf.rows)
	draws := mat.NewDense(n, opts.NSims, nil)
	addNoise := m.Family == model.FamilyGaussian &&
		(opts.IncludeResidVar == nil || *opts.IncludeResidVar)
	residSD := math.Sqrt(m.ResidualVariance)
	xform := responseTransform(m.Family, opts.Scale)

	// Replicates partition across workers in contiguous chunks. Each cell of
	// the draw matrix is written exactly once, and every replicate owns its
	// own seeded stream, so results are identical for any worker count.
	g, gctx := errgroup.WithContext(ctx)
	workers := min(opts.Workers, opts.NSims)
	chunk := (opts.NSims + workers - 1) / workers
	for lo := 0; lo < opts.NSims; lo += chunk {
		lo, hi := lo, min(lo+chunk, opts.NSims)
		g.Go(func() error {
			d := sampler.newDraw()
			for rep := lo; rep < hi; rep++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				src := e.rng.Stream(replicateStream, seed, uint64(rep))
				sampler.draw(d, src)
				noise := distuv.Normal{Mu: 0, Sigma: residSD, Src: src}
				for i := range cf.rows {
					v := cf.rows[i].eta(d)
					if addNoise {
						v += noise.Rand()
					}
					draws.Set(i, rep, xform(v))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.PredictionInterval, n)
	scratch := make([]float64, opts.NSims)
	for i := range out {
		mat.Row(scratch, i, draws)
		out[i], err = summarize(scratch, opts.Point, opts.Level)
		if err != nil {
			return nil, err
		}
	}

	log.Debug().
		Int("rows", n).
		Int("n_sims", opts.NSims).
		Int("workers", workers).
		Dur("elapsed", time.Since(start)).
		Msg("interval simulation complete")
	return out, nil
}
