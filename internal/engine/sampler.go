package engine

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"mixsim/domain/core"
	"mixsim/domain/model"
)

// coefficientDraw is one joint simulation replicate: a fixed-effect vector
// plus, per grouping factor, every level's random-effect vector flattened
// row-major (level-major). Draws are reused across replicates within a worker.
type coefficientDraw struct {
	fixed []float64
	ranef [][]float64
}

// coefficientSampler draws from the approximate sampling distributions of the
// fixed effects and the conditional modes. All covariance matrices are
// Cholesky-factorized once up front; a factorization failure surfaces the
// degenerate matrix instead of substituting a guess.
type coefficientSampler struct {
	fixedMean []float64
	fixedChol *mat.Cholesky
	groups    []groupSampler
}

type groupSampler struct {
	name  string
	q     int
	modes [][]float64
	chols []*mat.Cholesky
}

func newCoefficientSampler(m *model.FittedModel) (*coefficientSampler, error) {
	s := &coefficientSampler{
		fixedMean: m.Fixed.Coef,
		fixedChol: &mat.Cholesky{},
		groups:    make([]groupSampler, 0, len(m.Groups)),
	}
	if ok := s.fixedChol.Factorize(m.Fixed.Cov); !ok {
		return nil, core.NewDegenerateCovarianceError("fixed-effect covariance")
	}
	for gi := range m.Groups {
		g := &m.Groups[gi]
		gs := groupSampler{
			name:  g.Name,
			q:     g.Dim(),
			modes: make([][]float64, len(g.Levels)),
			chols: make([]*mat.Cholesky, len(g.Levels)),
		}
		for li := range g.Levels {
			gs.modes[li] = mat.Row(nil, li, g.Modes)
		}
		if g.PooledCov != nil {
			chol := &mat.Cholesky{}
			if ok := chol.Factorize(g.PooledCov); !ok {
				return nil, core.NewDegenerateCovarianceError(
					fmt.Sprintf("factor %q pooled conditional covariance", g.Name))
			}
			for li := range gs.chols {
				gs.chols[li] = chol
			}
		} else {
			for li := range g.Levels {
				chol := &mat.Cholesky{}
				if ok := chol.Factorize(g.Cov[li]); !ok {
					return nil, core.NewDegenerateCovarianceError(fmt.Sprintf(
						"factor %q level %q conditional covariance", g.Name, g.Levels[li]))
				}
				gs.chols[li] = chol
			}
		}
		s.groups = append(s.groups, gs)
	}
	return s, nil
}

// newDraw allocates a draw buffer sized for this sampler.
func (s *coefficientSampler) newDraw() *coefficientDraw {
	d := &coefficientDraw{
		fixed: make([]float64, len(s.fixedMean)),
		ranef: make([][]float64, len(s.groups)),
	}
	for gi, g := range s.groups {
		d.ranef[gi] = make([]float64, len(g.modes)*g.q)
	}
	return d
}

// draw fills dst with one joint replicate from src. The consumption order is
// fixed: fixed effects first, then factors in model order, then levels in
// level order. Changing this order breaks the determinism contract.
func (s *coefficientSampler) draw(dst *coefficientDraw, src rand.Source) {
	distmv.NormalRand(dst.fixed, s.fixedMean, s.fixedChol, src)
	for gi := range s.groups {
		g := &s.groups[gi]
		buf := dst.ranef[gi]
		for li := range g.modes {
			distmv.NormalRand(buf[li*g.q:(li+1)*g.q], g.modes[li], g.chols[li], src)
		}
	}
}
