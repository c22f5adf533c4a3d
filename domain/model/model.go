package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"mixsim/domain/core"
)

// Family identifies the response family of a fitted mixed model.
type Family string

const (
	// FamilyGaussian is a linear mixed model with identity link.
	FamilyGaussian Family = "gaussian"
	// FamilyBinomial is a binomial mixed model with logit link.
	FamilyBinomial Family = "binomial"
)

// Valid reports whether the family is one the simulation engine supports.
func (f Family) Valid() bool {
	return f == FamilyGaussian || f == FamilyBinomial
}

// InterceptTerm is the reserved design-column name for the intercept. Rows do
// not need to carry it; its value is implicitly 1.
const InterceptTerm = "(Intercept)"

// FixedEffects holds the fixed-effect estimates and their joint covariance.
type FixedEffects struct {
	Terms []string
	Coef  []float64
	Cov   *mat.SymDense
}

// Dim returns p, the number of fixed-effect coefficients.
func (fe FixedEffects) Dim() int { return len(fe.Terms) }

// GroupingFactor describes one random-effect grouping factor: its levels, the
// conditional modes per level, and the conditional covariance around each mode.
// Either Cov carries one matrix per level, or PooledCov is shared by all
// levels.
type GroupingFactor struct {
	Name      string
	Terms     []string
	Levels    []string
	Modes     *mat.Dense // len(Levels) x Dim()
	Cov       []*mat.SymDense
	PooledCov *mat.SymDense

	levelIndex map[string]int
}

// Dim returns q, the random-effect dimension per level.
func (g *GroupingFactor) Dim() int { return len(g.Terms) }

// LevelIndex returns the row index of a level in Modes, or false when the
// level was not seen during fitting.
func (g *GroupingFactor) LevelIndex(level string) (int, bool) {
	if g.levelIndex == nil {
		for i, l := range g.Levels {
			if l == level {
				return i, true
			}
		}
		return -1, false
	}
	i, ok := g.levelIndex[level]
	return i, ok
}

// CovFor returns the conditional covariance for the given level index,
// resolving the pooled matrix when per-level matrices are absent.
func (g *GroupingFactor) CovFor(level int) *mat.SymDense {
	if g.PooledCov != nil {
		return g.PooledCov
	}
	return g.Cov[level]
}

func (g *GroupingFactor) buildIndex() error {
	g.levelIndex = make(map[string]int, len(g.Levels))
	for i, l := range g.Levels {
		if _, dup := g.levelIndex[l]; dup {
			return core.NewInvalidModelError(fmt.Sprintf("factor %q has duplicate level %q", g.Name, l))
		}
		g.levelIndex[l] = i
	}
	return nil
}

func (g *GroupingFactor) validate() error {
	q := g.Dim()
	if g.Name == "" {
		return core.NewInvalidModelError("grouping factor with empty name")
	}
	if q == 0 {
		return core.NewInvalidModelError(fmt.Sprintf("factor %q has no random-effect terms", g.Name))
	}
	if len(g.Levels) == 0 {
		return core.NewInvalidModelError(fmt.Sprintf("factor %q has no levels", g.Name))
	}
	if g.Modes == nil {
		return core.NewInvalidModelError(fmt.Sprintf("factor %q has no conditional modes", g.Name))
	}
	rows, cols := g.Modes.Dims()
	if rows != len(g.Levels) || cols != q {
		return core.NewInvalidModelError(fmt.Sprintf(
			"factor %q modes are %dx%d, want %dx%d", g.Name, rows, cols, len(g.Levels), q))
	}
	switch {
	case g.PooledCov != nil:
		if g.PooledCov.SymmetricDim() != q {
			return core.NewInvalidModelError(fmt.Sprintf("factor %q pooled covariance dimension mismatch", g.Name))
		}
	case len(g.Cov) == len(g.Levels):
		for i, c := range g.Cov {
			if c == nil || c.SymmetricDim() != q {
				return core.NewInvalidModelError(fmt.Sprintf(
					"factor %q level %q covariance dimension mismatch", g.Name, g.Levels[i]))
			}
		}
	default:
		return core.NewInvalidModelError(fmt.Sprintf(
			"factor %q needs either a pooled covariance or one per level", g.Name))
	}
	return g.buildIndex()
}

// FittedModel is the read-only snapshot of an externally fitted mixed model:
// everything the simulation engine needs, nothing about how it was estimated.
// Validate must pass before the model reaches the engine; afterwards the model
// is never mutated and is safe for concurrent reads.
type FittedModel struct {
	Family           Family
	Fixed            FixedEffects
	Groups           []GroupingFactor
	ResidualVariance float64
}

// Validate checks family support and internal dimensional consistency, and
// prepares the level lookup tables.
func (m *FittedModel) Validate() error {
	if !m.Family.Valid() {
		return core.NewUnsupportedModelKindError(string(m.Family))
	}
	p := m.Fixed.Dim()
	if p == 0 {
		return core.NewInvalidModelError("no fixed-effect terms")
	}
	if len(m.Fixed.Coef) != p {
		return core.NewInvalidModelError(fmt.Sprintf(
			"fixed-effect coefficients have length %d, want %d", len(m.Fixed.Coef), p))
	}
	if m.Fixed.Cov == nil || m.Fixed.Cov.SymmetricDim() != p {
		return core.NewInvalidModelError("fixed-effect covariance dimension mismatch")
	}
	seen := make(map[string]bool, len(m.Groups))
	for i := range m.Groups {
		g := &m.Groups[i]
		if seen[g.Name] {
			return core.NewInvalidModelError(fmt.Sprintf("duplicate grouping factor %q", g.Name))
		}
		seen[g.Name] = true
		if err := g.validate(); err != nil {
			return err
		}
	}
	if m.Family == FamilyGaussian && m.ResidualVariance < 0 {
		return core.NewInvalidModelError("negative residual variance")
	}
	return nil
}
