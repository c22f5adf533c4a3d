package engine

import (
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"mixsim/domain/core"
	"mixsim/domain/model"
)

// compiledFrame is the prediction input resolved against a model: every row's
// design vectors are extracted and every group level is resolved to an index
// before simulation starts, so the per-draw hot path is pure dot products.
type compiledFrame struct {
	rows []compiledRow
}

type compiledRow struct {
	fixed  []float64
	groups []rowGroup
}

// rowGroup carries one grouping factor's contribution for a row. A level of
// -1 marks a level unknown to the model (or absent group membership): the
// factor contributes nothing for the row, equivalent to a zero random effect.
// Intervals for such rows are narrower than model-consistent intervals for
// known groups.
type rowGroup struct {
	factor int
	level  int
	z      []float64
}

type unseenKey struct {
	factor string
	level  string
}

// compileFrame resolves frame against m. A fixed-effect column missing from
// any row fails immediately with ErrMissingCovariate; unseen group levels are
// counted and logged, never fatal.
func compileFrame(m *model.FittedModel, frame model.Frame, log *zerolog.Logger) (*compiledFrame, error) {
	cf := &compiledFrame{rows: make([]compiledRow, len(frame))}
	unseen := make(map[unseenKey]int)

	for i, row := range frame {
		cr := compiledRow{
			fixed:  make([]float64, m.Fixed.Dim()),
			groups: make([]rowGroup, 0, len(m.Groups)),
		}
		for ti, term := range m.Fixed.Terms {
			v, err := covariateValue(row, term, i)
			if err != nil {
				return nil, err
			}
			cr.fixed[ti] = v
		}
		for gi := range m.Groups {
			g := &m.Groups[gi]
			rg := rowGroup{factor: gi, level: -1}
			level, member := row.Groups[g.Name]
			if member {
				if idx, known := g.LevelIndex(level); known {
					rg.level = idx
				} else {
					unseen[unseenKey{g.Name, level}]++
				}
			}
			if rg.level >= 0 {
				rg.z = make([]float64, g.Dim())
				for ti, term := range g.Terms {
					v, err := covariateValue(row, term, i)
					if err != nil {
						return nil, err
					}
					rg.z[ti] = v
				}
			}
			cr.groups = append(cr.groups, rg)
		}
		cf.rows[i] = cr
	}

	for key, count := range unseen {
		log.Warn().
			Str("factor", key.factor).
			Str("level", key.level).
			Int("rows", count).
			Msg("grouping level unseen during fitting, falling back to fixed effects")
	}
	return cf, nil
}

func covariateValue(row model.ObservationRow, term string, i int) (float64, error) {
	if v, ok := row.Covariates[term]; ok {
		return v, nil
	}
	if term == model.InterceptTerm {
		return 1, nil
	}
	return 0, core.NewMissingCovariateError(term, i)
}

// eta computes the linear predictor for one row under one coefficient draw.
// Invoked rows x replicates times; it must stay allocation-free.
func (r *compiledRow) eta(d *coefficientDraw) float64 {
	v := floats.Dot(r.fixed, d.fixed)
	for gi := range r.groups {
		g := &r.groups[gi]
		if g.level < 0 {
			continue
		}
		q := len(g.z)
		v += floats.Dot(g.z, d.ranef[g.factor][g.level*q:(g.level+1)*q])
	}
	return v
}
