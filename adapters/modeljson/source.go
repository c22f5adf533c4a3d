// Package modeljson decodes fitted-model snapshots exported by an external
// fitting library as JSON. The snapshot is the interchange boundary: the
// fitter publishes estimates, covariances, conditional modes and family, and
// the engine consumes them without ever touching the fitter itself.
package modeljson

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"gonum.org/v1/gonum/mat"

	"mixsim/domain/core"
	"mixsim/domain/model"
	"mixsim/ports"
)

type snapshot struct {
	Family           string          `json:"family"`
	Fixed            fixedSnapshot   `json:"fixed"`
	Groups           []groupSnapshot `json:"groups,omitempty"`
	ResidualVariance float64         `json:"residual_variance,omitempty"`
}

type fixedSnapshot struct {
	Terms []string    `json:"terms"`
	Coef  []float64   `json:"coef"`
	Cov   [][]float64 `json:"cov"`
}

type groupSnapshot struct {
	Name      string        `json:"name"`
	Terms     []string      `json:"terms"`
	Levels    []string      `json:"levels"`
	Modes     [][]float64   `json:"modes"`
	Cov       [][][]float64 `json:"cov,omitempty"`
	PooledCov [][]float64   `json:"pooled_cov,omitempty"`
}

// Decode reads a model snapshot and returns a validated FittedModel.
func Decode(r io.Reader) (*model.FittedModel, error) {
	var snap snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding model snapshot: %w", err)
	}

	m := &model.FittedModel{
		Family:           model.Family(snap.Family),
		ResidualVariance: snap.ResidualVariance,
	}
	cov, err := symFromRows(snap.Fixed.Cov, "fixed-effect covariance")
	if err != nil {
		return nil, err
	}
	m.Fixed = model.FixedEffects{
		Terms: snap.Fixed.Terms,
		Coef:  snap.Fixed.Coef,
		Cov:   cov,
	}

	for _, gs := range snap.Groups {
		g := model.GroupingFactor{
			Name:   gs.Name,
			Terms:  gs.Terms,
			Levels: gs.Levels,
		}
		modes, err := denseFromRows(gs.Modes, fmt.Sprintf("factor %q modes", gs.Name))
		if err != nil {
			return nil, err
		}
		g.Modes = modes
		switch {
		case gs.PooledCov != nil:
			g.PooledCov, err = symFromRows(gs.PooledCov, fmt.Sprintf("factor %q pooled covariance", gs.Name))
			if err != nil {
				return nil, err
			}
		default:
			g.Cov = make([]*mat.SymDense, len(gs.Cov))
			for i, rows := range gs.Cov {
				g.Cov[i], err = symFromRows(rows, fmt.Sprintf("factor %q covariance %d", gs.Name, i))
				if err != nil {
					return nil, err
				}
			}
		}
		m.Groups = append(m.Groups, g)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeFile reads a model snapshot from disk.
func DecodeFile(path string) (*model.FittedModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

const symTol = 1e-8

func symFromRows(rows [][]float64, what string) (*mat.SymDense, error) {
	n := len(rows)
	if n == 0 {
		return nil, core.NewInvalidModelError(what + " is empty")
	}
	s := mat.NewSymDense(n, nil)
	for i := range rows {
		if len(rows[i]) != n {
			return nil, core.NewInvalidModelError(what + " is not square")
		}
		for j := i; j < n; j++ {
			if d := rows[i][j] - rows[j][i]; d > symTol || d < -symTol {
				return nil, core.NewInvalidModelError(what + " is not symmetric")
			}
			s.SetSym(i, j, rows[i][j])
		}
	}
	return s, nil
}

func denseFromRows(rows [][]float64, what string) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, core.NewInvalidModelError(what + " is empty")
	}
	cols := len(rows[0])
	d := mat.NewDense(len(rows), cols, nil)
	for i := range rows {
		if len(rows[i]) != cols {
			return nil, core.NewInvalidModelError(what + " is ragged")
		}
		d.SetRow(i, rows[i])
	}
	return d, nil
}

// FileSource loads a model snapshot from disk on first use and caches it.
type FileSource struct {
	path string

	once  sync.Once
	model *model.FittedModel
	err   error
}

var _ ports.ModelSource = (*FileSource)(nil)

// NewFileSource creates a lazily loading file-backed model source.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// FittedModel implements ports.ModelSource.
func (s *FileSource) FittedModel(context.Context) (*model.FittedModel, error) {
	s.once.Do(func() {
		s.model, s.err = DecodeFile(s.path)
	})
	return s.model, s.err
}
