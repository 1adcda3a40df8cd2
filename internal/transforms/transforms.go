// Package transforms provides the built-in transform capabilities that
// pipeline definitions can name. They operate on row-major float64
// matrices and exist so pipelines can be run end to end from the CLI.
package transforms

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

// ErrNotFitted is returned when a stateful estimator transforms before Fit.
var ErrNotFitted = errors.New("transforms: estimator not fitted")

// Registry returns the factories for every built-in transform.
//
//	scale        estimator, X * factor            (params: factor, default 1)
//	shift        estimator, X + offset            (params: offset, default 0)
//	standardize  estimator, (X - mean) / std, fitted per column
//	concat       and, column-wise concatenation, y from the first input
//	mean         and, element-wise mean, y from the first input
func Registry() pipeline.Registry {
	return pipeline.Registry{
		"scale": func(p pipeline.Params) (any, error) {
			return &Scale{params: p.Clone()}, nil
		},
		"shift": func(p pipeline.Params) (any, error) {
			return &Shift{params: p.Clone()}, nil
		},
		"standardize": func(pipeline.Params) (any, error) {
			return &Standardize{}, nil
		},
		"concat": func(pipeline.Params) (any, error) {
			return pipeline.AndTransformFunc(Concat), nil
		},
		"mean": func(pipeline.Params) (any, error) {
			return pipeline.AndTransformFunc(Mean), nil
		},
	}
}

// Scale multiplies every element by the "factor" parameter.
type Scale struct {
	params pipeline.Params
}

// NewScale returns a Scale with the given factor.
func NewScale(factor float64) *Scale {
	return &Scale{params: pipeline.Params{"factor": factor}}
}

// Params exposes the tunable parameters.
func (s *Scale) Params() pipeline.Params { return s.params }

func (s *Scale) Fit(context.Context, pipeline.Xy) error { return nil }

func (s *Scale) Transform(_ context.Context, x any) (any, error) {
	factor := s.params.Float("factor", 1)
	return apply(x, func(v float64) float64 { return v * factor })
}

func (s *Scale) Clone() pipeline.Estimator {
	return &Scale{params: s.params.Clone()}
}

// Shift adds the "offset" parameter to every element.
type Shift struct {
	params pipeline.Params
}

func (s *Shift) Params() pipeline.Params { return s.params }

func (s *Shift) Fit(context.Context, pipeline.Xy) error { return nil }

func (s *Shift) Transform(_ context.Context, x any) (any, error) {
	offset := s.params.Float("offset", 0)
	return apply(x, func(v float64) float64 { return v + offset })
}

func (s *Shift) Clone() pipeline.Estimator {
	return &Shift{params: s.params.Clone()}
}

func apply(x any, fn func(float64) float64) ([][]float64, error) {
	m, err := Matrix(x)
	if err != nil {
		return nil, err
	}
	for _, row := range m {
		for j := range row {
			row[j] = fn(row[j])
		}
	}
	return m, nil
}

// Standardize centers each column on its fitted mean and scales it by its
// fitted standard deviation. Constant columns are only centered.
type Standardize struct {
	mean []float64
	std  []float64
}

func (s *Standardize) Fit(_ context.Context, xy pipeline.Xy) error {
	m, err := Matrix(xy.X())
	if err != nil {
		return err
	}
	cols, err := columns(m)
	if err != nil {
		return err
	}
	if len(m) == 0 {
		return fmt.Errorf("%w: cannot fit on zero rows", ErrShape)
	}

	mean := make([]float64, cols)
	for _, row := range m {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(m))
	}
	std := make([]float64, cols)
	for _, row := range m {
		for j, v := range row {
			d := v - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / float64(len(m)))
	}
	s.mean, s.std = mean, std
	return nil
}

func (s *Standardize) Transform(_ context.Context, x any) (any, error) {
	if s.mean == nil {
		return nil, ErrNotFitted
	}
	m, err := Matrix(x)
	if err != nil {
		return nil, err
	}
	for i, row := range m {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("%w: row %d has %d columns, fitted on %d", ErrShape, i, len(row), len(s.mean))
		}
		for j := range row {
			row[j] -= s.mean[j]
			if s.std[j] != 0 {
				row[j] /= s.std[j]
			}
		}
	}
	return m, nil
}

// Clone returns an unfitted Standardize.
func (s *Standardize) Clone() pipeline.Estimator {
	return &Standardize{}
}

// Concat joins the inputs' columns row by row. Every input must have the
// same number of rows.
func Concat(_ context.Context, xys []pipeline.Xy) (pipeline.Xy, error) {
	if len(xys) == 0 {
		return pipeline.Xy{}, fmt.Errorf("%w: concat needs at least one input", ErrShape)
	}
	var out [][]float64
	for i, xy := range xys {
		m, err := Matrix(xy.X())
		if err != nil {
			return pipeline.Xy{}, fmt.Errorf("input %d: %w", i, err)
		}
		if i == 0 {
			out = m
			continue
		}
		if len(m) != len(out) {
			return pipeline.Xy{}, fmt.Errorf("%w: input %d has %d rows, want %d", ErrShape, i, len(m), len(out))
		}
		for r := range out {
			out[r] = append(out[r], m[r]...)
		}
	}
	return pipeline.NewXy(out, xys[0].Y()), nil
}

// Mean averages the inputs element-wise. Every input must have the same shape.
func Mean(_ context.Context, xys []pipeline.Xy) (pipeline.Xy, error) {
	if len(xys) == 0 {
		return pipeline.Xy{}, fmt.Errorf("%w: mean needs at least one input", ErrShape)
	}
	var sum [][]float64
	for i, xy := range xys {
		m, err := Matrix(xy.X())
		if err != nil {
			return pipeline.Xy{}, fmt.Errorf("input %d: %w", i, err)
		}
		if i == 0 {
			sum = m
			continue
		}
		if len(m) != len(sum) {
			return pipeline.Xy{}, fmt.Errorf("%w: input %d has %d rows, want %d", ErrShape, i, len(m), len(sum))
		}
		for r := range sum {
			if len(m[r]) != len(sum[r]) {
				return pipeline.Xy{}, fmt.Errorf("%w: input %d row %d has %d columns, want %d", ErrShape, i, r, len(m[r]), len(sum[r]))
			}
			for c := range sum[r] {
				sum[r][c] += m[r][c]
			}
		}
	}
	n := float64(len(xys))
	for _, row := range sum {
		for c := range row {
			row[c] /= n
		}
	}
	return pipeline.NewXy(sum, xys[0].Y()), nil
}
