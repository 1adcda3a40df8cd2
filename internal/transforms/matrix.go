package transforms

import (
	"errors"
	"fmt"
)

// ErrShape is returned when inputs do not have the expected shape.
var ErrShape = errors.New("transforms: shape mismatch")

// Matrix converts v into a row-major [][]float64. It accepts [][]float64
// directly and the nested []any / numeric forms produced by YAML and JSON
// decoding. The result never aliases v.
func Matrix(v any) ([][]float64, error) {
	switch m := v.(type) {
	case [][]float64:
		out := make([][]float64, len(m))
		for i, row := range m {
			out[i] = append([]float64(nil), row...)
		}
		return out, nil
	case []any:
		out := make([][]float64, len(m))
		for i, row := range m {
			r, err := Vector(row)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: matrix is nil", ErrShape)
	default:
		return nil, fmt.Errorf("%w: %T is not a matrix", ErrShape, v)
	}
}

// Vector converts v into a []float64.
func Vector(v any) ([]float64, error) {
	switch r := v.(type) {
	case []float64:
		return append([]float64(nil), r...), nil
	case []any:
		out := make([]float64, len(r))
		for i, x := range r {
			f, ok := number(x)
			if !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrShape, i, x)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a vector", ErrShape, v)
	}
}

func number(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func columns(m [][]float64) (int, error) {
	if len(m) == 0 {
		return 0, nil
	}
	cols := len(m[0])
	for i, row := range m {
		if len(row) != cols {
			return 0, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(row), cols)
		}
	}
	return cols, nil
}
