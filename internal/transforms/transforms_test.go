package transforms

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

func TestMatrix_FromDecodedYAML(t *testing.T) {
	in := []any{[]any{1, 2.5}, []any{int64(3), float32(4)}}
	got, err := Matrix(in)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{1, 2.5}, {3, 4}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestMatrix_Errors(t *testing.T) {
	for name, in := range map[string]any{
		"nil":       nil,
		"scalar":    3,
		"bad row":   []any{"row"},
		"bad value": []any{[]any{"x"}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Matrix(in); !errors.Is(err, ErrShape) {
				t.Fatalf("Matrix(%v) = %v, want ErrShape", in, err)
			}
		})
	}
}

func TestMatrix_DoesNotAlias(t *testing.T) {
	in := [][]float64{{1}}
	out, _ := Matrix(in)
	out[0][0] = 5
	if in[0][0] != 1 {
		t.Error("Matrix aliased its input")
	}
}

func TestScaleAndShift(t *testing.T) {
	ctx := context.Background()
	x := [][]float64{{1, 2}, {3, 4}}

	got, err := NewScale(2).Transform(ctx, x)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{2, 4}, {6, 8}}, got); diff != "" {
		t.Errorf("scale mismatch:\n%s", diff)
	}

	shift := &Shift{params: pipeline.Params{"offset": -1}}
	got, err = shift.Transform(ctx, x)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{0, 1}, {2, 3}}, got); diff != "" {
		t.Errorf("shift mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([][]float64{{1, 2}, {3, 4}}, x); diff != "" {
		t.Errorf("input mutated:\n%s", diff)
	}
}

func TestScale_CloneIndependent(t *testing.T) {
	orig := NewScale(2)
	clone := orig.Clone().(*Scale)
	clone.Params()["factor"] = 10.0

	if orig.Params().Float("factor", 0) != 2 {
		t.Errorf("original factor = %v, want 2", orig.Params()["factor"])
	}
}

func TestStandardize(t *testing.T) {
	ctx := context.Background()
	s := &Standardize{}

	if _, err := s.Transform(ctx, [][]float64{{1}}); !errors.Is(err, ErrNotFitted) {
		t.Fatalf("Transform before Fit = %v, want ErrNotFitted", err)
	}

	x := [][]float64{{1, 5}, {3, 5}}
	if err := s.Fit(ctx, pipeline.NewXy(x, nil)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Transform(ctx, x)
	if err != nil {
		t.Fatal(err)
	}
	want := [][]float64{{-1, 0}, {1, 0}}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("standardize mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Transform(ctx, [][]float64{{1, 2, 3}}); !errors.Is(err, ErrShape) {
		t.Errorf("wrong width = %v, want ErrShape", err)
	}
	if _, err := s.Clone().Transform(ctx, x); !errors.Is(err, ErrNotFitted) {
		t.Errorf("clone should be unfitted, got %v", err)
	}
	if err := (&Standardize{}).Fit(ctx, pipeline.NewXy([][]float64{}, nil)); !errors.Is(err, ErrShape) {
		t.Errorf("fit on zero rows = %v, want ErrShape", err)
	}
}

func TestConcat(t *testing.T) {
	ctx := context.Background()
	got, err := Concat(ctx, []pipeline.Xy{
		pipeline.NewXy([][]float64{{1}, {2}}, []float64{0, 1}),
		pipeline.NewXy([][]float64{{10, 11}, {20, 21}}, []float64{9, 9}),
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{1, 10, 11}, {2, 20, 21}}, got.X()); diff != "" {
		t.Errorf("concat X mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 1}, got.Y()); diff != "" {
		t.Errorf("concat should keep the first input's y:\n%s", diff)
	}

	_, err = Concat(ctx, []pipeline.Xy{
		pipeline.NewXy([][]float64{{1}}, nil),
		pipeline.NewXy([][]float64{{1}, {2}}, nil),
	})
	if !errors.Is(err, ErrShape) {
		t.Errorf("row mismatch = %v, want ErrShape", err)
	}
	if _, err := Concat(ctx, nil); !errors.Is(err, ErrShape) {
		t.Errorf("empty concat = %v, want ErrShape", err)
	}
}

func TestMean(t *testing.T) {
	ctx := context.Background()
	got, err := Mean(ctx, []pipeline.Xy{
		pipeline.NewXy([][]float64{{1, 2}}, nil),
		pipeline.NewXy([][]float64{{3, 6}}, nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([][]float64{{2, 4}}, got.X()); diff != "" {
		t.Errorf("mean mismatch:\n%s", diff)
	}

	_, err = Mean(ctx, []pipeline.Xy{
		pipeline.NewXy([][]float64{{1, 2}}, nil),
		pipeline.NewXy([][]float64{{3}}, nil),
	})
	if !errors.Is(err, ErrShape) {
		t.Errorf("column mismatch = %v, want ErrShape", err)
	}
}

func TestRegistry_BuildsEveryTransform(t *testing.T) {
	reg := Registry()
	for _, name := range []string{"scale", "shift", "standardize", "concat", "mean"} {
		factory, ok := reg[name]
		if !ok {
			t.Errorf("registry missing %q", name)
			continue
		}
		capability, err := factory(pipeline.Params{"factor": 3})
		if err != nil {
			t.Errorf("%s factory: %v", name, err)
			continue
		}
		if _, err := pipeline.NewNode(name, capability); err != nil {
			t.Errorf("%s capability rejected: %v", name, err)
		}
	}

	capability, _ := reg["scale"](pipeline.Params{"factor": 3})
	got, err := capability.(pipeline.Estimator).Transform(context.Background(), [][]float64{{1}})
	if err != nil {
		t.Fatal(err)
	}
	if v := got.([][]float64)[0][0]; math.Abs(v-3) > 1e-12 {
		t.Errorf("scale from registry = %v, want 3", v)
	}
}
