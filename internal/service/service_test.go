package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Bobbins228/codeflare/pkg/executor"
	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

func loadExample(t *testing.T) *pipeline.Graph {
	t.Helper()
	data, err := os.ReadFile("../../examples/pipelines/feature_union.yaml")
	if err != nil {
		t.Fatal(err)
	}
	g, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return g
}

func TestPlanOf(t *testing.T) {
	plan, err := PlanOf(loadExample(t))
	if err != nil {
		t.Fatal(err)
	}
	want := &Plan{
		Pipeline: "feature-union",
		Nodes:    4,
		MaxLevel: 2,
		Levels:   [][]string{{"load"}, {"standardize", "scale"}, {"union"}},
		Sources:  []string{"load"},
		Sinks:    []string{"union"},
		Edges: []string{
			"load -> standardize",
			"load -> scale",
			"standardize -> union",
			"scale -> union",
		},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestParseInput(t *testing.T) {
	g := loadExample(t)
	data, err := os.ReadFile("../../examples/pipelines/feature_union.input.yaml")
	if err != nil {
		t.Fatal(err)
	}
	in, err := ParseInput(data, g)
	if err != nil {
		t.Fatal(err)
	}
	load, _ := g.Node("load")
	if n := len(in.Refs(load)); n != 1 {
		t.Fatalf("load has %d refs, want 1", n)
	}

	_, err = ParseInput([]byte("inputs:\n  ghost:\n    - x: 1\n"), g)
	if !errors.Is(err, executor.ErrMissingInput) {
		t.Errorf("unknown node = %v, want ErrMissingInput", err)
	}
	if _, err := ParseInput([]byte("inputs: [unbalanced"), g); err == nil {
		t.Error("expected YAML error")
	}
}

func TestRun_FeatureUnion(t *testing.T) {
	g := loadExample(t)
	data, err := os.ReadFile("../../examples/pipelines/feature_union.input.yaml")
	if err != nil {
		t.Fatal(err)
	}
	in, err := ParseInput(data, g)
	if err != nil {
		t.Fatal(err)
	}

	quiet := executor.WithLogger(slog.New(slog.DiscardHandler))
	res, err := Run(context.Background(), g, in, quiet)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string][]XyValue{
		"union": {{
			X: [][]float64{{-1, -1, 0.5, 1}, {1, 1, 1.5, 2}},
			Y: []any{0, 1},
		}},
	}
	if diff := cmp.Diff(want, res.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"load", "scale", "standardize"}, res.FittedNodes); diff != "" {
		t.Errorf("fitted nodes mismatch (-want +got):\n%s", diff)
	}
	if res.RunID == "" {
		t.Error("missing run ID")
	}
}

func TestRun_TransformModeNeedsFittedEstimators(t *testing.T) {
	g := loadExample(t)
	load, _ := g.Node("load")
	in := executor.NewInput().Add(load, pipeline.NewXy([][]float64{{1, 2}}, nil))

	quiet := executor.WithLogger(slog.New(slog.DiscardHandler))
	_, err := Run(context.Background(), g, in, quiet, executor.WithMode(executor.ModeTransform))
	if !errors.Is(err, executor.ErrInvocation) {
		t.Fatalf("Run = %v, want ErrInvocation from the unfitted standardizer", err)
	}
}
