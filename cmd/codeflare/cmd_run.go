package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bobbins228/codeflare/internal/format"
	"github.com/Bobbins228/codeflare/internal/logging"
	"github.com/Bobbins228/codeflare/internal/service"
	"github.com/Bobbins228/codeflare/internal/telemetry"
	"github.com/Bobbins228/codeflare/pkg/executor"
)

var runFlags struct {
	file     string
	input    string
	parallel int
	mode     string
	format   string
	trace    bool
	traceOut string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a pipeline over an input file",
	Long: `Runs a pipeline with the built-in transforms (scale, shift, standardize,
concat, mean) and prints every sink node's outputs.

The input file maps source node names to lists of {x, y} values:

  inputs:
    load:
      - x: [[1, 2], [3, 4]]
        y: [0, 1]

In fit mode every estimator is fitted on its input before transforming it.
In transform mode estimators are used as built, so stateful transforms such
as standardize fail.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.file, "file", "f", "", "Pipeline definition YAML (required)")
	f.StringVarP(&runFlags.input, "input", "i", "", "Input YAML or JSON (required)")
	f.IntVar(&runFlags.parallel, "parallel", runtime.GOMAXPROCS(0), "Max concurrent node invocations (0 = unbounded)")
	f.StringVar(&runFlags.mode, "mode", "fit", "Estimator mode: fit or transform")
	f.StringVar(&runFlags.format, "format", "yaml", "Output format: yaml, json, table or markdown")
	f.BoolVar(&runFlags.trace, "trace", false, "Log every run event")
	f.StringVar(&runFlags.traceOut, "trace-out", "", "Write OpenTelemetry spans for the run to this file as JSON lines")

	_ = runCmd.MarkFlagRequired("file")
	_ = runCmd.MarkFlagRequired("input")
}

func runRun(cmd *cobra.Command, _ []string) error {
	mode, err := executor.ParseMode(runFlags.mode)
	if err != nil {
		return err
	}
	g, err := loadGraph(runFlags.file)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(runFlags.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	in, err := service.ParseInput(data, g)
	if err != nil {
		return err
	}

	if runFlags.traceOut != "" {
		f, err := os.Create(runFlags.traceOut)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()
		shutdown, err := telemetry.InitTracing(f)
		if err != nil {
			return err
		}
		defer shutdown(context.WithoutCancel(cmd.Context()))
	}

	logger := logging.New("run")
	opts := []executor.Option{
		executor.WithMode(mode),
		executor.WithParallelism(runFlags.parallel),
		executor.WithLogger(logger),
	}
	if runFlags.trace {
		opts = append(opts, executor.WithObserver(&executor.LogObserver{Logger: logger}))
	}

	start := time.Now()
	res, err := service.Run(cmd.Context(), g, in, opts...)
	elapsed := time.Since(start)
	if err != nil {
		return fmt.Errorf("run %s: %w", g.Name, err)
	}
	switch runFlags.format {
	case "table", "markdown":
		m, _ := format.ParseMode(runFlags.format)
		fmt.Fprintln(cmd.OutOrStdout(), resultTable(res, elapsed, m))
		return nil
	}
	return writeAs(cmd.OutOrStdout(), runFlags.format, res)
}

const previewWidth = 48

// resultTable previews each sink output on one row.
func resultTable(res *service.Result, elapsed time.Duration, m format.Mode) string {
	tb := format.NewTable(m)
	tb.Header("Sink", "#", "X", "Y")
	total := 0
	for _, name := range slices.Sorted(maps.Keys(res.Outputs)) {
		for i, v := range res.Outputs[name] {
			tb.Row(name, i, format.Value(v.X, previewWidth), format.Value(v.Y, previewWidth))
			total++
		}
	}
	tb.Footer("run "+res.RunID, total, "", format.Duration(elapsed))
	tb.AlignRight(2)
	return tb.String()
}
