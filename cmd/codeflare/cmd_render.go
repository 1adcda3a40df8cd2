package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

var renderFlags struct {
	file   string
	output string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a pipeline as a Mermaid flowchart",
	RunE:  runRender,
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderFlags.file, "file", "f", "", "Pipeline definition YAML (required)")
	f.StringVarP(&renderFlags.output, "output", "o", "", "Write the chart to this file instead of stdout")

	_ = renderCmd.MarkFlagRequired("file")
}

func runRender(cmd *cobra.Command, _ []string) error {
	g, err := loadGraph(renderFlags.file)
	if err != nil {
		return err
	}
	chart, err := pipeline.Render(g.Pipeline)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if renderFlags.output == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), chart)
		return err
	}
	if err := os.WriteFile(renderFlags.output, []byte(chart), 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Chart: %s\n", renderFlags.output)
	return nil
}
