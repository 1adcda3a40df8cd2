package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Bobbins228/codeflare/internal/format"
	"github.com/Bobbins228/codeflare/internal/service"
	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

var planFlags struct {
	file   string
	format string
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate a pipeline and print its level schedule",
	Long: `Loads a pipeline definition, checks it and prints the nodes grouped by
level. A node's level is the length of the longest path from any source to
it, so every node in a level can run once the previous levels are done.`,
	RunE: runPlan,
}

func init() {
	f := planCmd.Flags()
	f.StringVarP(&planFlags.file, "file", "f", "", "Pipeline definition YAML (required)")
	f.StringVar(&planFlags.format, "format", "text", "Output format: text, table, markdown, yaml or json")

	_ = planCmd.MarkFlagRequired("file")
}

func runPlan(cmd *cobra.Command, _ []string) error {
	g, err := loadGraph(planFlags.file)
	if err != nil {
		return err
	}
	plan, err := service.PlanOf(g)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	out := cmd.OutOrStdout()
	switch planFlags.format {
	case "text":
	case "table", "markdown":
		m, _ := format.ParseMode(planFlags.format)
		fmt.Fprintln(out, planTable(g, plan, m))
		return nil
	default:
		return writeAs(out, planFlags.format, plan)
	}
	fmt.Fprintf(out, "Pipeline: %s (%d nodes, max level %d)\n", plan.Pipeline, plan.Nodes, plan.MaxLevel)
	for lvl, names := range plan.Levels {
		fmt.Fprintf(out, "  level %d: %s\n", lvl, strings.Join(names, ", "))
	}
	fmt.Fprintf(out, "Sources: %s\n", strings.Join(plan.Sources, ", "))
	fmt.Fprintf(out, "Sinks:   %s\n", strings.Join(plan.Sinks, ", "))
	return nil
}

// planTable lists every node with its level and execution traits.
func planTable(g *pipeline.Graph, plan *service.Plan, m format.Mode) string {
	tb := format.NewTable(m)
	tb.Header("Level", "Node", "Kind", "Input", "Firing", "State")
	for lvl, names := range plan.Levels {
		for _, name := range names {
			n, _ := g.Node(name)
			tb.Row(lvl, name, n.Kind(), n.InputType(), n.FiringType(), n.StateType())
		}
	}
	tb.Footer("", fmt.Sprintf("%d nodes", plan.Nodes), "", "", "", "")
	tb.AlignRight(1)
	return tb.String()
}
