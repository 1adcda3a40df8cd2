package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Bobbins228/codeflare/internal/logging"
	"github.com/Bobbins228/codeflare/internal/service"
	"github.com/Bobbins228/codeflare/pkg/executor"
	"github.com/Bobbins228/codeflare/pkg/pipeline"
)

// DefaultParallelism bounds run_pipeline invocations when the caller does
// not ask for a specific value.
var DefaultParallelism = 4

// Server wraps the MCP SDK server and exposes pipeline planning and
// execution as tools.
type Server struct {
	MCPServer *sdkmcp.Server

	mu   sync.Mutex
	runs []string
}

// NewServer creates an MCP server with the pipeline tools registered.
func NewServer(version string) *Server {
	s := &Server{}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "codeflare", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "plan_pipeline",
		Description: "Validate a YAML pipeline definition and return its level schedule: nodes grouped by longest distance from a source.",
	}, s.handlePlan)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "render_pipeline",
		Description: "Render a YAML pipeline definition as a Mermaid flowchart with one subgraph per level.",
	}, s.handleRender)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_pipeline",
		Description: "Run a YAML pipeline definition over the given inputs with the built-in transforms and return every sink node's outputs.",
	}, s.handleRun)
}

// --- Tool input/output types ---

type planInput struct {
	Definition string `json:"definition" jsonschema:"pipeline definition YAML (pipeline, nodes, edges)"`
}

type planOutput struct {
	Plan service.Plan `json:"plan"`
}

type renderInput struct {
	Definition string `json:"definition" jsonschema:"pipeline definition YAML (pipeline, nodes, edges)"`
}

type renderOutput struct {
	Pipeline string `json:"pipeline"`
	Mermaid  string `json:"mermaid"`
}

type runInput struct {
	Definition string `json:"definition" jsonschema:"pipeline definition YAML (pipeline, nodes, edges)"`
	Inputs     string `json:"inputs" jsonschema:"input YAML or JSON mapping source node names to lists of {x, y} values under an inputs key"`
	Mode       string `json:"mode,omitempty" jsonschema:"estimator mode: fit (default) or transform"`
	Parallel   int    `json:"parallel,omitempty" jsonschema:"max concurrent node invocations (default 4)"`
}

type runOutput struct {
	Result      service.Result `json:"result"`
	Invocations int            `json:"invocations"`
	Levels      int            `json:"levels"`
}

// --- Tool handlers ---

func (s *Server) handlePlan(_ context.Context, _ *sdkmcp.CallToolRequest, input planInput) (*sdkmcp.CallToolResult, planOutput, error) {
	g, err := load(input.Definition)
	if err != nil {
		return nil, planOutput{}, err
	}
	plan, err := service.PlanOf(g)
	if err != nil {
		return nil, planOutput{}, fmt.Errorf("plan_pipeline: %w", err)
	}
	return nil, planOutput{Plan: *plan}, nil
}

func (s *Server) handleRender(_ context.Context, _ *sdkmcp.CallToolRequest, input renderInput) (*sdkmcp.CallToolResult, renderOutput, error) {
	g, err := load(input.Definition)
	if err != nil {
		return nil, renderOutput{}, err
	}
	chart, err := pipeline.Render(g.Pipeline)
	if err != nil {
		return nil, renderOutput{}, fmt.Errorf("render_pipeline: %w", err)
	}
	return nil, renderOutput{Pipeline: g.Name, Mermaid: chart}, nil
}

func (s *Server) handleRun(ctx context.Context, _ *sdkmcp.CallToolRequest, input runInput) (*sdkmcp.CallToolResult, runOutput, error) {
	logger := logging.New("mcp-run")

	g, err := load(input.Definition)
	if err != nil {
		return nil, runOutput{}, err
	}
	if strings.TrimSpace(input.Inputs) == "" {
		return nil, runOutput{}, fmt.Errorf("inputs is required")
	}
	in, err := service.ParseInput([]byte(input.Inputs), g)
	if err != nil {
		return nil, runOutput{}, err
	}
	mode := executor.ModeFit
	if input.Mode != "" {
		if mode, err = executor.ParseMode(input.Mode); err != nil {
			return nil, runOutput{}, err
		}
	}
	parallel := input.Parallel
	if parallel <= 0 {
		parallel = DefaultParallelism
	}

	trace := &executor.TraceCollector{}
	res, err := service.Run(ctx, g, in,
		executor.WithMode(mode),
		executor.WithParallelism(parallel),
		executor.WithLogger(logger),
		executor.WithObserver(trace),
	)
	if err != nil {
		logger.Warn("run_pipeline failed", slog.String("pipeline", g.Name), slog.String("error", err.Error()))
		return nil, runOutput{}, fmt.Errorf("run_pipeline: %w", err)
	}

	s.mu.Lock()
	s.runs = append(s.runs, res.RunID)
	s.mu.Unlock()

	logger.Info("run_pipeline completed", slog.String("pipeline", g.Name), slog.String("run_id", res.RunID))
	return nil, runOutput{
		Result:      *res,
		Invocations: len(trace.EventsOfType(executor.EventInvokeDone)),
		Levels:      len(trace.EventsOfType(executor.EventLevelDispatch)),
	}, nil
}

// Runs returns the IDs of completed runs, oldest first.
func (s *Server) Runs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.runs...)
}

func load(def string) (*pipeline.Graph, error) {
	if strings.TrimSpace(def) == "" {
		return nil, fmt.Errorf("definition is required")
	}
	return service.Load([]byte(def))
}
