// Package engine orchestrates one grading run end-to-end: resolve the build
// tool, ensure its sandbox container, scaffold the project, copy it in, run
// the tests under timeout and stuck detection, copy the reports back, and
// parse them, with cleanup guaranteed regardless of where the run stopped.
package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"classroom-grader/internal/buildtool"
	"classroom-grader/internal/grading"
	"classroom-grader/internal/monitor"
	"classroom-grader/internal/report"
	"classroom-grader/internal/sandbox"
	"classroom-grader/internal/scaffold"
)

// SandboxPool is the slice of the sandbox pool the engine runs on.
type SandboxPool interface {
	EnsureRunning(ctx context.Context, kind string) (sandbox.Container, error)
	Exec(ctx context.Context, name, command string, timeout time.Duration) (sandbox.ProcessResult, error)
	CopyIn(ctx context.Context, name, localDir, remotePath string) error
	CopyOut(ctx context.Context, name, remotePath, localDir string) error
	CleanupWorkspace(ctx context.Context, name, remotePath string)
}

// Options configures the engine.
type Options struct {
	// ExecTimeout is the hard wall-clock budget for the test command.
	ExecTimeout time.Duration
	// WorkspaceRoot is the container path under which run workspaces are
	// created, one per run id.
	WorkspaceRoot string
}

// Engine executes grading runs against the shared sandbox pool.
type Engine struct {
	pool    SandboxPool
	tools   *buildtool.Registry
	opts    Options
	janitor *Janitor
	metrics *monitor.Metrics
	tracer  *monitor.Tracer
}

// New creates an engine. metrics may be nil.
func New(pool SandboxPool, tools *buildtool.Registry, opts Options, metrics *monitor.Metrics) *Engine {
	if opts.ExecTimeout == 0 {
		opts.ExecTimeout = 180 * time.Second
	}
	if opts.WorkspaceRoot == "" {
		opts.WorkspaceRoot = "/workspace"
	}
	e := &Engine{
		pool:    pool,
		tools:   tools,
		opts:    opts,
		janitor: NewJanitor(pool, 256),
		metrics: metrics,
		tracer:  monitor.NewTracer(),
	}
	e.janitor.Start()
	return e
}

// Close drains pending cleanups.
func (e *Engine) Close() {
	e.janitor.Flush(30 * time.Second)
}

// RunTests executes one grading run. It never returns an error for a
// well-formed request: every internal fault terminates in a structured
// failure response with Success=false and ExitCode=-1.
func (e *Engine) RunTests(ctx context.Context, req *grading.Request) (resp *Response) {
	runID := uuid.New().String()
	start := time.Now()

	tool := e.tools.Resolve(req.Tool)
	logger := log.With().
		Str("run_id", runID).
		Str("assignment", req.AssignmentID).
		Str("tool", tool.Name()).
		Logger()

	ctx, span := e.tracer.StartSpan(ctx, "run_tests",
		monitor.AttrRunID.String(runID),
		monitor.AttrTool.String(tool.Name()),
		monitor.AttrAssignment.String(req.AssignmentID),
	)
	defer span.End()

	if e.metrics != nil {
		e.metrics.ActiveGradings.Inc()
		defer e.metrics.ActiveGradings.Dec()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("grading run panicked")
			resp = e.failureResponse(runID, tool.Name(), start, fmt.Errorf("internal error: %v", r))
		}
		status := "failed"
		if resp.Success {
			status = "completed"
		}
		if resp.TimedOut {
			status = "timed_out"
		}
		if e.metrics != nil {
			e.metrics.GradingsTotal.WithLabelValues(tool.Name(), status).Inc()
			e.metrics.GradingDuration.WithLabelValues(tool.Name()).Observe(time.Since(start).Seconds())
		}
		logger.Info().
			Str("status", status).
			Int("exit_code", resp.ExitCode).
			Dur("duration", resp.ExecutionTime).
			Int("suites", len(resp.Suites)).
			Msg("grading run finished")
	}()

	logger.Info().Msg("grading run requested")

	resp, err := e.run(ctx, runID, tool, req, logger)
	if err != nil {
		logger.Error().Err(err).Msg("grading run failed")
		resp = e.failureResponse(runID, tool.Name(), start, err)
	}
	return resp
}

func (e *Engine) run(ctx context.Context, runID string, tool buildtool.Tool, req *grading.Request, logger zerolog.Logger) (*Response, error) {
	start := time.Now()

	// Cleanup fires after the response is assembled or after any failure,
	// whichever state the run reached. The janitor runs it asynchronously;
	// nothing the caller observes depends on it.
	task := cleanupTask{runID: runID}
	defer func() { e.janitor.Enqueue(task) }()

	container, err := e.pool.EnsureRunning(ctx, tool.Name())
	if err != nil {
		return nil, &GradingError{RunID: runID, Op: "ensure_container", Err: err}
	}

	localDir, err := os.MkdirTemp("", "grading-"+runID+"-*")
	if err != nil {
		return nil, &GradingError{RunID: runID, Op: "create_temp_dir", Err: err}
	}
	task.localDir = localDir

	if err := scaffold.Setup(localDir, req, tool); err != nil {
		return nil, &GradingError{RunID: runID, Op: "scaffold", Err: err}
	}

	// The workspace path carries the run id: concurrent runs against the
	// same container never collide on disk even though their execs
	// serialize.
	remote := path.Join(e.opts.WorkspaceRoot, "run-"+runID)
	task.container = container.Name
	task.remote = remote

	if err := e.pool.CopyIn(ctx, container.Name, localDir, remote); err != nil {
		return nil, &GradingError{RunID: runID, Op: "copy_in", Err: err}
	}

	command := tool.TestCommand(remote)
	logger.Debug().Str("command", command).Msg("executing test command")

	result, err := e.pool.Exec(ctx, container.Name, command, e.opts.ExecTimeout)
	if err != nil {
		return nil, &GradingError{RunID: runID, Op: "exec", Err: err}
	}
	if e.metrics != nil {
		termination := "exited"
		if result.TimedOut {
			termination = "killed"
		}
		e.metrics.SandboxExecs.WithLabelValues(tool.Name(), termination).Inc()
		e.metrics.SandboxExecTime.WithLabelValues(tool.Name()).Observe(result.Duration.Seconds())
	}

	suites := e.collectReports(ctx, container.Name, remote, localDir, tool, result.Output, logger)
	compileErrs := report.ExtractCompilationErrors(result.Output)
	if e.metrics != nil {
		var cases int
		for _, s := range suites {
			cases += s.Total
		}
		e.metrics.ParsedTestCases.Observe(float64(cases))
	}

	resp := &Response{
		RunID:             runID,
		Tool:              tool.Name(),
		Success:           result.Success,
		ExitCode:          result.ExitCode,
		Output:            result.Output,
		TimedOut:          result.TimedOut,
		ExecutionTime:     time.Since(start),
		Suites:            suites,
		CompilationErrors: compileErrs,
	}
	if result.TimedOut {
		resp.Error = fmt.Sprintf("test execution was terminated after %s without completing", result.Duration.Round(time.Second))
	}
	return resp, nil
}

// collectReports copies out every supported tool's report-directory
// convention (a tool that wasn't actually used produces no reports, which
// must not fail the run), then parses the resolved tool's reports first,
// falling back to the other conventions, and finally to the raw output
// itself.
func (e *Engine) collectReports(ctx context.Context, containerName, remote, localDir string, resolved buildtool.Tool, rawOutput string, logger zerolog.Logger) []report.TestSuiteResult {
	kinds := append([]string{resolved.Name()}, otherKinds(e.tools, resolved.Name())...)

	dirs := make(map[string]string, len(kinds))
	for _, kind := range kinds {
		t, err := e.tools.Get(kind)
		if err != nil {
			continue
		}
		local := filepath.Join(localDir, "reports", kind)
		if err := e.pool.CopyOut(ctx, containerName, path.Join(remote, t.ReportDir()), local); err != nil {
			logger.Warn().Err(err).Str("kind", kind).Msg("report copy-out failed")
			continue
		}
		dirs[kind] = local
	}

	for _, kind := range kinds {
		dir, ok := dirs[kind]
		if !ok {
			continue
		}
		if suites := report.ParseDir(dir); len(suites) > 0 {
			return suites
		}
	}

	return report.Parse(rawOutput)
}

func otherKinds(reg *buildtool.Registry, resolved string) []string {
	var rest []string
	for _, k := range reg.Kinds() {
		if k != resolved {
			rest = append(rest, k)
		}
	}
	return rest
}

func (e *Engine) failureResponse(runID, tool string, start time.Time, err error) *Response {
	return &Response{
		RunID:         runID,
		Tool:          tool,
		Success:       false,
		ExitCode:      -1,
		Error:         err.Error(),
		ExecutionTime: time.Since(start),
	}
}
