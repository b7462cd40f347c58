package engine

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"reshape/internal/core/config"
	"reshape/internal/core/errors"
	"reshape/internal/parser"
	"reshape/internal/plan"
	"reshape/internal/project"
	"reshape/internal/resolver"
	"reshape/internal/shared/observability"
	"reshape/internal/symbols"
	"reshape/internal/transform"
)

// State is the orchestrator's position in a single invocation.
type State int

const (
	StateIdle State = iota
	StateAnalyzing
	StateValidating
	StatePlanning
	StatePlanned
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing"
	case StateValidating:
		return "validating"
	case StatePlanning:
		return "planning"
	case StatePlanned:
		return "planned"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Analysis is one immutable snapshot: the project, its findings and the
// timings that produced it. It is discarded when the invocation ends.
type Analysis struct {
	Project    *project.Project
	Findings   []resolver.Finding
	ParseFails []error
	Duration   time.Duration
}

// Close releases the syntax trees held by the snapshot.
func (a *Analysis) Close() {
	if a.Project != nil {
		a.Project.Close()
	}
}

// Engine sequences analyze, validate and plan for one refactoring
// invocation at a time. It is not safe for concurrent use; run one
// invocation to completion before starting the next.
type Engine struct {
	cfg    *config.Config
	parser *parser.Parser
	state  State
}

func New(cfg *config.Config) *Engine {
	return &Engine{
		cfg:    cfg,
		parser: parser.NewParser(parser.NewGrammarLoader()),
		state:  StateIdle,
	}
}

func (e *Engine) State() State {
	return e.state
}

// Analyze builds the project snapshot: files are parsed and their
// symbol tables built on a bounded worker pool, then the import graph
// is assembled at a single join point once every table exists.
func (e *Engine) Analyze(ctx context.Context) (*Analysis, error) {
	ctx, span := observability.Tracer.Start(ctx, "engine.Analyze", trace.WithAttributes(
		attribute.String("root", e.cfg.Project.Root),
	))
	defer span.End()

	e.state = StateAnalyzing
	started := time.Now()

	files, err := scanRoot(e.parser, e.cfg.Project.Root, e.cfg.Exclude.Dirs, e.cfg.Exclude.Files)
	if err != nil {
		e.state = StateIdle
		return nil, err
	}

	workers := e.cfg.Analysis.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}

	namer := project.NewModuleNamer(e.cfg.Project.Root)

	type result struct {
		table *symbols.FileTable
		err   error
	}

	jobs := make(chan string)
	results := make(chan result)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- e.analyzeFile(path, namer)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, path := range files {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	table := symbols.NewTable()
	var parseFails []error
	for r := range results {
		if r.err != nil {
			slog.Warn("file skipped", "error", r.err)
			parseFails = append(parseFails, r.err)
			continue
		}
		table.Add(r.table)
	}
	if err := ctx.Err(); err != nil {
		e.state = StateIdle
		return nil, err
	}

	// Single join point: cross-file resolution needs the full table.
	proj := project.Build(e.cfg.Project.Root, table)
	findings := resolver.New(proj).FindUnresolved()

	analysis := &Analysis{
		Project:    proj,
		Findings:   findings,
		ParseFails: parseFails,
		Duration:   time.Since(started),
	}

	observability.AnalysisDuration.WithLabelValues("analyze").Observe(analysis.Duration.Seconds())
	observability.ProjectFiles.Set(float64(proj.FileCount()))
	observability.ProjectBindings.Set(float64(table.BindingCount()))
	observability.UnresolvedReferences.Set(float64(len(findings)))

	slog.Info("analysis complete",
		"files", proj.FileCount(),
		"bindings", table.BindingCount(),
		"unresolved", len(findings),
		"duration", analysis.Duration)

	e.state = StateIdle
	return analysis, nil
}

func (e *Engine) analyzeFile(path string, namer *project.ModuleNamer) (r struct {
	table *symbols.FileTable
	err   error
}) {
	content, err := os.ReadFile(path)
	if err != nil {
		r.err = errors.Wrap(err, errors.CodeParseFailure, "reading "+path)
		return r
	}
	src, err := e.parser.ParseFile(path, content)
	if err != nil {
		r.err = err
		return r
	}
	r.table = symbols.BuildFile(src, namer.ModuleName(path))
	return r
}

// Plan runs one operation against a snapshot: the transform validates
// its preconditions, then emits a complete plan or nothing.
func (e *Engine) Plan(ctx context.Context, analysis *Analysis, op transform.Operation) (*plan.RewritePlan, error) {
	_, span := observability.Tracer.Start(ctx, "engine.Plan", trace.WithAttributes(
		attribute.String("kind", op.Kind()),
	))
	defer span.End()

	started := time.Now()
	tctx := transform.NewContext(analysis.Project)

	e.state = StateValidating
	if err := op.Validate(tctx); err != nil {
		e.state = StateRejected
		observability.PlansProduced.WithLabelValues(op.Kind(), "rejected").Inc()
		slog.Info("operation rejected", "kind", op.Kind(), "error", err)
		return nil, err
	}

	e.state = StatePlanning
	p, err := op.Plan(tctx)
	if err != nil {
		e.state = StateRejected
		observability.PlansProduced.WithLabelValues(op.Kind(), "rejected").Inc()
		slog.Info("operation rejected", "kind", op.Kind(), "error", err)
		return nil, err
	}

	e.state = StatePlanned
	observability.PlansProduced.WithLabelValues(op.Kind(), "planned").Inc()
	observability.PlanEdits.Observe(float64(p.EditCount()))
	observability.AnalysisDuration.WithLabelValues("plan").Observe(time.Since(started).Seconds())

	slog.Info("plan produced",
		"kind", op.Kind(),
		"plan_id", p.ID,
		"files", len(p.Files),
		"edits", p.EditCount(),
		"duration", time.Since(started))
	return p, nil
}
