package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"reshape/internal/core/config"
	"reshape/internal/core/watcher"
	"reshape/internal/data/history"
	"reshape/internal/engine"
	"reshape/internal/plan"
	"reshape/internal/shared/util"
	"reshape/internal/transform"
)

type app struct {
	cfg     *config.Config
	engine  *engine.Engine
	history *history.Store
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:    cfg,
		engine: engine.New(cfg),
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			if history.IsCorruptError(err) {
				return nil, fmt.Errorf("history database %q is corrupt, remove it and retry: %w", cfg.History.Path, err)
			}
			return nil, err
		}
		a.history = store
	}

	return a, nil
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			slog.Warn("failed to close history store", "error", err)
		}
	}
}

func (a *app) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "analyze":
		return a.cmdAnalyze(ctx, args)
	case "plan":
		return a.cmdPlan(ctx, args)
	case "kinds":
		return a.cmdKinds(args)
	case "watch":
		return a.cmdWatch(ctx, args)
	default:
		return fmt.Errorf("unknown command %q, see reshape -h", command)
	}
}

func (a *app) cmdAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	findingsOnly := fs.Bool("findings", false, "Only list unresolved references")
	if err := fs.Parse(args); err != nil {
		return err
	}

	analysis, err := a.engine.Analyze(ctx)
	if err != nil {
		return err
	}
	defer analysis.Close()

	if !*findingsOnly {
		fmt.Printf("root: %s\n", a.cfg.Project.Root)
		fmt.Printf("files: %d\n", analysis.Project.FileCount())
		fmt.Printf("bindings: %d\n", analysis.Project.Table.BindingCount())
		fmt.Printf("skipped: %d\n", len(analysis.ParseFails))
		fmt.Printf("unresolved: %d\n", len(analysis.Findings))
		fmt.Printf("duration: %s\n", analysis.Duration.Round(time.Millisecond))
	}

	for _, f := range analysis.Findings {
		fmt.Printf("%s:%d:%d: %s (%s)\n", f.Path, f.Location.Line, f.Location.Column, f.Name, f.Reason)
	}
	return nil
}

// paramFlags collects repeated -p key=value arguments.
type paramFlags struct {
	args transform.Args
}

func (p *paramFlags) String() string {
	pairs := make([]string, 0, len(p.args))
	for k, v := range p.args {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (p *paramFlags) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("parameter must be key=value, got %q", value)
	}
	if p.args == nil {
		p.args = make(transform.Args)
	}
	p.args[strings.TrimSpace(k)] = v
	return nil
}

func (a *app) cmdPlan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	params := &paramFlags{args: make(transform.Args)}
	fs.Var(params, "p", "Operation parameter as key=value (repeatable)")
	asJSON := fs.Bool("json", false, "Print the plan as JSON instead of a preview")
	outPath := fs.String("out", "", "Write the serialized plan to a file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: reshape plan <kind> [-p key=value ...]")
	}
	kind := fs.Arg(0)

	op, err := transform.Build(kind, params.args)
	if err != nil {
		return err
	}

	analysis, err := a.engine.Analyze(ctx)
	if err != nil {
		return err
	}
	defer analysis.Close()

	p, planErr := a.engine.Plan(ctx, analysis, op)
	a.record(kind, params.args, p, planErr)
	if planErr != nil {
		return planErr
	}

	if *outPath != "" {
		data, err := p.Serialize()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*outPath, data, 0o644); err != nil {
			return fmt.Errorf("write plan to %q: %w", *outPath, err)
		}
	}

	if *asJSON {
		data, err := p.Serialize()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	preview, err := p.Preview(planContents(p))
	if err != nil {
		return err
	}
	fmt.Print(preview)
	return nil
}

func (a *app) cmdKinds(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: reshape kinds")
	}
	for _, kind := range transform.Kinds() {
		fmt.Println(kind)
	}
	return nil
}

// cmdWatch re-runs analysis when watched files change. With -plan it
// also reports whether a previously produced plan still applies cleanly
// after each change batch.
func (a *app) cmdWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	planPath := fs.String("plan", "", "Serialized plan to re-check after each change")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var pending *plan.RewritePlan
	if *planPath != "" {
		data, err := os.ReadFile(*planPath)
		if err != nil {
			return fmt.Errorf("read plan %q: %w", *planPath, err)
		}
		pending, err = plan.Deserialize(data)
		if err != nil {
			return err
		}
	}

	limiter := util.NewLimiter(a.cfg.Watch.RateLimit, 1)

	changes := make(chan []string, 8)
	w, err := watcher.NewWatcher(a.cfg.Watch.Debounce, a.cfg.Exclude.Dirs, a.cfg.Exclude.Files, func(paths []string) {
		changes <- paths
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Watch(a.cfg.Project.Root); err != nil {
		return err
	}
	slog.Info("watching for changes", "root", a.cfg.Project.Root)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case paths := <-changes:
			slog.Info("detected changes", "count", len(paths))
			if err := limiter.Wait(ctx, 1); err != nil {
				return err
			}

			analysis, err := a.engine.Analyze(ctx)
			if err != nil {
				slog.Error("re-analysis failed", "error", err)
				continue
			}
			slog.Info("re-analysis complete",
				"files", analysis.Project.FileCount(),
				"unresolved", len(analysis.Findings))

			if pending != nil {
				if stale := stalePlanFiles(pending); len(stale) > 0 {
					slog.Warn("pending plan is stale", "plan_id", pending.ID, "files", stale)
				} else {
					slog.Info("pending plan still applies", "plan_id", pending.ID)
				}
			}
			analysis.Close()
		}
	}
}

// record writes the invocation to the audit log when history is on.
func (a *app) record(kind string, args transform.Args, p *plan.RewritePlan, planErr error) {
	if a.history == nil {
		return
	}

	rec := history.Record{
		Kind:   kind,
		Target: args["target"],
	}
	if rec.Target == "" {
		rec.Target = args["path"]
	}

	if planErr != nil {
		rec.PlanID = "rejected-" + time.Now().UTC().Format("20060102T150405.000000000")
		rec.Outcome = history.OutcomeRejected
		rec.Reason = planErr.Error()
	} else {
		rec.PlanID = p.ID
		rec.Outcome = history.OutcomePlanned
		rec.FileCount = len(p.Files)
		rec.EditCount = p.EditCount()
	}

	if err := a.history.SaveRecord(rec); err != nil {
		slog.Warn("failed to record plan history", "error", err)
	}
}

// planContents loads the current on-disk contents of every file a plan
// touches.
func planContents(p *plan.RewritePlan) map[string][]byte {
	contents := make(map[string][]byte, len(p.Files))
	for _, fp := range p.Files {
		data, err := os.ReadFile(fp.Path)
		if err != nil {
			continue
		}
		contents[fp.Path] = data
	}
	return contents
}

// stalePlanFiles reports the files whose current contents no longer
// match the text the plan's edits were computed against.
func stalePlanFiles(p *plan.RewritePlan) []string {
	var stale []string
	for _, fp := range p.Files {
		data, err := os.ReadFile(fp.Path)
		if err != nil {
			stale = append(stale, fp.Path)
			continue
		}
		if _, err := plan.Apply(data, fp.Edits); err != nil {
			stale = append(stale, fp.Path)
		}
	}
	return stale
}
