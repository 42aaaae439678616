// Package pipeline sequences the runner, collector, aggregator and
// finalization stages for a single invocation.
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bgricker/enghealth/internal/aggregate"
	"github.com/bgricker/enghealth/internal/collector"
	"github.com/bgricker/enghealth/internal/config"
	"github.com/bgricker/enghealth/internal/filter"
	"github.com/bgricker/enghealth/internal/finalize"
	"github.com/bgricker/enghealth/internal/llm"
	"github.com/bgricker/enghealth/internal/logging"
	"github.com/bgricker/enghealth/internal/output"
	"github.com/bgricker/enghealth/internal/report"
	"github.com/bgricker/enghealth/internal/runner"
	"github.com/bgricker/enghealth/internal/version"
)

// ErrInterrupted is returned when the context is cancelled mid-run.
var ErrInterrupted = errors.New("pipeline interrupted")

// Renderer receives stage banners and per-module progress.
type Renderer interface {
	output.Progress
	output.CollectProgress
	Banner(title string) error
}

// Options configure a pipeline invocation.
type Options struct {
	Config config.Config
	// Stdout and Stderr receive module process output.
	Stdout   io.Writer
	Stderr   io.Writer
	Renderer Renderer
	Logger   *zap.Logger
	Invoker  runner.Invoker
	Client   llm.Client
	// SkipRun collects and aggregates existing deliverables without
	// executing any module.
	SkipRun bool
	Now     func() time.Time
	// Check overrides the interpreter preflight.
	Check func(report.ModuleSpec) string
}

// Outcome is everything a pipeline invocation produced.
type Outcome struct {
	RunID          string
	Specs          []report.ModuleSpec
	Results        report.RunResults
	Collected      report.Collection
	AggregatedPath string
	Final          finalize.Outcome
	Warnings       []string
	Summary        report.Summary
}

// Pipeline runs the stages in order.
type Pipeline struct {
	opts Options
}

// New creates a pipeline.
func New(opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Check == nil {
		opts.Check = version.Check
	}
	opts.Logger = logging.OrNop(opts.Logger)
	return &Pipeline{opts: opts}
}

// Run executes Runner, Collector, Aggregator and Finalization. Module
// failures and model unavailability are recorded in the Outcome; only
// environment faults and interrupts are returned as errors.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	cfg := p.opts.Config
	start := p.opts.Now()
	out := Outcome{RunID: uuid.NewString(), Specs: cfg.ModuleSpecs()}
	log := p.opts.Logger.With(zap.String("run_id", out.RunID))

	selector, err := filter.NewSelector(cfg.OnlyModules, cfg.SkipModules)
	if err != nil {
		return out, err
	}

	out.Results = report.RunResults{}
	if !p.opts.SkipRun {
		out.Warnings = p.preflight(log, selector.Filter(out.Specs))

		p.banner("Running analysis modules")
		log.Info("starting modules", zap.Int("modules", len(out.Specs)))
		r := runner.New(runner.Options{
			Stdout:    p.opts.Stdout,
			Stderr:    p.opts.Stderr,
			Invoker:   p.opts.Invoker,
			Now:       p.opts.Now,
			Logger:    log,
			Progress:  p.progress(),
			FigureExt: cfg.FigureExt,
			Select:    selector.Selected,
		})
		out.Results, err = r.Run(ctx, out.Specs)
		if err != nil {
			return out, interrupted(ctx, err)
		}
	}
	if ctx.Err() != nil {
		return out, ErrInterrupted
	}

	p.banner("Collecting deliverables")
	c := collector.New(collector.Options{
		Modules:   out.Specs,
		FigureExt: cfg.FigureExt,
		Progress:  p.collectProgress(),
		Logger:    log,
	})
	out.Collected, err = c.Collect(out.Results)
	if err != nil {
		return out, err
	}

	agg := aggregate.New(aggregate.Options{
		ProjectRoot: cfg.ProjectRoot,
		Modules:     out.Specs,
		OutputPath:  cfg.AggregatedPath(),
		Now:         p.opts.Now,
		Logger:      log,
	})
	out.AggregatedPath, err = agg.Write(out.Collected)
	if err != nil {
		return out, err
	}
	if ctx.Err() != nil {
		return out, ErrInterrupted
	}

	p.banner("Generating final report")
	fin := finalize.New(finalize.Options{
		Narrative:      cfg.HasNarrativeGeneration(),
		LLM:            cfg.LLMClientConfig(),
		PromptsDir:     cfg.PromptsPath(),
		MaxPromptChars: cfg.LLM.MaxPromptChars,
		OutputPath:     cfg.FinalPath(),
		Client:         p.opts.Client,
		Logger:         log,
	})
	out.Final, err = fin.Finalize(ctx, out.AggregatedPath)
	if err != nil {
		return out, err
	}
	if ctx.Err() != nil {
		return out, ErrInterrupted
	}

	out.Summary = report.Summarize(out.Specs, out.Collected, p.opts.Now().Sub(start))
	log.Info("pipeline completed",
		zap.String("final_report", out.Final.Path),
		zap.String("mode", out.Final.Mode),
		zap.Int("succeeded", out.Summary.Succeeded),
		zap.Int("failed", out.Summary.Failed),
	)
	return out, nil
}

func (p *Pipeline) preflight(log *zap.Logger, specs []report.ModuleSpec) []string {
	var warnings []string
	// One check per interpreter requirement.
	checked := map[string]bool{}
	for _, spec := range specs {
		key := spec.Interpreter + "\x00" + spec.InterpreterVersion
		if checked[key] {
			continue
		}
		checked[key] = true
		msg := p.opts.Check(spec)
		if msg == "" {
			continue
		}
		log.Warn("interpreter preflight", zap.String("module", spec.ID), zap.String("warning", msg))
		warnings = append(warnings, msg)
	}
	return warnings
}

func (p *Pipeline) banner(title string) {
	if p.opts.Renderer != nil {
		_ = p.opts.Renderer.Banner(title)
	}
}

func (p *Pipeline) progress() output.Progress {
	if p.opts.Renderer == nil {
		return nil
	}
	return p.opts.Renderer
}

func (p *Pipeline) collectProgress() output.CollectProgress {
	if p.opts.Renderer == nil {
		return nil
	}
	return p.opts.Renderer
}

func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return ErrInterrupted
	}
	return err
}
