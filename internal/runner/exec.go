package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bgricker/enghealth/internal/discovery"
	"github.com/bgricker/enghealth/internal/logging"
	"github.com/bgricker/enghealth/internal/output"
	"github.com/bgricker/enghealth/internal/report"
)

// LaunchFailed is the exit code recorded when a module process could not be
// started or waited on.
const LaunchFailed = -1

// Invoker launches a single module and reports its exit code. A non-nil
// error means the process could not be launched; the code is then ignored.
type Invoker interface {
	Invoke(ctx context.Context, spec report.ModuleSpec, stdout, stderr io.Writer) (int, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, spec report.ModuleSpec, stdout, stderr io.Writer) (int, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, spec report.ModuleSpec, stdout, stderr io.Writer) (int, error) {
	return f(ctx, spec, stdout, stderr)
}

// DefaultKillDelay is how long a cancelled module may take to exit after
// SIGTERM before it is killed.
const DefaultKillDelay = 5 * time.Second

// ExecInvoker runs module entries as child processes.
type ExecInvoker struct {
	// Dir is the working directory of the child. Empty inherits ours.
	Dir string
	// Env is the base environment. Nil uses os.Environ.
	Env []string
	// KillDelay overrides DefaultKillDelay.
	KillDelay time.Duration
}

// Invoke starts the module and waits for it. There is no deadline: a module
// runs until it exits on its own, unless ctx is cancelled, in which case the
// child receives SIGTERM and is killed after KillDelay.
func (e ExecInvoker) Invoke(ctx context.Context, spec report.ModuleSpec, stdout, stderr io.Writer) (int, error) {
	args := commandArgs(spec)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = e.KillDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultKillDelay
	}
	cmd.Dir = e.Dir
	base := e.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = mergeEnv(base, moduleEnv(spec))
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitCode(exitErr), nil
	}
	// A background child still holding the output pipes; the module itself exited.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return LaunchFailed, err
}

func commandArgs(spec report.ModuleSpec) []string {
	fields := strings.Fields(spec.Interpreter)
	if len(fields) == 0 {
		return []string{spec.Entry}
	}
	return append(fields, spec.Entry)
}

func moduleEnv(spec report.ModuleSpec) map[string]string {
	return map[string]string{
		"ENGHEALTH_MODULE":      spec.ID,
		"ENGHEALTH_REPORT_PATH": spec.ReportPath,
		"ENGHEALTH_FIGURES_DIR": spec.FiguresPath,
	}
}

// Options configure how the runner executes modules.
type Options struct {
	Stdout    io.Writer
	Stderr    io.Writer
	Invoker   Invoker
	Now       func() time.Time
	Logger    *zap.Logger
	Progress  output.Progress
	FigureExt string
	// Select reports whether a module should run. Deselected modules are
	// left out of the results entirely.
	Select func(report.ModuleSpec) bool
}

// Runner executes analysis modules sequentially.
type Runner struct {
	opts Options
}

// New creates a runner with the supplied options.
func New(opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Invoker == nil {
		opts.Invoker = ExecInvoker{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FigureExt == "" {
		opts.FigureExt = ".png"
	}
	opts.Logger = logging.OrNop(opts.Logger)
	return &Runner{opts: opts}
}

// Run executes each selected module in order and records one RunResult per
// module. A failing module never stops the sequence. When ctx is cancelled
// the results gathered so far are returned together with ctx.Err().
func (r *Runner) Run(ctx context.Context, specs []report.ModuleSpec) (report.RunResults, error) {
	results := make(report.RunResults, len(specs))

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if r.opts.Select != nil && !r.opts.Select(spec) {
			r.opts.Logger.Debug("module deselected", zap.String("module", spec.ID))
			continue
		}

		if r.opts.Progress != nil {
			if err := r.opts.Progress.StartModule(spec); err != nil {
				return results, err
			}
		}

		res := r.runModule(ctx, spec)
		results[spec.ID] = res

		if r.opts.Progress != nil {
			if err := r.opts.Progress.CompleteModule(spec, res); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}

func (r *Runner) runModule(ctx context.Context, spec report.ModuleSpec) report.RunResult {
	log := r.opts.Logger.With(zap.String("module", spec.ID))

	if !discovery.EntryExists(spec.Entry) {
		log.Warn("entry script not found", zap.String("entry", spec.Entry))
		return r.glance(spec, report.NewRunResult(spec, false, nil, 0))
	}

	tail := &tailBuffer{max: 20}
	start := r.opts.Now()
	code, err := r.opts.Invoker.Invoke(ctx, spec, r.opts.Stdout, io.MultiWriter(r.opts.Stderr, tail))
	elapsed := r.opts.Now().Sub(start)
	if err != nil {
		log.Warn("failed to execute module", zap.Error(err))
		code = LaunchFailed
	}

	res := report.NewRunResult(spec, true, &code, elapsed)
	if !res.Success {
		log.Debug("module exited unsuccessfully", zap.Int("exit_code", code), zap.String("stderr_tail", tail.String()))
	}
	return r.glance(spec, res)
}

// glance records a quick look at the deliverables. Filesystem errors leave
// the defaults in place; the collector verifies properly.
func (r *Runner) glance(spec report.ModuleSpec, res report.RunResult) report.RunResult {
	if exists, _, err := discovery.ReportFile(spec.ReportPath); err == nil {
		res.ReportExists = exists
	}
	if figures, _, err := discovery.Figures(spec.FiguresPath, r.opts.FigureExt); err == nil {
		res.FiguresCount = len(figures)
	}
	return res
}

func mergeEnv(base []string, overlays ...map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(overlays)*4)
	for _, kv := range base {
		if idx := strings.Index(kv, "="); idx != -1 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}
	for _, overlay := range overlays {
		for k, v := range overlay {
			envMap[k] = v
		}
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, envMap[k]))
	}
	return out
}

func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(interface{ ExitStatus() int }); ok {
		return status.ExitStatus()
	}
	return exitErr.ExitCode()
}

// maxPartialLine caps an unterminated line held by tailBuffer.
const maxPartialLine = 4096

// tailBuffer keeps the last max lines written to it. Older lines are
// dropped as new ones arrive.
type tailBuffer struct {
	max     int
	lines   []string
	partial string
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	parts := strings.Split(t.partial+string(p), "\n")
	t.partial = parts[len(parts)-1]
	if len(t.partial) > maxPartialLine {
		t.partial = t.partial[len(t.partial)-maxPartialLine:]
	}
	t.lines = append(t.lines, parts[:len(parts)-1]...)
	if len(t.lines) > t.max {
		t.lines = append(t.lines[:0:0], t.lines[len(t.lines)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	lines := t.lines
	if t.partial != "" {
		lines = append(lines[:len(lines):len(lines)], t.partial)
	}
	return tailLines(strings.Join(lines, "\n"), t.max)
}

func tailLines(input string, maxLines int) string {
	if input == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}
