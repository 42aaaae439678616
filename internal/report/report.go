package report

import (
	"math"
	"sort"
	"time"
)

// Issue strings recorded by the collector. Order of detection is fixed.
const (
	IssueReportMissing = "REPORT.md missing"
	IssueReportEmpty   = "REPORT.md is empty"
	IssueNoFigures     = "No figures found"
)

// ModuleSpec describes one analysis module and where its deliverables land.
type ModuleSpec struct {
	ID                 string `json:"id"`
	Title              string `json:"title,omitempty"`
	Entry              string `json:"entry"`
	Interpreter        string `json:"interpreter,omitempty"`
	InterpreterVersion string `json:"interpreter_version,omitempty"`
	ReportPath         string `json:"report_path"`
	FiguresPath        string `json:"figures_path"`
}

// DisplayTitle returns the human readable section title for the module.
func (s ModuleSpec) DisplayTitle() string {
	if s.Title == "" {
		return s.ID
	}
	return s.Title
}

// RunResult captures the outcome of executing a single module.
type RunResult struct {
	Module      string        `json:"module"`
	Executed    bool          `json:"executed"`
	ExitCode    *int          `json:"exit_code"`
	Success     bool          `json:"success"`
	Duration    time.Duration `json:"-"`
	DurationSec float64       `json:"duration_sec"`
	ReportPath  string        `json:"report_path"`
	FiguresPath string        `json:"figures_path"`

	// Post-run glance at the deliverables. The collector re-verifies them.
	ReportExists bool `json:"report_exists"`
	FiguresCount int  `json:"figures_count"`
}

// NewRunResult builds a RunResult for spec, deriving Success from the
// execution facts. exitCode is nil when no launch was attempted.
func NewRunResult(spec ModuleSpec, executed bool, exitCode *int, duration time.Duration) RunResult {
	if !executed {
		duration = 0
	}
	var code *int
	if exitCode != nil {
		v := *exitCode
		code = &v
	}
	return RunResult{
		Module:      spec.ID,
		Executed:    executed,
		ExitCode:    code,
		Success:     executed && code != nil && *code == 0,
		Duration:    duration,
		DurationSec: math.Round(duration.Seconds()*100) / 100,
		ReportPath:  spec.ReportPath,
		FiguresPath: spec.FiguresPath,
	}
}

// RunResults maps module identifiers to their run outcome.
type RunResults map[string]RunResult

// Deliverables are the filesystem facts observed for one module.
type Deliverables struct {
	ReportExists     bool
	ReportSize       int64
	FiguresDirExists bool
	Figures          []string
}

// DetectIssues evaluates every integrity rule against d and returns the
// issues that apply, in fixed order. The result is never nil.
func DetectIssues(d Deliverables) []string {
	issues := make([]string, 0, 3)
	if !d.ReportExists {
		issues = append(issues, IssueReportMissing)
	}
	if d.ReportExists && d.ReportSize == 0 {
		issues = append(issues, IssueReportEmpty)
	}
	if d.FiguresDirExists && len(d.Figures) == 0 {
		issues = append(issues, IssueNoFigures)
	}
	return issues
}

// CollectedInfo is the verified deliverable state of a module.
type CollectedInfo struct {
	Module       string   `json:"module"`
	Executed     bool     `json:"executed"`
	Success      bool     `json:"success"`
	ExitCode     *int     `json:"exit_code"`
	ReportExists bool     `json:"report_exists"`
	ReportPath   string   `json:"report_path"`
	Figures      []string `json:"figures"`
	FiguresCount int      `json:"figures_count"`
	Issues       []string `json:"issues"`
}

// NewCollectedInfo merges the runner's view of a module with the observed
// deliverables. When ran is false the module is treated as never executed.
func NewCollectedInfo(spec ModuleSpec, run RunResult, ran bool, d Deliverables) CollectedInfo {
	figures := append([]string{}, d.Figures...)
	sort.Strings(figures)
	d.Figures = figures

	info := CollectedInfo{
		Module:       spec.ID,
		ReportExists: d.ReportExists,
		ReportPath:   spec.ReportPath,
		Figures:      figures,
		FiguresCount: len(figures),
		Issues:       DetectIssues(d),
	}
	if ran {
		info.Executed = run.Executed
		info.Success = run.Success
		if run.ExitCode != nil {
			v := *run.ExitCode
			info.ExitCode = &v
		}
	}
	return info
}

// Collection maps module identifiers to verified deliverable state.
type Collection map[string]CollectedInfo

// Summary aggregates module health counts for a pipeline run.
type Summary struct {
	Modules     int           `json:"modules"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	NotExecuted int           `json:"not_executed"`
	WithIssues  int           `json:"with_issues"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
}

// Summarize counts outcomes across specs using the collected state.
func Summarize(specs []ModuleSpec, collected Collection, duration time.Duration) Summary {
	summary := Summary{Modules: len(specs), Duration: duration, DurationMS: duration.Milliseconds()}
	for _, spec := range specs {
		info := collected[spec.ID]
		switch {
		case !info.Executed:
			summary.NotExecuted++
		case info.Success:
			summary.Succeeded++
		default:
			summary.Failed++
		}
		if len(info.Issues) > 0 {
			summary.WithIssues++
		}
	}
	return summary
}
