package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bgricker/enghealth/internal/report"
)

// Progress receives per-module updates while the runner executes.
type Progress interface {
	StartModule(spec report.ModuleSpec) error
	CompleteModule(spec report.ModuleSpec, result report.RunResult) error
}

// CollectProgress receives per-module deliverable summaries.
type CollectProgress interface {
	RenderCollected(spec report.ModuleSpec, info report.CollectedInfo) error
}

// PrettyRenderer renders pipeline progress in a human-friendly format.
type PrettyRenderer struct {
	out io.Writer
}

// NewPretty creates a PrettyRenderer writing to the provided writer.
func NewPretty(out io.Writer) *PrettyRenderer {
	if out == nil {
		out = io.Discard
	}
	return &PrettyRenderer{out: out}
}

// Banner prints a framed stage heading.
func (p *PrettyRenderer) Banner(title string) error {
	rule := strings.Repeat("=", 60)
	_, err := fmt.Fprintf(p.out, "\n%s\n%s\n%s\n", rule, title, rule)
	return err
}

// StartModule announces a module before it runs.
func (p *PrettyRenderer) StartModule(spec report.ModuleSpec) error {
	_, err := fmt.Fprintf(p.out, "\nRunning %s ...\n", decorateName(spec.DisplayTitle(), spec.ID))
	return err
}

// CompleteModule prints the runner's view of a finished module.
func (p *PrettyRenderer) CompleteModule(spec report.ModuleSpec, res report.RunResult) error {
	status := "failed"
	if res.Success {
		status = "passed"
	} else if !res.Executed {
		status = "skipped"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s (%s)\n", statusGlyph(status), spec.ID, strings.ToUpper(statusLabel(status)), formatDuration(res.Duration))
	fmt.Fprintf(&b, "    executed       : %t\n", res.Executed)
	fmt.Fprintf(&b, "    exit_code      : %s\n", formatExitCode(res.ExitCode))
	fmt.Fprintf(&b, "    report_exists  : %t\n", res.ReportExists)
	fmt.Fprintf(&b, "    figures_count  : %d\n", res.FiguresCount)
	_, err := io.WriteString(p.out, b.String())
	return err
}

// RenderCollected prints the collector's verified view of a module.
func (p *PrettyRenderer) RenderCollected(spec report.ModuleSpec, info report.CollectedInfo) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s deliverables:\n", spec.ID)
	fmt.Fprintf(&b, "    executed       : %t\n", info.Executed)
	fmt.Fprintf(&b, "    success        : %t\n", info.Success)
	fmt.Fprintf(&b, "    report_exists  : %t\n", info.ReportExists)
	fmt.Fprintf(&b, "    figures_count  : %d\n", info.FiguresCount)
	if len(info.Issues) == 0 {
		b.WriteString("    issues         : none\n")
	} else {
		b.WriteString("    issues:\n")
		for _, issue := range info.Issues {
			fmt.Fprintf(&b, "      * %s\n", issue)
		}
	}
	_, err := io.WriteString(p.out, b.String())
	return err
}

// RenderSummary prints the closing lines of a pipeline run.
func (p *PrettyRenderer) RenderSummary(summary report.Summary, final Final, warnings []string) error {
	var b strings.Builder
	for _, w := range warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	fmt.Fprintf(&b, "\nAggregated report: %s\n", final.AggregatedPath)
	fmt.Fprintf(&b, "Final report:      %s (%s)\n", final.Path, final.Mode)
	if final.Reason != "" {
		fmt.Fprintf(&b, "    note: %s\n", indent(final.Reason, "    "))
	}
	fmt.Fprintf(&b, "SUMMARY: %d succeeded, %d failed, %d not executed, %d with issues (%s)\n",
		summary.Succeeded, summary.Failed, summary.NotExecuted, summary.WithIssues, formatDuration(summary.Duration))
	_, err := io.WriteString(p.out, b.String())
	return err
}

// Final describes the artifacts a run left behind.
type Final struct {
	AggregatedPath string `json:"aggregated_report"`
	Path           string `json:"final_report"`
	Mode           string `json:"final_mode"`
	Reason         string `json:"final_reason,omitempty"`
}

func decorateName(name, id string) string {
	if name == "" || name == id {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}

func statusGlyph(status string) string {
	switch status {
	case "passed":
		return "✓"
	case "failed":
		return "✗"
	case "skipped":
		return "-"
	default:
		return "?"
	}
}

func statusLabel(status string) string {
	switch status {
	case "passed":
		return "success"
	case "skipped":
		return "not executed"
	default:
		return status
	}
}

func formatExitCode(code *int) string {
	if code == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *code)
}

func indent(s, pad string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}
