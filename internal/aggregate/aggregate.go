// Package aggregate renders the evidence-only aggregated report from the
// collected module state.
package aggregate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/bgricker/enghealth/internal/discovery"
	"github.com/bgricker/enghealth/internal/logging"
	"github.com/bgricker/enghealth/internal/report"
)

const (
	title      = "Aggregated Engineering Analysis Report"
	disclaimer = "This file is the **aggregated evidence report** produced by the pipeline. " +
		"It contains only the original conclusions, figure indices and execution status of the analysis modules.\n\n" +
		"**Note**: this report adds no new analysis or inference. " +
		"It is the sole factual input for the final narrative."
	noFigures     = "*(No figures available)*"
	missingReport = "_Original REPORT.md is missing. No evidence is available for this module._"
)

// Options configure the aggregator.
type Options struct {
	ProjectRoot string
	Modules     []report.ModuleSpec
	OutputPath  string
	Now         func() time.Time
	Logger      *zap.Logger
}

// Aggregator writes the aggregated report.
type Aggregator struct {
	opts Options
}

// New creates an aggregator.
func New(opts Options) *Aggregator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Logger = logging.OrNop(opts.Logger)
	return &Aggregator{opts: opts}
}

// Write renders the report and replaces the file at OutputPath, creating
// parent directories as needed. It returns the path written.
func (a *Aggregator) Write(collected report.Collection) (string, error) {
	doc, err := a.Render(collected)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(a.opts.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("create aggregated report dir: %w", err)
	}
	if err := os.WriteFile(a.opts.OutputPath, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write aggregated report: %w", err)
	}
	a.opts.Logger.Info("aggregated report generated", zap.String("path", a.opts.OutputPath))
	return a.opts.OutputPath, nil
}

// Render builds the aggregated document. Modules appear in configured order
// regardless of the iteration order of collected; modules absent from the
// collection render as not executed with a missing report.
func (a *Aggregator) Render(collected report.Collection) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%s\n\n", disclaimer)
	fmt.Fprintf(&b, "Generated at: %s\n\n", a.opts.Now().UTC().Format(time.RFC3339))
	b.WriteString("---\n\n")

	infos := make([]report.CollectedInfo, len(a.opts.Modules))
	for i, spec := range a.opts.Modules {
		infos[i] = lookup(spec, collected)
	}

	b.WriteString("## 0. Pipeline Execution Overview\n\n")
	b.WriteString(a.overview(infos))
	b.WriteString("\n\n---\n\n")

	for i, spec := range a.opts.Modules {
		if err := a.writeSection(&b, spec, infos[i]); err != nil {
			return "", err
		}
	}

	return b.String(), nil
}

func lookup(spec report.ModuleSpec, collected report.Collection) report.CollectedInfo {
	if info, ok := collected[spec.ID]; ok {
		return info
	}
	return report.CollectedInfo{
		Module:     spec.ID,
		ReportPath: spec.ReportPath,
		Figures:    []string{},
		Issues:     []string{report.IssueReportMissing},
	}
}

func (a *Aggregator) overview(infos []report.CollectedInfo) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Module", "Executed", "Success", "REPORT.md", "Figures", "Issues"})
	for _, info := range infos {
		issues := "None"
		if len(info.Issues) > 0 {
			issues = strings.Join(info.Issues, "; ")
		}
		t.AppendRow(table.Row{
			info.Module,
			strconv.FormatBool(info.Executed),
			strconv.FormatBool(info.Success),
			strconv.FormatBool(info.ReportExists),
			strconv.Itoa(info.FiguresCount),
			issues,
		})
	}
	return t.RenderMarkdown()
}

func (a *Aggregator) writeSection(b *strings.Builder, spec report.ModuleSpec, info report.CollectedInfo) error {
	fmt.Fprintf(b, "## %s\n\n", spec.DisplayTitle())

	b.WriteString("### Status\n\n")
	fmt.Fprintf(b, "- Executed: `%t`\n", info.Executed)
	fmt.Fprintf(b, "- Success: `%t`\n", info.Success)
	fmt.Fprintf(b, "- REPORT.md exists: `%t`\n", info.ReportExists)
	fmt.Fprintf(b, "- Figures count: `%d`\n", info.FiguresCount)
	if len(info.Issues) == 0 {
		b.WriteString("- Issues: None\n")
	} else {
		b.WriteString("- Issues:\n")
		for _, issue := range info.Issues {
			fmt.Fprintf(b, "  - %s\n", issue)
		}
	}
	b.WriteString("\n")

	b.WriteString("### Figures Index\n\n")
	if len(info.Figures) == 0 {
		b.WriteString(noFigures + "\n")
	} else {
		for _, fig := range info.Figures {
			fmt.Fprintf(b, "- `%s`\n", discovery.RelOrVerbatim(a.opts.ProjectRoot, fig))
		}
	}
	b.WriteString("\n")

	b.WriteString("### Original Report Content\n\n")
	content, ok, err := readReport(info)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", spec.ID, err)
	}
	if ok {
		fence := fenceFor(content)
		fmt.Fprintf(b, "%smarkdown\n%s\n%s\n\n", fence, content, fence)
	} else {
		b.WriteString(missingReport + "\n\n")
	}

	b.WriteString("---\n\n")
	return nil
}

// readReport returns the trimmed report text. ok is false when the report
// is recorded as missing or has disappeared since collection.
func readReport(info report.CollectedInfo) (content string, ok bool, err error) {
	if !info.ReportExists || info.ReportPath == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(info.ReportPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read report %q: %w", info.ReportPath, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// fenceFor returns a backtick fence longer than any backtick run in content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	n := longest + 1
	if n < 3 {
		n = 3
	}
	return strings.Repeat("`", n)
}
