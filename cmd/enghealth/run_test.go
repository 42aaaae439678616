package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/bgricker/enghealth/internal/finalize"
	"github.com/bgricker/enghealth/internal/output"
	"github.com/bgricker/enghealth/internal/pipeline"
)

const projectConfig = `
modules:
  - id: module_a
    title: "Module A – Code Quality & Risk"
    entry: scripts/module_a/run.sh
  - id: module_b
    title: "Module B – Development Efficiency & Rhythm"
    entry: scripts/module_b/run.sh
  - id: module_c
    title: "Module C – Governance & Engineering Practice"
    entry: scripts/module_c/run.sh
llm:
  env_file: none.env
`

// newProject lays out a project whose module_a succeeds with a report and
// two charts, module_b exits 2 without output, and module_c has no entry.
func newProject(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("project fixtures use POSIX shell scripts")
	}
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".enghealth.yml"), projectConfig, 0o644)
	writeFile(t, filepath.Join(root, "scripts", "module_a", "run.sh"), `#!/bin/sh
mkdir -p "$ENGHEALTH_FIGURES_DIR" "$(dirname "$ENGHEALTH_REPORT_PATH")"
printf '# Module A\n\nNo high-risk findings.\n' > "$ENGHEALTH_REPORT_PATH"
: > "$ENGHEALTH_FIGURES_DIR/b.png"
: > "$ENGHEALTH_FIGURES_DIR/a.png"
echo "module a done"
`, 0o755)
	writeFile(t, filepath.Join(root, "scripts", "module_b", "run.sh"), "#!/bin/sh\necho 'boom' >&2\nexit 2\n", 0o755)
	return root
}

func TestRunCommandPretty(t *testing.T) {
	root := newProject(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--root", root, "--no-llm"})
	out := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errBuf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("command execute: %v\nstderr: %s", err, errBuf.String())
	}

	stdout := out.String()
	for _, want := range []string{
		"module a done",
		"✓ module_a SUCCESS",
		"✗ module_b FAILED",
		"- module_c NOT EXECUTED",
		"Final report:      docs/FINAL_REPORT.md (fallback)",
		"SUMMARY: 1 succeeded, 1 failed, 1 not executed, 2 with issues",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("expected %q in output, got %q", want, stdout)
		}
	}
	if !strings.Contains(errBuf.String(), "entry script not found") {
		t.Fatalf("expected missing entry warning on stderr, got %q", errBuf.String())
	}

	aggregated := readFile(t, filepath.Join(root, "data", "module_d", "AGGREGATED_REPORT.md"))
	if !strings.Contains(aggregated, "| module_a | true | true | true | 2 | None |") {
		t.Fatalf("unexpected overview:\n%s", aggregated)
	}
	final := readFile(t, filepath.Join(root, "docs", "FINAL_REPORT.md"))
	if final != finalize.FallbackHeader+aggregated {
		t.Fatalf("final report is not the evidence-only copy")
	}
}

func TestRunCommandJSON(t *testing.T) {
	root := newProject(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--root", root, "--no-llm", "--format", "json", "--skip-module", "module_b"})
	out := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errBuf)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("command execute: %v\nstderr: %s", err, errBuf.String())
	}

	var decoded output.Report
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("stdout is not a single JSON document: %v\n%s", err, out.String())
	}
	if decoded.RunID == "" || decoded.Final == nil || decoded.Final.Mode != finalize.ModeFallback {
		t.Fatalf("unexpected report: %+v", decoded)
	}
	if len(decoded.Modules) != 3 {
		t.Fatalf("expected 3 modules, got %d", len(decoded.Modules))
	}
	if decoded.Modules[1].Module != "module_b" || decoded.Modules[1].Executed {
		t.Fatalf("skipped module must be collected as not executed: %+v", decoded.Modules[1])
	}
	if len(decoded.Runs) != 2 {
		t.Fatalf("expected runs for module_a and module_c only, got %+v", decoded.Runs)
	}
	if !strings.Contains(errBuf.String(), "module a done") {
		t.Fatalf("module output should go to stderr in json mode, got %q", errBuf.String())
	}
}

func TestRunCommandSkipRun(t *testing.T) {
	root := newProject(t)
	writeFile(t, filepath.Join(root, "data", "module_c", "REPORT.md"), "# Old C\n", 0o644)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--root", root, "--no-llm", "--skip-run"})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("command execute: %v", err)
	}
	if strings.Contains(out.String(), "module a done") {
		t.Fatalf("modules must not run with --skip-run")
	}
	aggregated := readFile(t, filepath.Join(root, "data", "module_d", "AGGREGATED_REPORT.md"))
	if !strings.Contains(aggregated, "```markdown\n# Old C\n```") {
		t.Fatalf("existing report not aggregated:\n%s", aggregated)
	}
}

func TestRunCommandInvalidFormat(t *testing.T) {
	root := newProject(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"run", "--root", root, "--format", "xml"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestCollectCommand(t *testing.T) {
	root := newProject(t)
	writeFile(t, filepath.Join(root, "data", "module_a", "REPORT.md"), "", 0o644)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"collect", "--root", root})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("command execute: %v", err)
	}
	stdout := out.String()
	if !strings.Contains(stdout, "* REPORT.md is empty") || !strings.Contains(stdout, "3 modules, 3 with issues") {
		t.Fatalf("unexpected collect output %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(root, "data", "module_d")); !os.IsNotExist(err) {
		t.Fatalf("collect must not write the aggregated report")
	}
}

func TestShowCommand(t *testing.T) {
	root := newProject(t)
	writeFile(t, filepath.Join(root, "docs", "FINAL_REPORT.md"), "# Final\n\nNarrative body.\n", 0o644)

	for _, args := range [][]string{
		{"show", "--root", root, "--raw"},
		{"show", "--root", root, "--style", "notty"},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("%v: command execute: %v", args, err)
		}
		if !strings.Contains(out.String(), "Narrative body.") {
			t.Fatalf("%v: unexpected output %q", args, out.String())
		}
	}
}

func TestShowCommandMissingReport(t *testing.T) {
	root := newProject(t)

	cmd := newRootCmd()
	cmd.SetArgs([]string{"show", "--root", root, "--aggregated"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "data/module_d/AGGREGATED_REPORT.md") {
		t.Fatalf("expected missing report error, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{pipeline.ErrInterrupted, 130},
		{fmt.Errorf("wrapped: %w", pipeline.ErrInterrupted), 130},
		{errors.New("write final report: permission denied"), 1},
	}
	for _, tt := range tests {
		stderr := &bytes.Buffer{}
		if got := exitCode(tt.err, stderr); got != tt.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
		if tt.err != nil && stderr.Len() == 0 {
			t.Fatalf("expected a message for %v", tt.err)
		}
	}
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
