package discovery

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFiguresSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.png", "notes.txt", "c.png.bak"} {
		writeFile(t, filepath.Join(dir, name), "x")
	}
	nested := filepath.Join(dir, "nested")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(nested, "deep.png"), "x")
	if err := os.Mkdir(filepath.Join(dir, "dir.png"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, exists, err := Figures(dir, ".png")
	if err != nil {
		t.Fatalf("Figures returned error: %v", err)
	}
	if !exists {
		t.Fatalf("expected directory to exist")
	}

	want := []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")}
	if len(got) != len(want) {
		t.Fatalf("expected %d figures, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: want %q, got %q", i, want[i], got[i])
		}
	}
}

func TestFiguresAbsentDirectory(t *testing.T) {
	got, exists, err := Figures(filepath.Join(t.TempDir(), "missing"), ".png")
	if err != nil {
		t.Fatalf("Figures returned error: %v", err)
	}
	if exists || len(got) != 0 {
		t.Fatalf("expected absent directory with no figures, got exists=%v %v", exists, got)
	}
}

func TestFiguresEmptyDirectory(t *testing.T) {
	got, exists, err := Figures(t.TempDir(), ".png")
	if err != nil {
		t.Fatalf("Figures returned error: %v", err)
	}
	if !exists || len(got) != 0 {
		t.Fatalf("expected existing empty directory, got exists=%v %v", exists, got)
	}
}

func TestFiguresPathIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module_a")
	writeFile(t, path, "not a directory")

	got, exists, err := Figures(path, ".png")
	if err != nil {
		t.Fatalf("Figures returned error: %v", err)
	}
	if exists || len(got) != 0 {
		t.Fatalf("a file at the figures path must read as no directory, got exists=%v %v", exists, got)
	}
}

func TestFiguresFollowsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(t.TempDir(), "chart.png")
	writeFile(t, target, "x")
	if err := os.Symlink(target, filepath.Join(dir, "linked.png")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "gone.png"), filepath.Join(dir, "broken.png")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	got, _, err := Figures(dir, ".png")
	if err != nil {
		t.Fatalf("Figures returned error: %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "linked.png" {
		t.Fatalf("expected only the live link, got %v", got)
	}
}

func TestReportFile(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "REPORT.md")
	empty := filepath.Join(dir, "EMPTY.md")
	writeFile(t, full, "Report Content")
	writeFile(t, empty, "")

	if exists, size, err := ReportFile(full); err != nil || !exists || size != int64(len("Report Content")) {
		t.Fatalf("full report: exists=%v size=%d err=%v", exists, size, err)
	}
	if exists, size, err := ReportFile(empty); err != nil || !exists || size != 0 {
		t.Fatalf("empty report: exists=%v size=%d err=%v", exists, size, err)
	}
	if exists, _, err := ReportFile(filepath.Join(dir, "missing.md")); err != nil || exists {
		t.Fatalf("missing report: exists=%v err=%v", exists, err)
	}
}

func TestEntryExists(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.py")
	writeFile(t, entry, "print('hi')")

	if !EntryExists(entry) {
		t.Fatalf("expected entry to exist")
	}
	if EntryExists(filepath.Join(dir, "nope.py")) {
		t.Fatalf("expected missing entry")
	}
	if EntryExists("  ") {
		t.Fatalf("blank entry must not exist")
	}
}

func TestRelOrVerbatim(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "elsewhere", "x.png")

	tests := []struct {
		root string
		path string
		want string
	}{
		{root, filepath.Join(root, "figures", "module_a", "a.png"), "figures/module_a/a.png"},
		{root, outside, outside},
		{root, "figures/relative.png", "figures/relative.png"},
		{root, root, root},
		{"", "/abs/x.png", "/abs/x.png"},
	}
	for _, tt := range tests {
		if got := RelOrVerbatim(tt.root, tt.path); got != tt.want {
			t.Fatalf("RelOrVerbatim(%q, %q) = %q, want %q", tt.root, tt.path, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
