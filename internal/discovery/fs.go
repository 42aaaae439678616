package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Figures returns the regular files directly inside dir whose name ends in
// ext, as absolute paths sorted lexicographically. exists reports whether dir
// is present; an absent directory is not an error.
func Figures(dir, ext string) (paths []string, exists bool, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, false, fmt.Errorf("resolve figures dir %q: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat figures dir %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, false, nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, true, fmt.Errorf("read figures dir %q: %w", abs, err)
	}

	paths = make([]string, 0, len(entries))
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		full := filepath.Join(abs, entry.Name())
		if !isRegular(entry, full) {
			continue
		}
		paths = append(paths, full)
	}
	sort.Strings(paths)

	return paths, true, nil
}

// isRegular follows symlinks so linked charts still count.
func isRegular(entry fs.DirEntry, full string) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(full)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// ReportFile stats a module report. A missing file is reported through
// exists; any other stat failure is returned.
func ReportFile(path string) (exists bool, size int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("stat report %q: %w", path, err)
	}
	return true, info.Size(), nil
}

// EntryExists reports whether a module entry point is present on disk.
// Stat failures other than "not found" count as present so the launch
// attempt surfaces them.
func EntryExists(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// RelOrVerbatim renders path relative to root using forward slashes. Paths
// that cannot be expressed underneath root are returned unchanged.
func RelOrVerbatim(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	rel = filepath.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}
