package version

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/bgricker/enghealth/internal/report"
)

// Info captures an interpreter version installed on the system.
type Info struct {
	Name    string
	Version string
}

var versionRegex = regexp.MustCompile(`(\d+\.\d+(?:\.\d+)?)`)

// Detect returns the version reported by `<interpreter> --version`.
// interpreter may carry extra arguments, e.g. "python3 -u".
func Detect(interpreter string) (Info, error) {
	fields := strings.Fields(interpreter)
	if len(fields) == 0 {
		return Info{}, fmt.Errorf("empty interpreter")
	}
	out, err := runCommand(fields[0], "--version")
	if err != nil {
		return Info{}, err
	}
	v := parseVersion(out)
	if v == "" {
		return Info{}, fmt.Errorf("unable to parse %s version from %q", fields[0], out)
	}
	return Info{Name: fields[0], Version: v}, nil
}

// Check inspects the interpreter a module needs and returns a warning, or ""
// when nothing is wrong. Modules launched directly are not checked.
func Check(spec report.ModuleSpec) string {
	if strings.TrimSpace(spec.Interpreter) == "" {
		return ""
	}
	info, err := Detect(spec.Interpreter)
	return buildWarning(spec, info.Version, err)
}

func buildWarning(spec report.ModuleSpec, actual string, detectErr error) string {
	name := strings.Fields(spec.Interpreter)[0]
	if detectErr != nil {
		if Missing(detectErr) {
			return fmt.Sprintf("%s: interpreter %s not found", spec.ID, name)
		}
		return fmt.Sprintf("%s: unable to detect %s version: %v", spec.ID, name, detectErr)
	}
	required := strings.TrimSpace(spec.InterpreterVersion)
	if required == "" {
		return ""
	}
	if !CompareMajorMinor(required, actual) {
		return fmt.Sprintf("%s: %s version mismatch: required %s but found %s", spec.ID, name, required, actual)
	}
	return ""
}

func parseVersion(out string) string {
	match := versionRegex.FindStringSubmatch(out)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

func runCommand(name string, args ...string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = nil
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// CompareMajorMinor compares major.minor portions of two semver-like versions.
func CompareMajorMinor(desired, actual string) bool {
	d := semverPrefix(desired)
	a := semverPrefix(actual)
	if d == "" || a == "" {
		return false
	}
	return strings.EqualFold(d, a)
}

func semverPrefix(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}

// Missing reports whether executing the command returns a not-found error.
func Missing(cmdErr error) bool {
	return errors.Is(cmdErr, exec.ErrNotFound)
}
