package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/enghealth/internal/report"
)

// JSONRenderer emits structured pipeline data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// Report captures the JSON output schema of a pipeline run.
type Report struct {
	RunID       string                 `json:"run_id,omitempty"`
	ProjectRoot string                 `json:"project_root"`
	Runs        []report.RunResult     `json:"runs,omitempty"`
	Modules     []report.CollectedInfo `json:"modules"`
	Summary     report.Summary         `json:"summary"`
	Final       *Final                 `json:"final,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
}

// Render encodes the report as JSON.
func (j *JSONRenderer) Render(report Report) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
