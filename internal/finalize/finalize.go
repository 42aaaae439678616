// Package finalize turns the aggregated evidence into FINAL_REPORT.md,
// either through the language model or as a verbatim evidence copy.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/bgricker/enghealth/internal/llm"
	"github.com/bgricker/enghealth/internal/logging"
)

// Placeholder is replaced with the aggregated report in the user template.
const Placeholder = "{aggregated_content}"

// Prompt template file names inside the prompts directory.
const (
	SystemPromptFile = "system.md"
	UserTemplateFile = "user_template.md"
)

const (
	// DefaultMaxPromptChars bounds the user prompt length in characters.
	DefaultMaxPromptChars = 40000

	// TruncationNotice is appended to a prompt cut at the ceiling.
	TruncationNotice = "\n\n(Content truncated because it exceeded the length limit...)"

	// FallbackHeader precedes the aggregated evidence in a fallback report.
	FallbackHeader = "# FINAL REPORT (Evidence Only)\n\n" +
		"⚠️ This report was not reviewed by a language model. It contains only the automatically aggregated evidence.\n\n"
)

// Modes recorded in an Outcome.
const (
	ModeNarrative = "narrative"
	ModeFallback  = "fallback"
)

// ErrPromptsMissing reports that a prompt template could not be found.
var ErrPromptsMissing = errors.New("prompt templates missing")

// Options configure finalization.
type Options struct {
	// Narrative is the startup-resolved capability flag. When false the
	// fallback is written without attempting a model call.
	Narrative      bool
	LLM            llm.Config
	PromptsDir     string
	MaxPromptChars int
	OutputPath     string
	// Client overrides the client built from LLM.
	Client llm.Client
	Logger *zap.Logger
}

// Outcome describes which path produced the final report.
type Outcome struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"`
	Path   string `json:"path"`
}

// Finalizer writes the final report.
type Finalizer struct {
	opts Options
}

// New creates a finalizer.
func New(opts Options) *Finalizer {
	if opts.MaxPromptChars <= 0 {
		opts.MaxPromptChars = DefaultMaxPromptChars
	}
	opts.Logger = logging.OrNop(opts.Logger)
	return &Finalizer{opts: opts}
}

// Finalize reads the aggregated report at aggregatedPath and writes the final
// report. Configuration and service failures degrade to the fallback and are
// reported in the Outcome; only filesystem failures are returned.
func (f *Finalizer) Finalize(ctx context.Context, aggregatedPath string) (Outcome, error) {
	data, err := os.ReadFile(aggregatedPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("read aggregated report: %w", err)
	}
	content := string(data)

	if !f.opts.Narrative {
		f.opts.Logger.Info("narrative generation disabled, writing evidence-only report")
		return f.fallback(content, "narrative generation disabled")
	}

	text, err := f.narrative(ctx, content)
	if err != nil {
		if isEnvironmentError(err) {
			return Outcome{}, err
		}
		f.opts.Logger.Warn("LLM stage failed, falling back to evidence-only report", zap.Error(err))
		return f.fallback(content, err.Error())
	}

	if err := f.write(text); err != nil {
		return Outcome{}, err
	}
	f.opts.Logger.Info("narrative report written", zap.String("path", f.opts.OutputPath))
	return Outcome{Mode: ModeNarrative, Path: f.opts.OutputPath}, nil
}

func (f *Finalizer) narrative(ctx context.Context, content string) (string, error) {
	system, tmpl, err := LoadPrompts(f.opts.PromptsDir)
	if err != nil {
		return "", err
	}

	client := f.opts.Client
	if client == nil {
		client, err = llm.New(ctx, f.opts.LLM)
		if err != nil {
			return "", err
		}
	}

	user, truncated := BuildPrompt(tmpl, content, f.opts.MaxPromptChars)
	if truncated {
		f.opts.Logger.Warn("aggregated content exceeds prompt ceiling, truncating",
			zap.Int("max_chars", f.opts.MaxPromptChars))
	}

	f.opts.Logger.Info("sending request to model", zap.String("model", f.opts.LLM.Model))
	text, err := client.Complete(ctx, llm.Request{System: system, User: user, Temperature: f.opts.LLM.Temperature})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty completion", llm.ErrResponse)
	}
	return text, nil
}

func (f *Finalizer) fallback(content, reason string) (Outcome, error) {
	if err := f.write(FallbackHeader + content); err != nil {
		return Outcome{}, err
	}
	return Outcome{Mode: ModeFallback, Reason: reason, Path: f.opts.OutputPath}, nil
}

func (f *Finalizer) write(text string) error {
	if err := os.MkdirAll(filepath.Dir(f.opts.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create final report dir: %w", err)
	}
	if err := os.WriteFile(f.opts.OutputPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("write final report: %w", err)
	}
	return nil
}

// LoadPrompts reads the system prompt and user template from dir. A missing
// file yields ErrPromptsMissing.
func LoadPrompts(dir string) (system, userTemplate string, err error) {
	system, err = readPrompt(filepath.Join(dir, SystemPromptFile))
	if err != nil {
		return "", "", err
	}
	userTemplate, err = readPrompt(filepath.Join(dir, UserTemplateFile))
	if err != nil {
		return "", "", err
	}
	return system, userTemplate, nil
}

func readPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrPromptsMissing, path)
		}
		return "", &envError{fmt.Errorf("read prompt %s: %w", path, err)}
	}
	return string(data), nil
}

// BuildPrompt substitutes content for every Placeholder in tmpl without
// interpreting either string. A result longer than maxChars characters is cut
// and TruncationNotice appended.
func BuildPrompt(tmpl, content string, maxChars int) (prompt string, truncated bool) {
	prompt = strings.ReplaceAll(tmpl, Placeholder, content)
	if maxChars <= 0 || utf8.RuneCountInString(prompt) <= maxChars {
		return prompt, false
	}
	cut := 0
	for i := range prompt {
		if cut == maxChars {
			return prompt[:i] + TruncationNotice, true
		}
		cut++
	}
	return prompt, false
}

// envError marks filesystem faults that must not be absorbed by fallback.
type envError struct{ err error }

func (e *envError) Error() string { return e.err.Error() }
func (e *envError) Unwrap() error { return e.err }

func isEnvironmentError(err error) bool {
	var env *envError
	return errors.As(err, &env)
}
