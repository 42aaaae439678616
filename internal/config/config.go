package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bgricker/enghealth/internal/llm"
	"github.com/bgricker/enghealth/internal/report"
)

// FileName is the project configuration file looked up at the project root.
const FileName = ".enghealth.yml"

const (
	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey   = "LLM_API_KEY"
	EnvBaseURL  = "LLM_BASE_URL"
	EnvModel    = "LLM_MODEL_NAME"
	EnvProvider = "LLM_PROVIDER"
	EnvNoLLM    = "ENGHEALTH_NO_LLM"
)

// Config is built once at startup and handed to every pipeline stage.
type Config struct {
	ProjectRoot string `yaml:"-"`

	DataDir    string `yaml:"data_dir"`
	FiguresDir string `yaml:"figures_dir"`
	OutputDir  string `yaml:"output_dir"`
	FigureExt  string `yaml:"figure_ext"`

	Modules []ModuleConfig `yaml:"modules"`

	OnlyModules []string `yaml:"only_module"`
	SkipModules []string `yaml:"skip_module"`

	Verbose bool   `yaml:"verbose"`
	Format  string `yaml:"format"`

	LLM LLMConfig `yaml:"llm"`
}

// ModuleConfig declares one analysis module.
type ModuleConfig struct {
	ID                 string `yaml:"id"`
	Title              string `yaml:"title"`
	Entry              string `yaml:"entry"`
	Interpreter        string `yaml:"interpreter"`
	InterpreterVersion string `yaml:"interpreter_version"`
}

// LLMConfig controls the finalization stage.
type LLMConfig struct {
	Disabled       bool    `yaml:"disabled"`
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"-"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
	MaxPromptChars int     `yaml:"max_prompt_chars"`
	PromptsDir     string  `yaml:"prompts_dir"`
	EnvFile        string  `yaml:"env_file"`
}

// Default returns the baseline configuration used when no flags or config file specify values.
func Default() Config {
	return Config{
		DataDir:    "data",
		FiguresDir: "figures",
		OutputDir:  "docs",
		FigureExt:  ".png",
		Format:     FormatPretty,
		Modules: []ModuleConfig{
			{ID: "module_a", Title: "Module A – Code Quality & Risk", Interpreter: "python3"},
			{ID: "module_b", Title: "Module B – Development Efficiency & Rhythm", Interpreter: "python3"},
			{ID: "module_c", Title: "Module C – Governance & Engineering Practice", Interpreter: "python3"},
		},
		LLM: LLMConfig{
			Provider:       llm.ProviderOpenAI,
			TimeoutSeconds: int(llm.DefaultTimeout / time.Second),
			Temperature:    llm.DefaultTemperature,
			MaxPromptChars: 40000,
			PromptsDir:     filepath.Join("scripts", "module_d", "prompts"),
			EnvFile:        filepath.Join("scripts", ".env"),
		},
	}
}

// Load reads the project configuration for root. When path is empty,
// .enghealth.yml at root is used and a missing file is ignored; an explicit
// path must exist.
func Load(root, path string) (Config, error) {
	cfg := Default()
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return cfg, fmt.Errorf("resolve project root %q: %w", root, err)
	}
	cfg.ProjectRoot = absRoot

	explicit := path != ""
	if !explicit {
		path = filepath.Join(absRoot, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg = merge(cfg, fileCfg)
	return cfg, nil
}

func merge(base, override Config) Config {
	out := base

	if override.DataDir != "" {
		out.DataDir = override.DataDir
	}
	if override.FiguresDir != "" {
		out.FiguresDir = override.FiguresDir
	}
	if override.OutputDir != "" {
		out.OutputDir = override.OutputDir
	}
	if override.FigureExt != "" {
		out.FigureExt = override.FigureExt
	}
	if len(override.Modules) > 0 {
		out.Modules = append([]ModuleConfig{}, override.Modules...)
	}
	if len(override.OnlyModules) > 0 {
		out.OnlyModules = append([]string{}, override.OnlyModules...)
	}
	if len(override.SkipModules) > 0 {
		out.SkipModules = append([]string{}, override.SkipModules...)
	}
	if override.Format != "" {
		out.Format = override.Format
	}
	if override.Verbose {
		out.Verbose = true
	}

	out.LLM = mergeLLM(base.LLM, override.LLM)
	return out
}

func mergeLLM(base, override LLMConfig) LLMConfig {
	out := base
	if override.Disabled {
		out.Disabled = true
	}
	if override.Provider != "" {
		out.Provider = override.Provider
	}
	if override.BaseURL != "" {
		out.BaseURL = override.BaseURL
	}
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.TimeoutSeconds > 0 {
		out.TimeoutSeconds = override.TimeoutSeconds
	}
	if override.Temperature > 0 {
		out.Temperature = override.Temperature
	}
	if override.MaxPromptChars > 0 {
		out.MaxPromptChars = override.MaxPromptChars
	}
	if override.PromptsDir != "" {
		out.PromptsDir = override.PromptsDir
	}
	if override.EnvFile != "" {
		out.EnvFile = override.EnvFile
	}
	return out
}

// ApplyEnv mutates cfg with values from env. Empty values are ignored.
func ApplyEnv(cfg *Config, env map[string]string) error {
	if v := strings.TrimSpace(env[EnvAPIKey]); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(env[EnvBaseURL]); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(env[EnvModel]); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(env[EnvProvider]); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(env[EnvNoLLM]); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s=%q: %w", EnvNoLLM, v, err)
		}
		cfg.LLM.Disabled = disabled
	}
	return nil
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if len(flags.OnlyModules.Values) > 0 {
		cfg.OnlyModules = append([]string{}, flags.OnlyModules.Values...)
	}
	if len(flags.SkipModules.Values) > 0 {
		cfg.SkipModules = append([]string{}, flags.SkipModules.Values...)
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.Verbose.Set {
		cfg.Verbose = flags.Verbose.Value
	}
	if flags.NoLLM.Set && flags.NoLLM.Value {
		cfg.LLM.Disabled = true
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if len(c.Modules) == 0 {
		return errors.New("no modules configured")
	}
	seen := make(map[string]bool, len(c.Modules))
	for i, m := range c.Modules {
		id := strings.TrimSpace(m.ID)
		if id == "" {
			return fmt.Errorf("module %d: id is required", i+1)
		}
		if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
			return fmt.Errorf("module %q: id must be a plain directory name", id)
		}
		if seen[id] {
			return fmt.Errorf("module %q declared twice", id)
		}
		seen[id] = true
	}

	switch c.Format {
	case FormatPretty, FormatJSON:
	default:
		return fmt.Errorf("unknown format %q (expected %s or %s)", c.Format, FormatPretty, FormatJSON)
	}

	if !strings.HasPrefix(c.FigureExt, ".") || len(c.FigureExt) < 2 {
		return fmt.Errorf("figure_ext %q must start with a dot", c.FigureExt)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "", llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.TimeoutSeconds < 0 || c.LLM.Temperature < 0 || c.LLM.MaxPromptChars < 0 {
		return errors.New("llm timeout, temperature and max_prompt_chars must not be negative")
	}
	return nil
}

// ModuleSpecs resolves the configured modules against the project layout.
func (c Config) ModuleSpecs() []report.ModuleSpec {
	specs := make([]report.ModuleSpec, 0, len(c.Modules))
	for _, m := range c.Modules {
		id := strings.TrimSpace(m.ID)
		entry := m.Entry
		if entry == "" {
			entry = filepath.Join("scripts", id, "main.py")
		}
		specs = append(specs, report.ModuleSpec{
			ID:                 id,
			Title:              m.Title,
			Entry:              c.resolve(entry),
			Interpreter:        m.Interpreter,
			InterpreterVersion: m.InterpreterVersion,
			ReportPath:         filepath.Join(c.resolve(c.DataDir), id, "REPORT.md"),
			FiguresPath:        filepath.Join(c.resolve(c.FiguresDir), id),
		})
	}
	return specs
}

// AggregatedPath is where the aggregated evidence report is written.
func (c Config) AggregatedPath() string {
	return filepath.Join(c.resolve(c.DataDir), "module_d", "AGGREGATED_REPORT.md")
}

// FinalPath is where the final report is written.
func (c Config) FinalPath() string {
	return filepath.Join(c.resolve(c.OutputDir), "FINAL_REPORT.md")
}

// PromptsPath is the directory holding the prompt templates.
func (c Config) PromptsPath() string {
	return c.resolve(c.LLM.PromptsDir)
}

// EnvFilePath is the dotenv file consulted by ReadEnv.
func (c Config) EnvFilePath() string {
	if c.LLM.EnvFile == "" {
		return ""
	}
	return c.resolve(c.LLM.EnvFile)
}

// HasNarrativeGeneration reports whether finalization should attempt a model call.
func (c Config) HasNarrativeGeneration() bool {
	return !c.LLM.Disabled
}

// LLMClientConfig converts the LLM settings for the llm package. Endpoint
// and model left unset take the selected provider's defaults.
func (c Config) LLMClientConfig() llm.Config {
	return llm.WithDefaults(llm.Config{
		Provider:    c.LLM.Provider,
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		APIKey:      c.LLM.APIKey,
		Timeout:     time.Duration(c.LLM.TimeoutSeconds) * time.Second,
		Temperature: c.LLM.Temperature,
	})
}

func (c Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.ProjectRoot, p)
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	OnlyModules SliceFlag
	SkipModules SliceFlag
	Format      StringFlag
	Verbose     BoolFlag
	NoLLM       BoolFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// SliceFlag represents a slice flag and whether it captured values via CLI.
type SliceFlag struct {
	Values []string
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}
