package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectRoot != root {
		t.Fatalf("project root = %q, want %q", cfg.ProjectRoot, root)
	}
	if diff := cmp.Diff(Default().Modules, cfg.Modules); diff != "" {
		t.Fatalf("modules differ from defaults (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMergesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), `
data_dir: out/data
figure_ext: .svg
skip_module: ["module_c"]
modules:
  - id: lint
    title: Lint
    entry: tools/lint.sh
llm:
  provider: gemini
  model: gemini-2.5-pro
  timeout_seconds: 30
`)

	cfg, err := Load(root, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "out/data" || cfg.FigureExt != ".svg" || cfg.FiguresDir != "figures" {
		t.Fatalf("unexpected dirs: %+v", cfg)
	}
	if len(cfg.Modules) != 1 || cfg.Modules[0].ID != "lint" {
		t.Fatalf("modules not replaced: %+v", cfg.Modules)
	}
	if diff := cmp.Diff([]string{"module_c"}, cfg.SkipModules); diff != "" {
		t.Fatalf("skip modules mismatch (-want +got):\n%s", diff)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.5-pro" || cfg.LLM.TimeoutSeconds != 30 {
		t.Fatalf("llm not merged: %+v", cfg.LLM)
	}
	if cfg.LLM.Temperature != 0.2 || cfg.LLM.MaxPromptChars != 40000 {
		t.Fatalf("llm defaults lost: %+v", cfg.LLM)
	}
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	root := t.TempDir()
	if _, err := Load(root, filepath.Join(root, "custom.yml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "modules: [\n")
	if _, err := Load(root, ""); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, map[string]string{
		EnvAPIKey:   "secret",
		EnvBaseURL:  "http://llm.local/v1",
		EnvModel:    "  ",
		EnvProvider: "gemini",
		EnvNoLLM:    "true",
	})
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.LLM.APIKey != "secret" || cfg.LLM.BaseURL != "http://llm.local/v1" || cfg.LLM.Provider != "gemini" {
		t.Fatalf("env not applied: %+v", cfg.LLM)
	}
	if cfg.LLM.Model != "" {
		t.Fatalf("blank env must not set model, got %q", cfg.LLM.Model)
	}
	if cfg.HasNarrativeGeneration() {
		t.Fatalf("ENGHEALTH_NO_LLM must disable narrative generation")
	}

	if err := ApplyEnv(&cfg, map[string]string{EnvNoLLM: "maybe"}); err == nil {
		t.Fatalf("expected parse error for invalid bool")
	}
}

func TestReadEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "LLM_API_KEY=from-file\nLLM_MODEL_NAME=file-model\n")

	env, err := ReadEnv(path, []string{"LLM_MODEL_NAME=from-env", "LLM_API_KEY=", "BROKEN"})
	if err != nil {
		t.Fatalf("ReadEnv: %v", err)
	}
	if env["LLM_API_KEY"] != "from-file" {
		t.Fatalf("empty environment value must not mask the file, got %q", env["LLM_API_KEY"])
	}
	if env["LLM_MODEL_NAME"] != "from-env" {
		t.Fatalf("environment must win, got %q", env["LLM_MODEL_NAME"])
	}
}

func TestReadEnvMissingFile(t *testing.T) {
	env, err := ReadEnv(filepath.Join(t.TempDir(), ".env"), []string{"A=1"})
	if err != nil {
		t.Fatalf("ReadEnv: %v", err)
	}
	if env["A"] != "1" {
		t.Fatalf("unexpected env %v", env)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	cfg.OnlyModules = []string{"from-file"}
	ApplyFlags(&cfg, FlagValues{
		OnlyModules: SliceFlag{Values: []string{"module_a"}},
		Format:      StringFlag{Value: FormatJSON, Set: true},
		Verbose:     BoolFlag{Value: true, Set: true},
		NoLLM:       BoolFlag{Value: true, Set: true},
	})

	if diff := cmp.Diff([]string{"module_a"}, cfg.OnlyModules); diff != "" {
		t.Fatalf("only modules mismatch (-want +got):\n%s", diff)
	}
	if cfg.Format != FormatJSON || !cfg.Verbose || !cfg.LLM.Disabled {
		t.Fatalf("flags not applied: %+v", cfg)
	}
}

func TestModuleSpecsResolvePaths(t *testing.T) {
	cfg := Default()
	cfg.ProjectRoot = "/repo"
	cfg.Modules = append(cfg.Modules, ModuleConfig{ID: "custom", Entry: "/opt/custom/run.sh"})

	specs := cfg.ModuleSpecs()
	if len(specs) != 4 {
		t.Fatalf("expected 4 specs, got %d", len(specs))
	}
	a := specs[0]
	if a.Entry != filepath.Join("/repo", "scripts", "module_a", "main.py") {
		t.Fatalf("entry = %q", a.Entry)
	}
	if a.ReportPath != filepath.Join("/repo", "data", "module_a", "REPORT.md") {
		t.Fatalf("report path = %q", a.ReportPath)
	}
	if a.FiguresPath != filepath.Join("/repo", "figures", "module_a") {
		t.Fatalf("figures path = %q", a.FiguresPath)
	}
	if a.Interpreter != "python3" || a.Title != "Module A – Code Quality & Risk" {
		t.Fatalf("unexpected spec %+v", a)
	}
	if specs[3].Entry != "/opt/custom/run.sh" || specs[3].Interpreter != "" {
		t.Fatalf("absolute entry must be kept verbatim: %+v", specs[3])
	}

	if cfg.AggregatedPath() != filepath.Join("/repo", "data", "module_d", "AGGREGATED_REPORT.md") {
		t.Fatalf("aggregated path = %q", cfg.AggregatedPath())
	}
	if cfg.FinalPath() != filepath.Join("/repo", "docs", "FINAL_REPORT.md") {
		t.Fatalf("final path = %q", cfg.FinalPath())
	}
	if cfg.PromptsPath() != filepath.Join("/repo", "scripts", "module_d", "prompts") {
		t.Fatalf("prompts path = %q", cfg.PromptsPath())
	}
}

func TestLLMClientConfig(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "k"
	got := cfg.LLMClientConfig()
	if got.Timeout != 120*time.Second || got.Temperature != 0.2 || got.Model != "qwen-max" || got.APIKey != "k" {
		t.Fatalf("unexpected client config %+v", got)
	}
	if got.Provider != "openai" || got.BaseURL != "https://dashscope.aliyuncs.com/compatible-mode/v1" {
		t.Fatalf("unexpected openai endpoint %+v", got)
	}
}

func TestLLMClientConfigFollowsProvider(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file LLMConfig
	}{
		{name: "env", env: map[string]string{EnvProvider: "gemini"}},
		{name: "file", file: LLMConfig{Provider: "Gemini"}},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.LLM = mergeLLM(cfg.LLM, tt.file)
		if err := ApplyEnv(&cfg, tt.env); err != nil {
			t.Fatalf("%s: ApplyEnv: %v", tt.name, err)
		}
		got := cfg.LLMClientConfig()
		if got.Provider != "gemini" {
			t.Fatalf("%s: provider = %q", tt.name, got.Provider)
		}
		if got.BaseURL != "" {
			t.Fatalf("%s: gemini must use the SDK endpoint, got %q", tt.name, got.BaseURL)
		}
		if got.Model != "gemini-2.5-flash" {
			t.Fatalf("%s: model = %q, want gemini-2.5-flash", tt.name, got.Model)
		}
	}
}

func TestLLMClientConfigKeepsExplicitModel(t *testing.T) {
	cfg := Default()
	if err := ApplyEnv(&cfg, map[string]string{EnvProvider: "gemini", EnvModel: "gemini-2.5-pro"}); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if got := cfg.LLMClientConfig(); got.Model != "gemini-2.5-pro" {
		t.Fatalf("model = %q", got.Model)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no modules", func(c *Config) { c.Modules = nil }, "no modules"},
		{"empty id", func(c *Config) { c.Modules[0].ID = " " }, "id is required"},
		{"path id", func(c *Config) { c.Modules[0].ID = "../x" }, "plain directory name"},
		{"duplicate", func(c *Config) { c.Modules[1].ID = "module_a" }, "declared twice"},
		{"format", func(c *Config) { c.Format = "xml" }, "unknown format"},
		{"figure ext", func(c *Config) { c.FigureExt = "png" }, "must start with a dot"},
		{"provider", func(c *Config) { c.LLM.Provider = "bedrock" }, "unknown llm provider"},
		{"negative", func(c *Config) { c.LLM.TimeoutSeconds = -1 }, "must not be negative"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Modules = append([]ModuleConfig{}, cfg.Modules...)
		tt.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tt.name, tt.want, err)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
