package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bgricker/enghealth/internal/config"
	"github.com/bgricker/enghealth/internal/discovery"
	"github.com/bgricker/enghealth/internal/output"
	"github.com/bgricker/enghealth/internal/report"
)

// loadConfig layers defaults, the project file, the dotenv file, the
// environment and flags, in that order.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	root, err := flags.GetString("root")
	if err != nil {
		return config.Config{}, fmt.Errorf("parse --root: %w", err)
	}
	path, err := flags.GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("parse --config: %w", err)
	}

	cfg, err := config.Load(root, path)
	if err != nil {
		return config.Config{}, err
	}

	env, err := config.ReadEnv(cfg.EnvFilePath(), os.Environ())
	if err != nil {
		return config.Config{}, err
	}
	if err := config.ApplyEnv(&cfg, env); err != nil {
		return config.Config{}, err
	}

	values, err := gatherFlags(flags)
	if err != nil {
		return config.Config{}, err
	}
	config.ApplyFlags(&cfg, values)
	cfg.Format = strings.ToLower(cfg.Format)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func collectedInOrder(specs []report.ModuleSpec, collected report.Collection) []report.CollectedInfo {
	out := make([]report.CollectedInfo, 0, len(specs))
	for _, spec := range specs {
		if info, ok := collected[spec.ID]; ok {
			out = append(out, info)
		}
	}
	return out
}

func runsInOrder(specs []report.ModuleSpec, results report.RunResults) []report.RunResult {
	out := make([]report.RunResult, 0, len(results))
	for _, spec := range specs {
		if res, ok := results[spec.ID]; ok {
			out = append(out, res)
		}
	}
	return out
}

func displayPath(cfg config.Config, path string) string {
	return discovery.RelOrVerbatim(cfg.ProjectRoot, path)
}

// progressRenderer writes progress to stderr when stdout carries JSON.
func progressRenderer(cmd *cobra.Command, cfg config.Config) *output.PrettyRenderer {
	if cfg.Format == config.FormatJSON {
		return output.NewPretty(cmd.ErrOrStderr())
	}
	return output.NewPretty(cmd.OutOrStdout())
}
