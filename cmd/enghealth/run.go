package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/enghealth/internal/config"
	"github.com/bgricker/enghealth/internal/logging"
	"github.com/bgricker/enghealth/internal/output"
	"github.com/bgricker/enghealth/internal/pipeline"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every analysis module, aggregate the evidence and write the final report",
		RunE:  runExecute,
	}

	flags := cmd.Flags()
	flags.StringArray("only-module", nil, "run only matching modules (id, title, or /regex/)")
	flags.StringArray("skip-module", nil, "do not run matching modules")
	flags.Bool("skip-run", false, "aggregate existing deliverables without running modules")
	flags.Bool("no-llm", false, "write the evidence-only final report without calling the model")

	return cmd
}

func runExecute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	skipRun, err := cmd.Flags().GetBool("skip-run")
	if err != nil {
		return fmt.Errorf("parse --skip-run: %w", err)
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.Verbose)
	defer func() { _ = logger.Sync() }()

	progress := progressRenderer(cmd, cfg)
	moduleOut := cmd.OutOrStdout()
	if cfg.Format == config.FormatJSON {
		moduleOut = cmd.ErrOrStderr()
	}

	p := pipeline.New(pipeline.Options{
		Config:   cfg,
		Stdout:   moduleOut,
		Stderr:   cmd.ErrOrStderr(),
		Renderer: progress,
		Logger:   logger,
		SkipRun:  skipRun,
	})
	out, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	final := output.Final{
		AggregatedPath: displayPath(cfg, out.AggregatedPath),
		Path:           displayPath(cfg, out.Final.Path),
		Mode:           out.Final.Mode,
		Reason:         out.Final.Reason,
	}

	switch cfg.Format {
	case config.FormatPretty:
		return output.NewPretty(cmd.OutOrStdout()).RenderSummary(out.Summary, final, out.Warnings)
	case config.FormatJSON:
		return output.NewJSON(cmd.OutOrStdout()).Render(output.Report{
			RunID:       out.RunID,
			ProjectRoot: cfg.ProjectRoot,
			Runs:        runsInOrder(out.Specs, out.Results),
			Modules:     collectedInOrder(out.Specs, out.Collected),
			Summary:     out.Summary,
			Final:       &final,
			Warnings:    out.Warnings,
		})
	default:
		return fmt.Errorf("unsupported format %q", cfg.Format)
	}
}
