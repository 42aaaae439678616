package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/enghealth/internal/collector"
	"github.com/bgricker/enghealth/internal/config"
	"github.com/bgricker/enghealth/internal/logging"
	"github.com/bgricker/enghealth/internal/output"
	"github.com/bgricker/enghealth/internal/report"
)

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Inspect the deliverables currently on disk without running anything",
		RunE:  runCollect,
	}
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.Verbose)
	defer func() { _ = logger.Sync() }()

	specs := cfg.ModuleSpecs()
	opts := collector.Options{Modules: specs, FigureExt: cfg.FigureExt, Logger: logger}
	if cfg.Format == config.FormatPretty {
		opts.Progress = output.NewPretty(cmd.OutOrStdout())
	}
	collected, err := collector.New(opts).Collect(nil)
	if err != nil {
		return err
	}
	summary := report.Summarize(specs, collected, 0)

	switch cfg.Format {
	case config.FormatPretty:
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d modules, %d with issues\n", summary.Modules, summary.WithIssues)
		return nil
	case config.FormatJSON:
		return output.NewJSON(cmd.OutOrStdout()).Render(output.Report{
			ProjectRoot: cfg.ProjectRoot,
			Modules:     collectedInOrder(specs, collected),
			Summary:     summary,
		})
	default:
		return fmt.Errorf("unsupported format %q", cfg.Format)
	}
}
