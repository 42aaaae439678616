// Package collector verifies the deliverables each analysis module left on
// disk and merges them with the runner's execution facts.
package collector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bgricker/enghealth/internal/discovery"
	"github.com/bgricker/enghealth/internal/logging"
	"github.com/bgricker/enghealth/internal/output"
	"github.com/bgricker/enghealth/internal/report"
)

// Options configure the collector.
type Options struct {
	Modules   []report.ModuleSpec
	FigureExt string
	Progress  output.CollectProgress
	Logger    *zap.Logger
}

// Collector inspects module deliverables.
type Collector struct {
	opts Options
}

// New creates a collector for the configured modules.
func New(opts Options) *Collector {
	if opts.FigureExt == "" {
		opts.FigureExt = ".png"
	}
	opts.Logger = logging.OrNop(opts.Logger)
	return &Collector{opts: opts}
}

// Collect returns one CollectedInfo per configured module, whether or not
// results holds an entry for it. Missing deliverables are recorded as
// issues; only unexpected filesystem failures are returned as errors.
func (c *Collector) Collect(results report.RunResults) (report.Collection, error) {
	collected := make(report.Collection, len(c.opts.Modules))

	for _, spec := range c.opts.Modules {
		info, err := c.inspect(spec, results)
		if err != nil {
			return collected, err
		}
		collected[spec.ID] = info

		c.opts.Logger.Debug("collected module deliverables",
			zap.String("module", spec.ID),
			zap.Bool("report_exists", info.ReportExists),
			zap.Int("figures_count", info.FiguresCount),
			zap.Strings("issues", info.Issues),
		)
		if c.opts.Progress != nil {
			if err := c.opts.Progress.RenderCollected(spec, info); err != nil {
				return collected, err
			}
		}
	}

	return collected, nil
}

func (c *Collector) inspect(spec report.ModuleSpec, results report.RunResults) (report.CollectedInfo, error) {
	run, ran := results[spec.ID]

	exists, size, err := discovery.ReportFile(spec.ReportPath)
	if err != nil {
		return report.CollectedInfo{}, fmt.Errorf("collect %s: %w", spec.ID, err)
	}
	figures, dirExists, err := discovery.Figures(spec.FiguresPath, c.opts.FigureExt)
	if err != nil {
		return report.CollectedInfo{}, fmt.Errorf("collect %s: %w", spec.ID, err)
	}

	return report.NewCollectedInfo(spec, run, ran, report.Deliverables{
		ReportExists:     exists,
		ReportSize:       size,
		FiguresDirExists: dirExists,
		Figures:          figures,
	}), nil
}
