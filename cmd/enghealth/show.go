package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Render the final (or aggregated) report in the terminal",
		RunE:  runShow,
	}

	flags := cmd.Flags()
	flags.Bool("aggregated", false, "show the aggregated evidence report instead of the final report")
	flags.Bool("raw", false, "print the Markdown source without rendering")
	flags.String("style", "auto", "glamour style (auto|dark|light|notty|...)")
	flags.Int("width", 80, "word wrap width")

	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	aggregated, _ := flags.GetBool("aggregated")
	raw, _ := flags.GetBool("raw")
	style, _ := flags.GetString("style")
	width, _ := flags.GetInt("width")

	path := cfg.FinalPath()
	if aggregated {
		path = cfg.AggregatedPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no report at %s; run `enghealth run` first", displayPath(cfg, path))
		}
		return fmt.Errorf("read report: %w", err)
	}

	if raw {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	return renderMarkdown(cmd.OutOrStdout(), string(data), style, width)
}

func renderMarkdown(w io.Writer, markdown, style string, width int) error {
	styleOpt := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
