package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bgricker/enghealth/internal/config"
)

func gatherFlags(flags *pflag.FlagSet) (config.FlagValues, error) {
	var values config.FlagValues

	if flags.Changed("only-module") {
		v, err := flags.GetStringArray("only-module")
		if err != nil {
			return values, fmt.Errorf("parse --only-module: %w", err)
		}
		values.OnlyModules = config.SliceFlag{Values: append([]string{}, v...)}
	}

	if flags.Changed("skip-module") {
		v, err := flags.GetStringArray("skip-module")
		if err != nil {
			return values, fmt.Errorf("parse --skip-module: %w", err)
		}
		values.SkipModules = config.SliceFlag{Values: append([]string{}, v...)}
	}

	if flags.Changed("format") {
		v, err := flags.GetString("format")
		if err != nil {
			return values, fmt.Errorf("parse --format: %w", err)
		}
		values.Format = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("verbose") {
		v, err := flags.GetBool("verbose")
		if err != nil {
			return values, fmt.Errorf("parse --verbose: %w", err)
		}
		values.Verbose = config.BoolFlag{Value: v, Set: true}
	}

	if flags.Changed("no-llm") {
		v, err := flags.GetBool("no-llm")
		if err != nil {
			return values, fmt.Errorf("parse --no-llm: %w", err)
		}
		values.NoLLM = config.BoolFlag{Value: v, Set: true}
	}

	return values, nil
}
