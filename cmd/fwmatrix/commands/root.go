package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fwmatrix/fwmatrix/pkg/config"
	"github.com/fwmatrix/fwmatrix/pkg/matrix"
	"github.com/fwmatrix/fwmatrix/pkg/policy"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fwmatrix",
		Short: "fwmatrix - firmware build-matrix resolution and check driver",
		Long: `fwmatrix resolves the valid hardware/feature combinations of a firmware
build matrix and drives the external build/lint toolchain across them.

Features:
  - Typed matrix specs via CUE (YAML accepted)
  - Procedural axis generation via Starlark
  - Rego policies as an auditable exclusion source
  - Parallel toolchain checks with tolerated-failure classification
  - SQLite-backed run reports`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newCheckCommand())
	rootCmd.AddCommand(newReportCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// loadMatrix parses and validates a matrix spec from disk.
func loadMatrix(ctx context.Context, path string) (*config.MatrixConfig, error) {
	parser := config.NewParser()
	mc, err := parser.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load matrix spec %s: %w", path, err)
	}
	return mc, nil
}

// policyFilters builds the resolver filters for the configured policies.
func policyFilters(ctx context.Context, logger zerolog.Logger, mc *config.MatrixConfig) ([]matrix.Filter, error) {
	if mc.Policy == nil || !mc.Policy.Enabled {
		return nil, nil
	}

	engine, err := policy.NewEngine(logger, mc.Name, !mc.Policy.DisableBuiltin)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy engine: %w", err)
	}
	if len(mc.Policy.Paths) > 0 {
		if err := engine.LoadPolicies(ctx, mc.Policy.Paths); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	log.Debug().Int("policies", len(engine.ListPolicies())).Msg("policy engine ready")
	return []matrix.Filter{engine.Filter(ctx)}, nil
}
