package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fwmatrix/fwmatrix/pkg/config"
	"github.com/fwmatrix/fwmatrix/pkg/runner"
	"github.com/fwmatrix/fwmatrix/pkg/stores"
	"github.com/fwmatrix/fwmatrix/pkg/telemetry"
	"github.com/fwmatrix/fwmatrix/pkg/toolchain"
)

func newCheckCommand() *cobra.Command {
	var (
		dbPath  string
		workers int
		ci      bool
	)

	cmd := &cobra.Command{
		Use:   "check <spec>",
		Short: "Resolve a matrix and run the toolchain check on every configuration",
		Long: `Resolve a matrix specification and run the configured toolchain command
against every valid configuration in parallel.

Each configuration is checked exactly once, with no retries. A failing
check on a tolerated axis member is recorded but does not gate the run;
a failing check anywhere else fails the run. An infrastructure error
(spawn failure, transport loss, timeout) cancels the whole run.

The command exits non-zero when the run verdict is not "passed".`,
		Example: `  # Check the full matrix with the spec's worker count
  fwmatrix check examples/matrix.cue

  # Persist the run and every outcome to SQLite
  fwmatrix check examples/matrix.cue --db fwmatrix.db

  # Override parallelism for a constrained CI executor
  fwmatrix check examples/matrix.cue --workers 2 --ci`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mc, err := loadMatrix(ctx, args[0])
			if err != nil {
				return err
			}
			if workers > 0 {
				mc.Check.Workers = workers
			}

			tel, err := setupTelemetry(ci)
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			ctx = tel.WithContext(ctx)
			defer func() {
				if err := tel.Shutdown(context.Background()); err != nil {
					log.Warn().Err(err).Msg("telemetry shutdown failed")
				}
			}()

			filters, err := policyFilters(ctx, log.Logger, mc)
			if err != nil {
				return err
			}

			opts := []runner.Option{runner.WithFilters(filters...)}
			if dbPath != "" {
				store, err := openStore(ctx, dbPath)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, runner.WithStore(store))
			}

			r, err := runner.New(log.Logger, mc, buildInvoker(mc), opts...)
			if err != nil {
				return err
			}

			run, outcomes, err := r.Run(ctx)
			if err != nil {
				return fmt.Errorf("run aborted: %w", err)
			}

			printRunSummary(run, outcomes)

			if run.Status != runner.RunStatusPassed {
				return fmt.Errorf("run %s %s: %d fatal failure(s), %d pending",
					run.ID, run.Status, run.Summary.FailedFatal, run.Summary.Pending)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to persist the run report to")
	cmd.Flags().IntVar(&workers, "workers", 0, "override the spec's worker count")
	cmd.Flags().BoolVar(&ci, "ci", false, "CI telemetry profile (JSON logs, metrics enabled)")

	return cmd
}

func setupTelemetry(ci bool) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if ci {
		cfg = telemetry.CIConfig()
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return telemetry.NewTelemetry(cfg)
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", path, err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return store, nil
}

func buildInvoker(mc *config.MatrixConfig) toolchain.Invoker {
	if mc.Check.Remote != nil {
		return toolchain.NewRemoteInvoker(log.Logger, *mc.Check.Remote, mc.Check.Command, mc.Check.Args)
	}
	return toolchain.NewLocalInvoker(log.Logger, mc.Check.Command, mc.Check.Args)
}

func printRunSummary(run *runner.Run, outcomes []runner.Outcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONFIG\tSTATUS\tEXIT\tFINDINGS\tDURATION")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			o.ConfigID, o.Status, o.ExitCode, len(o.Findings), o.Duration.Round(time.Millisecond))
	}
	w.Flush()

	fmt.Printf("\nrun %s: %s (%d passed, %d tolerated, %d fatal, %d pending of %d) in %s\n",
		run.ID, run.Status,
		run.Summary.Passed, run.Summary.FailedTolerated, run.Summary.FailedFatal,
		run.Summary.Pending, run.Summary.Total, run.Duration.Round(time.Millisecond))
}
