package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fwmatrix/fwmatrix/pkg/runner"
	"github.com/fwmatrix/fwmatrix/pkg/stores"
)

func newReportCommand() *cobra.Command {
	var (
		dbPath   string
		latest   bool
		listRuns bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Inspect persisted run reports",
		Long: `Inspect runs previously persisted with "check --db".

With a run ID argument the full report for that run is printed: the run
verdict, the per-configuration outcomes and their findings. With
--latest the most recent run is used instead. With --runs the stored
runs are listed newest-first.`,
		Example: `  # List stored runs
  fwmatrix report --db fwmatrix.db --runs

  # Show the most recent run
  fwmatrix report --db fwmatrix.db --latest

  # Show a specific run
  fwmatrix report --db fwmatrix.db 5f2c1a9e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if listRuns {
				runs, err := store.ListRuns(ctx, limit, 0)
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
				return printRuns(runs)
			}

			var run *runner.Run
			switch {
			case latest:
				run, err = store.LatestRun(ctx)
			case len(args) == 1:
				run, err = store.GetRun(ctx, args[0])
			default:
				return fmt.Errorf("a run ID, --latest or --runs is required")
			}
			if errors.Is(err, stores.ErrNotFound) {
				return fmt.Errorf("no matching run in %s", dbPath)
			}
			if err != nil {
				return fmt.Errorf("failed to load run: %w", err)
			}

			outcomes, err := store.ListOutcomes(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("failed to load outcomes: %w", err)
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(struct {
					Run      *runner.Run      `json:"run"`
					Outcomes []runner.Outcome `json:"outcomes"`
				}{run, outcomes})
			}

			printRunSummary(run, outcomes)
			printFindings(outcomes)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "fwmatrix.db", "SQLite database to read reports from")
	cmd.Flags().BoolVar(&latest, "latest", false, "show the most recent run")
	cmd.Flags().BoolVar(&listRuns, "runs", false, "list stored runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")

	return cmd
}

func printRuns(runs []*runner.Run) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tMATRIX\tSTATUS\tPASSED\tTOLERATED\tFATAL\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Matrix, r.Status,
			r.Summary.Passed, r.Summary.FailedTolerated, r.Summary.FailedFatal,
			r.StartedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func printFindings(outcomes []runner.Outcome) {
	for _, o := range outcomes {
		if len(o.Findings) == 0 {
			continue
		}
		fmt.Printf("\n%s (%s):\n", o.ConfigID, o.Status)
		for _, f := range o.Findings {
			if f.Code != "" {
				fmt.Printf("  %s:%d:%d: %s[%s]: %s\n", f.File, f.Line, f.Column, f.Level, f.Code, f.Message)
			} else {
				fmt.Printf("  %s:%d:%d: %s: %s\n", f.File, f.Line, f.Column, f.Level, f.Message)
			}
		}
	}
}
