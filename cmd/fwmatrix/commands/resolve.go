package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
)

func newResolveCommand() *cobra.Command {
	var (
		format    string
		countOnly bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <spec>",
		Short: "Resolve the valid configurations of a matrix",
		Long: `Resolve a matrix specification into its full set of valid configurations.

Resolution enumerates the cartesian product of all axes, drops every
combination hit by an exclusion pair, and (when policies are enabled)
drops combinations denied by a Rego policy. Nothing is executed.`,
		Example: `  # Print the valid configurations as a table
  fwmatrix resolve examples/matrix.cue

  # Only print how many configurations survive
  fwmatrix resolve examples/matrix.cue --count

  # Machine-readable output for CI fan-out
  fwmatrix resolve examples/matrix.cue --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			mc, err := loadMatrix(ctx, args[0])
			if err != nil {
				return err
			}

			reg, cons, _, features, err := mc.ToModel()
			if err != nil {
				return fmt.Errorf("failed to build matrix model: %w", err)
			}

			filters, err := policyFilters(ctx, log.Logger, mc)
			if err != nil {
				return err
			}

			configs := matrix.ResolveAll(reg, cons, filters...)
			log.Info().
				Str("matrix", mc.Name).
				Int("valid", len(configs)).
				Msg("matrix resolved")

			if countOnly {
				fmt.Println(len(configs))
				return nil
			}

			if jsonOutput {
				format = "json"
			}
			return printConfigurations(configs, features, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "output format (table, json, yaml)")
	cmd.Flags().BoolVar(&countOnly, "count", false, "print only the number of valid configurations")

	return cmd
}

// resolvedConfig is the machine-readable projection of one configuration.
type resolvedConfig struct {
	ID       string            `json:"id" yaml:"id"`
	Derived  map[string]string `json:"derived,omitempty" yaml:"derived,omitempty"`
	Features []string          `json:"features" yaml:"features"`
}

func printConfigurations(configs []matrix.Configuration, features *matrix.FeatureBuilder, format string) error {
	switch format {
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CONFIG\tTARGET\tTOOLCHAIN\tFEATURES")
		for _, c := range configs {
			target, _ := c.DerivedValue("target")
			tc, _ := c.DerivedValue("toolchain")
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID(), target, tc, features.Build(c).Key())
		}
		return w.Flush()

	case "json", "yaml":
		out := make([]resolvedConfig, len(configs))
		for i, c := range configs {
			out[i] = resolvedConfig{
				ID:       c.ID(),
				Derived:  c.Derived,
				Features: features.Build(c).Tokens,
			}
		}
		if format == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		return yaml.NewEncoder(os.Stdout).Encode(out)

	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}
