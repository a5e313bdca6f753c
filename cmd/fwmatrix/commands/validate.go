package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fwmatrix/fwmatrix/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec>",
		Short: "Validate a matrix specification",
		Long: `Validate a matrix specification without resolving or checking anything.

This command checks:
  - CUE (or YAML) syntax validity
  - Schema conformance
  - Struct-level constraints
  - Cross-references: exclusions, derived maps and the tolerance list
    must only name registered axis members`,
		Example: `  # Validate the example matrix
  fwmatrix validate examples/matrix.cue

  # Validate a YAML spec
  fwmatrix validate ci/matrix.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mc, err := loadMatrix(cmd.Context(), args[0])
			if err != nil {
				var verr config.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("%s:%d:%d: %s", verr.File, verr.Line, verr.Column, verr.Message)
				}
				return err
			}

			log.Info().
				Str("matrix", mc.Name).
				Int("axes", len(mc.Axes)).
				Int("exclusions", len(mc.Exclude)).
				Msg("specification is valid")

			fmt.Printf("matrix %q is valid\n", mc.Name)
			for _, axis := range mc.Axes {
				fmt.Printf("  axis %-8s %d members\n", axis.Name, len(axis.Members))
			}
			fmt.Printf("  %d exclusion pairs, %d derived attributes\n", len(mc.Exclude), len(mc.Derived))
			if mc.Tolerated != nil {
				fmt.Printf("  tolerated %s: %v\n", mc.Tolerated.Axis, mc.Tolerated.Members)
			}
			return nil
		},
	}

	return cmd
}
