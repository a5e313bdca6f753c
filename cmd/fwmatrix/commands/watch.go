package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fwmatrix/fwmatrix/pkg/matrix"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <spec>",
		Short: "Watch a matrix spec and re-resolve on every change",
		Long: `Watch a matrix specification file and re-resolve the valid configuration
set every time the file changes.

This is the fast feedback loop for editing a matrix: each saved edit
prints the new valid count and the configurations that appeared or
disappeared relative to the previous resolution. Invalid intermediate
states are reported and skipped without stopping the watch.`,
		Example: `  # Re-resolve on every save
  fwmatrix watch examples/matrix.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			specPath := args[0]

			previous, err := resolveIDs(cmd, specPath)
			if err != nil {
				log.Error().Err(err).Msg("initial resolution failed, waiting for a valid spec")
				previous = map[string]bool{}
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			// Watch the directory, not the file: editors replace files on
			// save, which drops a plain file watch.
			if err := watcher.Add(filepath.Dir(specPath)); err != nil {
				return fmt.Errorf("failed to watch %s: %w", specPath, err)
			}
			log.Info().Str("spec", specPath).Msg("watching for changes")

			var reloadTimer *time.Timer
			reloadDelay := 500 * time.Millisecond
			reloads := make(chan struct{}, 1)

			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
						continue
					}
					if filepath.Clean(event.Name) != filepath.Clean(specPath) {
						continue
					}
					if reloadTimer != nil {
						reloadTimer.Stop()
					}
					reloadTimer = time.AfterFunc(reloadDelay, func() {
						select {
						case reloads <- struct{}{}:
						default:
						}
					})

				case <-reloads:
					current, err := resolveIDs(cmd, specPath)
					if err != nil {
						log.Error().Err(err).Msg("spec is invalid, keeping previous resolution")
						continue
					}
					printResolutionDiff(previous, current)
					previous = current

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Error().Err(err).Msg("watcher error")
				}
			}
		},
	}

	return cmd
}

// resolveIDs loads and resolves the spec, returning the set of valid
// configuration IDs.
func resolveIDs(cmd *cobra.Command, specPath string) (map[string]bool, error) {
	ctx := cmd.Context()

	mc, err := loadMatrix(ctx, specPath)
	if err != nil {
		return nil, err
	}
	reg, cons, _, _, err := mc.ToModel()
	if err != nil {
		return nil, err
	}
	filters, err := policyFilters(ctx, log.Logger, mc)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]bool)
	for c := range matrix.Resolve(reg, cons, filters...) {
		ids[c.ID()] = true
	}
	return ids, nil
}

func printResolutionDiff(previous, current map[string]bool) {
	var added, removed []string
	for id := range current {
		if !previous[id] {
			added = append(added, id)
		}
	}
	for id := range previous {
		if !current[id] {
			removed = append(removed, id)
		}
	}

	fmt.Printf("%s  %d valid configurations", time.Now().Format("15:04:05"), len(current))
	if len(added) > 0 {
		fmt.Printf("  +%v", added)
	}
	if len(removed) > 0 {
		fmt.Printf("  -%v", removed)
	}
	fmt.Println()
}
