package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelapp/kestrel-sync/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push the local dataset to the record store",
	Long: `Run one sync: ensure the zone exists, reconcile every local area,
project, task and the learning snapshot against the remote records,
and commit the result in chunks.

Partial failures are reported per record; records that saved stay
saved. The continuation token is only advanced on success.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ss, err := openState()
		if err != nil {
			return err
		}

		coordinator := newCoordinator(st, ss, newLogger("[engine] "), nil)

		tasks, projects, areas, err := loadDataset(cmd.Context())
		if err != nil {
			return fmt.Errorf("load local dataset: %w", err)
		}

		result, err := coordinator.Sync(cmd.Context(), tasks, projects, areas)

		var partial *engine.PartialCommitError
		switch {
		case err == nil:
			fmt.Printf("Sync complete in %v: %d records committed\n",
				result.Duration.Round(time.Millisecond), result.Committed)
		case errors.As(err, &partial):
			fmt.Printf("Sync finished with %d failed records (%d committed)\n",
				len(partial.Failures), result.Committed)
			for _, f := range partial.Failures {
				fmt.Fprintf(os.Stderr, "  %s: %v\n", f.RecordID, f.Err)
			}
		default:
			return err
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
