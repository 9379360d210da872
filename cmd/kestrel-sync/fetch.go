package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelapp/kestrel-sync/internal/model"
)

var fetchWrite bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Pull remote changes since the last continuation token",
	Long: `Fetch records changed since the persisted continuation token (or the
full zone when no token is stored), map them back to domain entities,
and print a summary. With --write the fetched entities are written
into the local dataset directories and the learning snapshot is
restored for the learning services.`,
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

		ds, err := coordinator.Fetch(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Fetched %d tasks, %d projects, %d areas\n",
			len(ds.Tasks), len(ds.Projects), len(ds.Areas))
		if ds.Snapshot != nil {
			fmt.Printf("Learning snapshot: version %d, updated %s\n",
				ds.Snapshot.Version, ds.Snapshot.LastUpdated.Format("2006-01-02 15:04"))
		}

		if !fetchWrite {
			return nil
		}

		areasDir, projectsDir, tasksDir := datasetDirs()
		for _, a := range ds.Areas {
			if err := model.WriteAreaFile(areasDir, a); err != nil {
				return err
			}
		}
		for _, p := range ds.Projects {
			if err := model.WriteProjectFile(projectsDir, p); err != nil {
				return err
			}
		}
		for _, t := range ds.Tasks {
			if err := model.WriteTaskFile(tasksDir, t); err != nil {
				return err
			}
		}

		fmt.Println("Local dataset updated")
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchWrite, "write", false, "write fetched entities into the local dataset")
	rootCmd.AddCommand(fetchCmd)
}
