package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrelapp/kestrel-sync/internal/daemon"
	"github.com/kestrelapp/kestrel-sync/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch the local dataset and auto-sync",
	Long: `Run the auto-sync daemon: watch the areas/, projects/ and tasks/
directories for changes, coalesce rapid edits through the debounce
window, and sync automatically. A WebSocket dashboard on the
configured port broadcasts sync completions and failures.

Runs until interrupted (SIGINT/SIGTERM).`,
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

		logger := newLogger("[daemon] ")

		dash := dashboard.NewServer(&dashboard.Config{
			Port:   viper.GetInt("dashboard_port"),
			Logger: logger,
		})
		if err := dash.Start(); err != nil {
			return err
		}
		defer dash.Stop()

		coordinator := newCoordinator(st, ss, newLogger("[engine] "), dash.SyncObserver())

		areasDir, projectsDir, tasksDir := datasetDirs()
		d, err := daemon.New(coordinator, areasDir, projectsDir, tasksDir, &daemon.Config{
			FullSyncInterval: viper.GetDuration("full_sync_interval"),
			Logger:           logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return d.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
