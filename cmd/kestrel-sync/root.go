package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kestrelapp/kestrel-sync/internal/engine"
	"github.com/kestrelapp/kestrel-sync/internal/model"
	"github.com/kestrelapp/kestrel-sync/internal/state"
	"github.com/kestrelapp/kestrel-sync/internal/store/sqlitestore"
)

var (
	cfgFile string
	dataDir string
)

var rootCmd = &cobra.Command{
	Use:   "kestrel-sync",
	Short: "Cloud sync engine for the Kestrel task manager",
	Long: `kestrel-sync keeps the local Kestrel dataset (areas, projects, tasks,
and the learning snapshot) consistent with the remote record store.

The local dataset lives under the data directory:

  .kestrel/areas/*.json
  .kestrel/projects/*.json
  .kestrel/tasks/*.json
  .kestrel/learning.json   (opaque snapshot from the learning services)

Configuration is read from .kestrel/config.yaml and can be overridden
with KESTREL_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".kestrel", "Kestrel data directory")
	cobra.OnInitialize(initConfig)
}

// initConfig loads viper defaults, the optional config file, and
// KESTREL_* environment overrides.
func initConfig() {
	viper.SetDefault("zone", engine.DefaultZone)
	viper.SetDefault("chunk_size", engine.DefaultChunkSize)
	viper.SetDefault("debounce_window", engine.DefaultDebounceWindow)
	viper.SetDefault("full_sync_interval", "5m")
	viper.SetDefault("dashboard_port", 8090)
	viper.SetDefault("store_path", "")
	viper.SetDefault("log_file", "")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(dataDir)
	}

	viper.SetEnvPrefix("KESTREL")
	viper.AutomaticEnv()

	// Missing config file is fine; defaults apply.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: cannot read config: %v\n", err)
		}
	}
}

// storePath resolves the record store location.
func storePath() string {
	if p := viper.GetString("store_path"); p != "" {
		return p
	}
	return filepath.Join(dataDir, "store.db")
}

// datasetDirs returns the areas, projects and tasks directories.
func datasetDirs() (areasDir, projectsDir, tasksDir string) {
	return filepath.Join(dataDir, "areas"),
		filepath.Join(dataDir, "projects"),
		filepath.Join(dataDir, "tasks")
}

// openStore opens the embedded record store.
func openStore() (*sqlitestore.Store, error) {
	st, err := sqlitestore.Open(storePath())
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	return st, nil
}

// openState opens the persisted sync state.
func openState() (*state.Store, error) {
	kv, err := state.OpenFile(filepath.Join(dataDir, "state.json"))
	if err != nil {
		return nil, fmt.Errorf("open sync state: %w", err)
	}
	return state.NewStore(kv), nil
}

// loadDataset reads the full local dataset from disk.
func loadDataset(context.Context) ([]*model.Task, []*model.Project, []*model.Area, error) {
	areasDir, projectsDir, tasksDir := datasetDirs()

	areas, err := model.ReadAllAreaFiles(areasDir)
	if err != nil {
		return nil, nil, nil, err
	}
	projects, err := model.ReadAllProjectFiles(projectsDir)
	if err != nil {
		return nil, nil, nil, err
	}
	tasks, err := model.ReadAllTaskFiles(tasksDir)
	if err != nil {
		return nil, nil, nil, err
	}

	return tasks, projects, areas, nil
}

// newCoordinator wires a coordinator from config and the given logger.
func newCoordinator(st *sqlitestore.Store, ss *state.Store, logger *log.Logger, onAuto func(*engine.Result, error)) *engine.Coordinator {
	return engine.New(st, ss, &fileSnapshots{path: filepath.Join(dataDir, "learning.json")}, engine.Config{
		Zone:           viper.GetString("zone"),
		ChunkSize:      viper.GetInt("chunk_size"),
		DebounceWindow: viper.GetDuration("debounce_window"),
		AutoSyncLoader: loadDataset,
		OnAutoSync:     onAuto,
		Logger:         logger,
	})
}

// newLogger builds the engine/daemon logger. With log_file configured
// the output rotates through lumberjack; otherwise it goes to stderr.
func newLogger(prefix string) *log.Logger {
	var out io.Writer = os.Stderr
	if path := viper.GetString("log_file"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	return log.New(out, prefix, log.LstdFlags)
}
