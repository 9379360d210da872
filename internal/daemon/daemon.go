// Package daemon provides the auto-sync daemon that watches the local
// dataset and keeps the record store up to date.
//
// The daemon:
//  1. Watches areas/, projects/ and tasks/ for *.json changes
//  2. Funnels every change into the coordinator's debounced auto-sync
//  3. Triggers a periodic full sync as a safety net
//  4. Handles graceful shutdown
//
// The debounce itself lives in the coordinator; the daemon's job is to
// turn filesystem events into mutation notifications and to keep the
// watcher healthy.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kestrelapp/kestrel-sync/internal/engine"
)

// Config holds configuration for the daemon.
type Config struct {
	// FullSyncInterval is how often to force a sync regardless of
	// observed events, catching changes the watcher missed.
	FullSyncInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		FullSyncInterval: 5 * time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches the dataset directories and drives auto-sync.
type Daemon struct {
	coordinator *engine.Coordinator
	dirs        []string
	config      *Config

	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon watching the given dataset directories.
//
// The coordinator must have an AutoSyncLoader configured; the daemon
// only notifies it of mutations. Directories that do not exist yet are
// created so they can be watched.
func New(coordinator *engine.Coordinator, areasDir, projectsDir, tasksDir string, config *Config) (*Daemon, error) {
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		coordinator: coordinator,
		dirs:        []string{areasDir, projectsDir, tasksDir},
		config:      config,
		watcher:     watcher,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching and syncing.
//
// An initial sync is scheduled immediately through the debounce so a
// freshly started daemon converges without waiting for an event. This
// blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	for _, dir := range d.dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create dataset directory %s: %w", dir, err)
		}
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	d.config.Logger.Printf("Watching: %v", d.dirs)

	d.coordinator.NotifyMutation()

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()
	d.coordinator.StopAutoSync()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents forwards dataset changes to the coordinator.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Remove, Rename
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.coordinator.NotifyMutation()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// periodicSync forces a sync at the configured interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	if d.config.FullSyncInterval <= 0 {
		return
	}

	ticker := time.NewTicker(d.config.FullSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.config.Logger.Println("Periodic sync")
			d.coordinator.NotifyMutation()
		}
	}
}
