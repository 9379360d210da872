package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrelapp/kestrel-sync/internal/model"
	"github.com/kestrelapp/kestrel-sync/internal/record"
	"github.com/kestrelapp/kestrel-sync/internal/state"
	"github.com/kestrelapp/kestrel-sync/internal/store"
)

// DefaultZone is the application's private data partition.
const DefaultZone = "kestrel"

// DefaultDebounceWindow is how long after the last local mutation an
// auto-sync fires. Mutations inside the window coalesce into one run.
const DefaultDebounceWindow = 2 * time.Second

// SnapshotPort is the boundary to the learned-estimation services.
// The engine treats the snapshot as an opaque blob: export to persist,
// import to restore, never interpret.
type SnapshotPort interface {
	ExportSnapshot() (*model.LearningSnapshot, error)
	ImportSnapshot(*model.LearningSnapshot) error
}

// Loader supplies the local dataset for debounced auto-sync runs.
// It is called at fire time so the run sees the latest local state.
type Loader func(ctx context.Context) (tasks []*model.Task, projects []*model.Project, areas []*model.Area, err error)

// Config holds coordinator configuration.
type Config struct {
	// Zone is the record-store partition to sync with.
	Zone string

	// ChunkSize caps records per commit operation.
	ChunkSize int

	// DebounceWindow is the auto-sync coalescing window.
	DebounceWindow time.Duration

	// AutoSyncLoader supplies entities for debounced runs. Required
	// for NotifyMutation to do anything.
	AutoSyncLoader Loader

	// OnAutoSync, if set, observes the outcome of each debounced run.
	OnAutoSync func(*Result, error)

	// Logger for sync activity.
	Logger *log.Logger
}

// Result summarizes one sync run.
type Result struct {
	// Committed is the number of records saved.
	Committed int
	// Failures lists records that failed to save individually.
	Failures []RecordFailure
	// Token is the continuation token persisted by this run.
	Token string
	// Duration is the wall time of the run.
	Duration time.Duration
}

// Dataset is the domain view of fetched remote changes.
type Dataset struct {
	Tasks    []*model.Task
	Projects []*model.Project
	Areas    []*model.Area
	Snapshot *model.LearningSnapshot
}

// Coordinator orchestrates sync runs against the record store.
//
// Exactly one sync runs at a time; concurrent callers are rejected with
// ErrSyncInProgress. The continuation token and last-sync timestamp are
// single-writer: only the coordinator mutates them, and only after a
// fully successful run.
type Coordinator struct {
	store     store.RecordStore
	state     *state.Store
	snapshots SnapshotPort

	zone      string
	chunkSize int
	window    time.Duration
	loader    Loader
	onAuto    func(*Result, error)
	logger    *log.Logger

	syncing atomic.Bool

	debounceMu sync.Mutex
	debounce   *time.Timer
}

// New creates a sync coordinator.
//
// snapshots may be nil when no learning services are attached; the
// snapshot singleton is then neither pushed nor restored. If the config
// logger is nil, a default logger writing to stderr is used.
func New(st store.RecordStore, ss *state.Store, snapshots SnapshotPort, cfg Config) *Coordinator {
	if cfg.Zone == "" {
		cfg.Zone = DefaultZone
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}

	return &Coordinator{
		store:     st,
		state:     ss,
		snapshots: snapshots,
		zone:      cfg.Zone,
		chunkSize: cfg.ChunkSize,
		window:    cfg.DebounceWindow,
		loader:    cfg.AutoSyncLoader,
		onAuto:    cfg.OnAutoSync,
		logger:    cfg.Logger,
	}
}

// Zone returns the zone this coordinator syncs with.
func (c *Coordinator) Zone() string {
	return c.zone
}

// Sync pushes the given local entities to the record store.
//
// Returns ErrSyncDisabled when the sync toggle is off and
// ErrSyncInProgress when another run holds the single-flight gate.
// A *PartialCommitError is returned alongside a valid Result when some
// records failed individually; the run still counts as successful and
// the token is persisted. Fatal errors leave the token unchanged.
func (c *Coordinator) Sync(ctx context.Context, tasks []*model.Task, projects []*model.Project, areas []*model.Area) (*Result, error) {
	if enabled, _ := c.state.SyncEnabled(); !enabled {
		return nil, ErrSyncDisabled
	}

	if !c.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer c.syncing.Store(false)

	start := time.Now()
	c.logger.Printf("Sync started: %d tasks, %d projects, %d areas", len(tasks), len(projects), len(areas))

	if err := c.store.EnsureZone(ctx, c.zone); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return nil, c.fail(fmt.Errorf("ensure zone: %w", err))
		}
		return nil, c.fail(&ZoneError{Op: "ensure", Err: err})
	}

	// Full-zone fetch to build the merge index. Incremental tokens
	// would skip records we still need for upsert decisions.
	remote, token, err := FetchChanges(ctx, c.store, c.zone, "", c.logger)
	if err != nil {
		return nil, c.fail(fmt.Errorf("fetch record index: %w", err))
	}

	locals := c.localRecords(tasks, projects, areas)
	toCommit := Reconcile(locals, indexByID(remote))

	outcome, err := commitRecords(ctx, c.store, c.zone, toCommit, c.chunkSize, c.logger)
	result := &Result{
		Committed: len(outcome.Saved),
		Failures:  outcome.Failed,
		Duration:  time.Since(start),
	}
	if err != nil {
		// Transport failure mid-batch: earlier chunks stand, the token
		// stays untouched so nothing already pushed is lost next run.
		return result, c.fail(err)
	}

	if err := c.state.SetToken(token); err != nil {
		c.logger.Printf("WARNING: failed to persist continuation token: %v", err)
	}
	if err := c.state.SetLastSync(time.Now()); err != nil {
		c.logger.Printf("WARNING: failed to persist last-sync time: %v", err)
	}
	result.Token = token

	if perr := outcome.partialError(); perr != nil {
		c.logger.Printf("Sync finished with partial failures: %s", outcome)
		_ = c.state.SetLastError(perr.Error())
		return result, perr
	}

	_ = c.state.ClearLastError()
	c.logger.Printf("Sync complete in %v: %s", result.Duration.Round(time.Millisecond), outcome)
	return result, nil
}

// Fetch pulls remote changes since the persisted continuation token and
// maps them back to domain entities. With no token stored this is a
// full resync. The new token is persisted on success, and the learning
// snapshot, if present in the changes, is restored through the port.
func (c *Coordinator) Fetch(ctx context.Context) (*Dataset, error) {
	if enabled, _ := c.state.SyncEnabled(); !enabled {
		return nil, ErrSyncDisabled
	}

	since, err := c.state.Token()
	if err != nil {
		return nil, fmt.Errorf("read continuation token: %w", err)
	}

	records, token, err := FetchChanges(ctx, c.store, c.zone, since, c.logger)
	if err != nil {
		return nil, c.fail(fmt.Errorf("fetch changes: %w", err))
	}

	ds := &Dataset{}
	skipped := 0

	for _, r := range records {
		switch r.Type {
		case record.TypeTask:
			if t, ok := record.TaskFromRecord(r); ok {
				ds.Tasks = append(ds.Tasks, t)
			} else {
				skipped++
			}
		case record.TypeProject:
			if p, ok := record.ProjectFromRecord(r); ok {
				ds.Projects = append(ds.Projects, p)
			} else {
				skipped++
			}
		case record.TypeArea:
			if a, ok := record.AreaFromRecord(r); ok {
				ds.Areas = append(ds.Areas, a)
			} else {
				skipped++
			}
		case record.TypeLearningSnapshot:
			if s, ok := record.SnapshotFromRecord(r); ok {
				ds.Snapshot = s
			} else {
				skipped++
			}
		default:
			skipped++
		}
	}

	if skipped > 0 {
		c.logger.Printf("Fetch skipped %d records without usable data", skipped)
	}

	if ds.Snapshot != nil && c.snapshots != nil {
		if err := c.snapshots.ImportSnapshot(ds.Snapshot); err != nil {
			c.logger.Printf("WARNING: failed to restore learning snapshot: %v", err)
		}
	}

	if err := c.state.SetToken(token); err != nil {
		c.logger.Printf("WARNING: failed to persist continuation token: %v", err)
	}

	c.logger.Printf("Fetched %d tasks, %d projects, %d areas", len(ds.Tasks), len(ds.Projects), len(ds.Areas))
	return ds, nil
}

// Wipe deletes the entire zone and resets the continuation token.
// A deleted zone invalidates any token issued for it, so the reset is
// mandatory, not an optimization.
func (c *Coordinator) Wipe(ctx context.Context) error {
	if err := c.store.DeleteZone(ctx, c.zone); err != nil {
		return c.fail(&ZoneError{Op: "delete", Err: err})
	}
	if err := c.state.ClearToken(); err != nil {
		return fmt.Errorf("clear continuation token: %w", err)
	}
	c.logger.Printf("Zone %s wiped", c.zone)
	return nil
}

// NotifyMutation registers a local data change for debounced auto-sync.
// The window restarts on every call; one sync fires when it elapses.
func (c *Coordinator) NotifyMutation() {
	if c.loader == nil {
		return
	}

	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()

	if c.debounce == nil {
		c.debounce = time.AfterFunc(c.window, c.autoSync)
		return
	}
	c.debounce.Reset(c.window)
}

// StopAutoSync cancels any pending debounced run.
func (c *Coordinator) StopAutoSync() {
	c.debounceMu.Lock()
	defer c.debounceMu.Unlock()

	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}

// autoSync runs one debounced sync with a freshly loaded dataset.
func (c *Coordinator) autoSync() {
	ctx := context.Background()

	tasks, projects, areas, err := c.loader(ctx)
	if err != nil {
		c.logger.Printf("Auto-sync load failed: %v", err)
		_ = c.state.SetLastError(err.Error())
		if c.onAuto != nil {
			c.onAuto(nil, err)
		}
		return
	}

	result, err := c.Sync(ctx, tasks, projects, areas)
	if err != nil && !errors.Is(err, ErrSyncInProgress) {
		c.logger.Printf("Auto-sync failed: %v", err)
	}
	if c.onAuto != nil {
		c.onAuto(result, err)
	}
}

// localRecords maps the snapshot singleton and every entity to records,
// snapshot first so it is committed in the first chunk.
func (c *Coordinator) localRecords(tasks []*model.Task, projects []*model.Project, areas []*model.Area) []record.Record {
	records := make([]record.Record, 0, len(tasks)+len(projects)+len(areas)+1)

	if c.snapshots != nil {
		snap, err := c.snapshots.ExportSnapshot()
		switch {
		case err != nil:
			c.logger.Printf("WARNING: failed to export learning snapshot: %v", err)
		case snap != nil && len(snap.Data) > 0:
			records = append(records, record.SnapshotRecord(snap))
		}
	}

	for _, a := range areas {
		records = append(records, record.AreaRecord(a))
	}
	for _, p := range projects {
		records = append(records, record.ProjectRecord(p))
	}
	for _, t := range tasks {
		records = append(records, record.TaskRecord(t))
	}

	return records
}

// fail records the error for observability before returning it.
func (c *Coordinator) fail(err error) error {
	_ = c.state.SetLastError(err.Error())
	return err
}
