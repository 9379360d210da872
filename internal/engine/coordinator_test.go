package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kestrelapp/kestrel-sync/internal/model"
	"github.com/kestrelapp/kestrel-sync/internal/record"
	"github.com/kestrelapp/kestrel-sync/internal/state"
)

type fakeSnapshots struct {
	exported  *model.LearningSnapshot
	exportErr error
	imported  *model.LearningSnapshot
}

func (f *fakeSnapshots) ExportSnapshot() (*model.LearningSnapshot, error) {
	return f.exported, f.exportErr
}

func (f *fakeSnapshots) ImportSnapshot(s *model.LearningSnapshot) error {
	f.imported = s
	return nil
}

func newTestCoordinator(t *testing.T, fs *fakeStore, snapshots SnapshotPort, cfg Config) (*Coordinator, *state.Store) {
	t.Helper()
	ss := state.NewStore(state.NewMemKV())
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.Zone == "" {
		cfg.Zone = "testzone"
	}
	return New(fs, ss, snapshots, cfg), ss
}

func sampleDataset() ([]*model.Task, []*model.Project, []*model.Area) {
	area := model.NewArea("Work")
	project := model.NewProject("Launch")
	project.AreaID = area.ID
	t1 := model.NewTask("Write announcement")
	t1.ProjectID = project.ID
	t2 := model.NewTask("Review metrics")
	return []*model.Task{t1, t2}, []*model.Project{project}, []*model.Area{area}
}

func TestSyncPushesEverything(t *testing.T) {
	fs := newFakeStore()
	c, ss := newTestCoordinator(t, fs, nil, Config{})

	tasks, projects, areas := sampleDataset()
	result, err := c.Sync(context.Background(), tasks, projects, areas)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if result.Committed != 4 {
		t.Errorf("expected 4 committed records, got %d", result.Committed)
	}
	if fs.recordCount("testzone") != 4 {
		t.Errorf("expected 4 records in the zone, got %d", fs.recordCount("testzone"))
	}

	token, err := ss.Token()
	if err != nil || token == "" {
		t.Errorf("expected persisted token, got %q (err %v)", token, err)
	}
	if _, ok, _ := ss.LastSync(); !ok {
		t.Error("expected last-sync time to be recorded")
	}
	if msg, _ := ss.LastError(); msg != "" {
		t.Errorf("expected no recorded error, got %q", msg)
	}
}

func TestSyncIdempotentResync(t *testing.T) {
	fs := newFakeStore()
	c, _ := newTestCoordinator(t, fs, nil, Config{})

	tasks, projects, areas := sampleDataset()
	ctx := context.Background()

	if _, err := c.Sync(ctx, tasks, projects, areas); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	result, err := c.Sync(ctx, tasks, projects, areas)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	if result.Committed != 4 {
		t.Errorf("resync should recommit all 4 records, got %d", result.Committed)
	}
	if fs.recordCount("testzone") != 4 {
		t.Errorf("resync must not duplicate records, got %d", fs.recordCount("testzone"))
	}
}

func TestSyncMergePreservesUnknownFields(t *testing.T) {
	fs := newFakeStore()
	c, _ := newTestCoordinator(t, fs, nil, Config{})

	task := model.NewTask("Fresh title")
	fs.seed("testzone", record.Record{
		Type: record.TypeTask,
		ID:   task.ID,
		Fields: map[string]any{
			"title":       "Stale title",
			"notes":       "notes the user has since cleared",
			"futureField": "from a newer app version",
		},
	})

	if _, err := c.Sync(context.Background(), []*model.Task{task}, nil, nil); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	stored, ok := fs.get("testzone", task.ID)
	if !ok {
		t.Fatal("expected record in the zone")
	}
	if stored.Fields["title"] != "Fresh title" {
		t.Errorf("title not overwritten: %v", stored.Fields["title"])
	}
	if _, ok := stored.Fields["notes"]; ok {
		t.Error("cleared notes must not survive the merge")
	}
	if stored.Fields["futureField"] != "from a newer app version" {
		t.Error("unknown remote field must be preserved")
	}
}

func TestSyncDisabled(t *testing.T) {
	fs := newFakeStore()
	c, ss := newTestCoordinator(t, fs, nil, Config{})

	if err := ss.SetSyncEnabled(false); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Sync(context.Background(), nil, nil, nil); !errors.Is(err, ErrSyncDisabled) {
		t.Errorf("expected ErrSyncDisabled, got %v", err)
	}
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrSyncDisabled) {
		t.Errorf("expected ErrSyncDisabled from fetch, got %v", err)
	}
}

func TestSyncSingleFlight(t *testing.T) {
	fs := newFakeStore()
	fs.saveEntered = make(chan struct{}, 1)
	fs.saveRelease = make(chan struct{})
	c, _ := newTestCoordinator(t, fs, nil, Config{})

	tasks, projects, areas := sampleDataset()
	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Sync(context.Background(), tasks, projects, areas)
		firstDone <- err
	}()

	select {
	case <-fs.saveEntered:
	case <-time.After(2 * time.Second):
		t.Fatal("first sync never reached the store")
	}

	// While the first run holds the gate, a second caller is rejected.
	if _, err := c.Sync(context.Background(), tasks, projects, areas); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("expected ErrSyncInProgress, got %v", err)
	}
	if !IsRetryable(ErrSyncInProgress) {
		t.Error("single-flight rejection should be retryable")
	}

	close(fs.saveRelease)
	if err := <-firstDone; err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// The gate is released once the run completes.
	fs.mu.Lock()
	fs.saveEntered = nil
	fs.mu.Unlock()
	if _, err := c.Sync(context.Background(), tasks, projects, areas); err != nil {
		t.Errorf("sync after completion should succeed, got %v", err)
	}
}

func TestSyncTransportFailureKeepsToken(t *testing.T) {
	fs := newFakeStore()
	fs.failSaves[1] = errors.New("connection reset")
	c, ss := newTestCoordinator(t, fs, nil, Config{ChunkSize: 2})

	if err := ss.SetToken("999"); err != nil {
		t.Fatal(err)
	}

	tasks, projects, areas := sampleDataset()
	result, err := c.Sync(context.Background(), tasks, projects, areas)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if result == nil || result.Committed != 2 {
		t.Errorf("expected the first chunk's 2 records committed, got %+v", result)
	}

	token, _ := ss.Token()
	if token != "999" {
		t.Errorf("token must be untouched after transport failure, got %q", token)
	}
	if msg, _ := ss.LastError(); msg == "" {
		t.Error("expected last error to be recorded")
	}
}

func TestSyncPartialCommitStillPersistsToken(t *testing.T) {
	fs := newFakeStore()
	c, ss := newTestCoordinator(t, fs, nil, Config{})

	tasks, projects, areas := sampleDataset()
	fs.recordErrs[tasks[0].ID] = errors.New("field too large")

	result, err := c.Sync(context.Background(), tasks, projects, areas)

	var partial *PartialCommitError
	if !errors.As(err, &partial) {
		t.Fatalf("expected PartialCommitError, got %v", err)
	}
	if IsFatal(err) {
		t.Error("partial commit is not fatal")
	}
	if result.Committed != 3 {
		t.Errorf("expected 3 committed, got %d", result.Committed)
	}
	if len(result.Failures) != 1 || result.Failures[0].RecordID != tasks[0].ID {
		t.Errorf("expected the failed task in failures, got %+v", result.Failures)
	}

	if token, _ := ss.Token(); token == "" {
		t.Error("partial commit must still persist the token")
	}
	if msg, _ := ss.LastError(); msg == "" {
		t.Error("expected partial failure recorded as last error")
	}
}

func TestSyncCommitsSnapshotFirst(t *testing.T) {
	fs := newFakeStore()
	snap := &fakeSnapshots{exported: &model.LearningSnapshot{
		Data:        []byte(`{"durations":{}}`),
		LastUpdated: time.Now(),
		Version:     1,
	}}
	c, _ := newTestCoordinator(t, fs, snap, Config{})

	tasks, projects, areas := sampleDataset()
	result, err := c.Sync(context.Background(), tasks, projects, areas)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if result.Committed != 5 {
		t.Errorf("expected 4 entities + snapshot, got %d", result.Committed)
	}
	if len(fs.saveCalls) == 0 || len(fs.saveCalls[0]) == 0 {
		t.Fatal("no save calls recorded")
	}
	if fs.saveCalls[0][0] != record.LearningSnapshotID {
		t.Errorf("snapshot must lead the first chunk, got %s", fs.saveCalls[0][0])
	}
}

func TestFetchMapsRecordsToEntities(t *testing.T) {
	fs := newFakeStore()
	snap := &fakeSnapshots{}
	c, ss := newTestCoordinator(t, fs, snap, Config{})

	task := model.NewTask("Fetched task")
	area := model.NewArea("Fetched area")
	remoteSnap := &model.LearningSnapshot{
		Data:        []byte(`{"durations":{"t":60}}`),
		LastUpdated: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Version:     2,
	}
	fs.seed("testzone",
		record.TaskRecord(task),
		record.AreaRecord(area),
		record.SnapshotRecord(remoteSnap),
		// Unusable record: no title.
		record.Record{Type: record.TypeTask, ID: "junk", Fields: map[string]any{}},
	)

	ds, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if len(ds.Tasks) != 1 || ds.Tasks[0].Title != "Fetched task" {
		t.Errorf("unexpected tasks: %+v", ds.Tasks)
	}
	if len(ds.Areas) != 1 || ds.Areas[0].Name != "Fetched area" {
		t.Errorf("unexpected areas: %+v", ds.Areas)
	}
	if ds.Snapshot == nil || ds.Snapshot.Version != 2 {
		t.Errorf("unexpected snapshot: %+v", ds.Snapshot)
	}
	if snap.imported == nil || snap.imported.Version != 2 {
		t.Error("snapshot must be restored through the port")
	}
	if token, _ := ss.Token(); token == "" {
		t.Error("fetch must persist the continuation token")
	}
}

func TestFetchIncremental(t *testing.T) {
	fs := newFakeStore()
	c, _ := newTestCoordinator(t, fs, nil, Config{})

	first := model.NewTask("First")
	fs.seed("testzone", record.TaskRecord(first))

	if _, err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}

	second := model.NewTask("Second")
	fs.seed("testzone", record.TaskRecord(second))

	ds, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if len(ds.Tasks) != 1 || ds.Tasks[0].Title != "Second" {
		t.Errorf("incremental fetch should return only new changes, got %+v", ds.Tasks)
	}
}

func TestWipeResetsToken(t *testing.T) {
	fs := newFakeStore()
	c, ss := newTestCoordinator(t, fs, nil, Config{})

	tasks, projects, areas := sampleDataset()
	if _, err := c.Sync(context.Background(), tasks, projects, areas); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	if err := c.Wipe(context.Background()); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}

	if fs.recordCount("testzone") != 0 {
		t.Error("zone should be gone after wipe")
	}
	if token, _ := ss.Token(); token != "" {
		t.Errorf("wipe must clear the token, got %q", token)
	}

	// Next sync starts from scratch and recreates the zone.
	if _, err := c.Sync(context.Background(), tasks, projects, areas); err != nil {
		t.Fatalf("sync after wipe failed: %v", err)
	}
	if fs.recordCount("testzone") != 4 {
		t.Errorf("expected zone repopulated, got %d records", fs.recordCount("testzone"))
	}
}

func TestNotifyMutationCoalesces(t *testing.T) {
	fs := newFakeStore()

	var loads atomic.Int32
	done := make(chan struct{}, 4)
	loader := func(ctx context.Context) ([]*model.Task, []*model.Project, []*model.Area, error) {
		loads.Add(1)
		return []*model.Task{model.NewTask("Loaded")}, nil, nil, nil
	}

	c, _ := newTestCoordinator(t, fs, nil, Config{
		DebounceWindow: 20 * time.Millisecond,
		AutoSyncLoader: loader,
		OnAutoSync: func(*Result, error) {
			done <- struct{}{}
		},
	})
	defer c.StopAutoSync()

	for i := 0; i < 5; i++ {
		c.NotifyMutation()
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced sync never fired")
	}

	// Give a stray second firing time to show up, then check it didn't.
	time.Sleep(100 * time.Millisecond)
	if got := loads.Load(); got != 1 {
		t.Errorf("5 rapid mutations should coalesce into 1 run, got %d", got)
	}
	if fs.recordCount("testzone") != 1 {
		t.Errorf("expected the loaded task synced once, got %d records", fs.recordCount("testzone"))
	}
}

func TestStopAutoSyncCancelsPendingRun(t *testing.T) {
	fs := newFakeStore()

	var loads atomic.Int32
	loader := func(ctx context.Context) ([]*model.Task, []*model.Project, []*model.Area, error) {
		loads.Add(1)
		return nil, nil, nil, nil
	}

	c, _ := newTestCoordinator(t, fs, nil, Config{
		DebounceWindow: 50 * time.Millisecond,
		AutoSyncLoader: loader,
	})

	c.NotifyMutation()
	c.StopAutoSync()

	time.Sleep(150 * time.Millisecond)
	if got := loads.Load(); got != 0 {
		t.Errorf("stopped auto-sync must not fire, got %d loads", got)
	}
}
