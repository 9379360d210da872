package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/kestrelapp/kestrel-sync/internal/record"
	"github.com/kestrelapp/kestrel-sync/internal/store"
)

// fakeStore is a scriptable in-memory RecordStore. Tests can inject
// transport failures on specific Save calls, per-record failures, a
// page size for the change feed, and a gate that blocks Save until
// released.
type fakeStore struct {
	mu sync.Mutex

	zones map[string]*fakeZone

	// pageSize caps records per Changes page when > 0.
	pageSize int
	// failSaves maps a zero-based Save call index to a transport error.
	failSaves map[int]error
	// recordErrs maps a record id to an individual save failure.
	recordErrs map[string]error
	// saveCalls records the ids passed to each Save call, in order.
	saveCalls [][]string
	// unavailable makes every method fail with store.ErrUnavailable.
	unavailable bool

	// When saveEntered is non-nil, Save signals it and then blocks on
	// saveRelease before doing any work.
	saveEntered chan struct{}
	saveRelease chan struct{}
}

type fakeZone struct {
	seq     int64
	records map[string]fakeRec
}

type fakeRec struct {
	rec record.Record
	seq int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		zones:      make(map[string]*fakeZone),
		failSaves:  make(map[int]error),
		recordErrs: make(map[string]error),
	}
}

func (f *fakeStore) EnsureZone(ctx context.Context, zone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unavailable {
		return store.ErrUnavailable
	}
	if _, ok := f.zones[zone]; !ok {
		f.zones[zone] = &fakeZone{records: make(map[string]fakeRec)}
	}
	return nil
}

func (f *fakeStore) DeleteZone(ctx context.Context, zone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unavailable {
		return store.ErrUnavailable
	}
	delete(f.zones, zone)
	return nil
}

func (f *fakeStore) Changes(ctx context.Context, zone, since string, limit int) (*store.ChangePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unavailable {
		return nil, store.ErrUnavailable
	}
	z, ok := f.zones[zone]
	if !ok {
		return nil, store.ErrZoneNotFound
	}

	var sinceSeq int64
	if since != "" {
		parsed, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			return nil, store.ErrInvalidToken
		}
		sinceSeq = parsed
	}

	var changed []fakeRec
	for _, fr := range z.records {
		if fr.seq > sinceSeq {
			changed = append(changed, fr)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].seq < changed[j].seq })

	pageLimit := limit
	if f.pageSize > 0 && f.pageSize < pageLimit {
		pageLimit = f.pageSize
	}

	page := &store.ChangePage{Token: strconv.FormatInt(z.seq, 10)}
	if len(changed) > pageLimit {
		changed = changed[:pageLimit]
		page.MoreComing = true
		page.Token = strconv.FormatInt(changed[len(changed)-1].seq, 10)
	}
	for _, fr := range changed {
		page.Records = append(page.Records, fr.rec.Clone())
	}
	return page, nil
}

func (f *fakeStore) Save(ctx context.Context, zone string, records []record.Record) ([]store.SaveResult, error) {
	f.mu.Lock()
	call := len(f.saveCalls)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	f.saveCalls = append(f.saveCalls, ids)
	entered, release := f.saveEntered, f.saveRelease
	failErr := f.failSaves[call]
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if failErr != nil {
		return nil, failErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unavailable {
		return nil, store.ErrUnavailable
	}
	z, ok := f.zones[zone]
	if !ok {
		return nil, store.ErrZoneNotFound
	}

	results := make([]store.SaveResult, 0, len(records))
	for _, r := range records {
		if err, bad := f.recordErrs[r.ID]; bad {
			results = append(results, store.SaveResult{RecordID: r.ID, Err: err})
			continue
		}
		if r.ID == "" {
			results = append(results, store.SaveResult{RecordID: r.ID, Err: fmt.Errorf("record has no id")})
			continue
		}
		z.seq++
		z.records[r.ID] = fakeRec{rec: r.Clone(), seq: z.seq}
		results = append(results, store.SaveResult{RecordID: r.ID})
	}
	return results, nil
}

// recordCount returns the number of records in a zone, 0 when missing.
func (f *fakeStore) recordCount(zone string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zones[zone]
	if !ok {
		return 0
	}
	return len(z.records)
}

// get returns a stored record by id.
func (f *fakeStore) get(zone, id string) (record.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zones[zone]
	if !ok {
		return record.Record{}, false
	}
	fr, ok := z.records[id]
	if !ok {
		return record.Record{}, false
	}
	return fr.rec.Clone(), true
}

// seed stores records directly, bypassing Save bookkeeping.
func (f *fakeStore) seed(zone string, records ...record.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zones[zone]
	if !ok {
		z = &fakeZone{records: make(map[string]fakeRec)}
		f.zones[zone] = z
	}
	for _, r := range records {
		z.seq++
		z.records[r.ID] = fakeRec{rec: r.Clone(), seq: z.seq}
	}
}
