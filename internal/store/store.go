// Package store defines the port to the remote record store.
//
// The engine talks to the store exclusively through the RecordStore
// interface: zone lifecycle, a paged change feed, and batched saves.
// The sqlitestore subpackage provides the embedded implementation used
// in development and tests; a cloud-backed client plugs into the same
// interface.
package store

import (
	"context"

	"github.com/kestrelapp/kestrel-sync/internal/record"
)

// ChangePage is one page of the change feed.
type ChangePage struct {
	// Records are the records added or modified since the requested token.
	Records []record.Record

	// Token represents "caught up to the last record in this page".
	// Presenting it to a later Changes call returns only newer changes.
	Token string

	// MoreComing reports whether another page is available. Callers are
	// expected to loop until it is false; the engine's change feed
	// client does this and hands out one flattened result.
	MoreComing bool
}

// SaveResult is the per-record outcome of a batched save.
// Err is nil for records that were committed.
type SaveResult struct {
	RecordID string
	Err      error
}

// RecordStore is the remote record store port.
//
// All methods are blocking-until-complete; implementations must honor
// ctx cancellation. Save is not transactional across the batch: records
// that saved stay saved even when others in the same batch fail.
type RecordStore interface {
	// EnsureZone creates the named zone if it does not exist.
	// Creation is idempotent: a zone that already exists is success.
	EnsureZone(ctx context.Context, zone string) error

	// DeleteZone removes the zone and every record in it.
	// Any continuation token issued for the zone becomes invalid.
	DeleteZone(ctx context.Context, zone string) error

	// Changes returns up to limit records changed since the given token.
	// An empty token requests the full zone contents. Returns
	// ErrZoneNotFound when the zone does not exist and ErrInvalidToken
	// when the token was issued for a different zone.
	Changes(ctx context.Context, zone, since string, limit int) (*ChangePage, error)

	// Save upserts the given records and reports a per-record outcome.
	// A returned error means the operation itself failed (transport,
	// missing zone) and no outcome is available; per-record problems
	// are carried in the results instead.
	Save(ctx context.Context, zone string, records []record.Record) ([]SaveResult, error)
}
