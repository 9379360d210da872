package engine

import (
	"errors"
	"fmt"

	"github.com/kestrelapp/kestrel-sync/internal/store"
)

// Errors returned by the sync coordinator.
//
// Check with errors.Is()/errors.As():
//
//	if errors.Is(err, engine.ErrSyncInProgress) {
//	    // retry later, e.g. through the debounce
//	}
var (
	// ErrSyncInProgress is the single-flight rejection: another sync is
	// already running. The caller retries later; it is never queued.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncDisabled is returned when the sync-enabled toggle is off.
	ErrSyncDisabled = errors.New("sync is disabled")

	// ErrAccountUnavailable is returned when the remote identity is not
	// usable. Fatal for this run; not retried automatically.
	ErrAccountUnavailable = errors.New("account unavailable")
)

// ZoneError is a zone creation or deletion failure other than
// "already exists". Fatal for this run.
type ZoneError struct {
	Op  string // "ensure" or "delete"
	Err error
}

func (e *ZoneError) Error() string {
	return fmt.Sprintf("zone %s failed: %v", e.Op, e.Err)
}

func (e *ZoneError) Unwrap() error { return e.Err }

// TransportError is a chunk-level network failure during commit.
// Chunks committed before it stand; chunks after it were never sent.
type TransportError struct {
	Chunk int // zero-based index of the chunk that failed
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on chunk %d: %v", e.Chunk, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RecordFailure is the per-record outcome of a failed save.
type RecordFailure struct {
	RecordID string
	Err      error
}

// PartialCommitError reports records that failed to save while the rest
// of the batch committed. Non-fatal: successes are kept and the
// coordinator still persists the continuation token.
type PartialCommitError struct {
	Failures []RecordFailure
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("%d records failed to commit", len(e.Failures))
}

// IsFatal reports whether the error aborted the whole sync. Per-record
// and per-chunk failures are absorbed and aggregated; only account and
// zone level failures are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountUnavailable) || errors.Is(err, store.ErrUnavailable) {
		return true
	}
	var zoneErr *ZoneError
	return errors.As(err, &zoneErr)
}

// IsRetryable reports whether the caller should expect a later attempt
// to succeed without intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSyncInProgress) {
		return true
	}
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
