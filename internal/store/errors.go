package store

import "errors"

// Common errors returned by RecordStore implementations.
//
// These can be checked with errors.Is():
//
//	if errors.Is(err, store.ErrZoneNotFound) {
//	    // caller skipped EnsureZone
//	}
var (
	// ErrZoneNotFound is returned when an operation targets a zone
	// that does not exist. The caller must ensure the zone first.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrInvalidToken is returned when a continuation token is
	// malformed or was issued for a different zone.
	ErrInvalidToken = errors.New("invalid continuation token")

	// ErrUnavailable is returned when the backing account or service
	// is not usable (signed out, quota revoked). Fatal for the run;
	// not retried automatically.
	ErrUnavailable = errors.New("record store unavailable")
)
