// Package record defines the generic remote-record representation and
// the bidirectional mapping between domain entities and records.
//
// A Record is the unit the remote store works with: one type tag, one
// stable identifier, one field-value map. The field map is the single
// untyped seam in the engine; everything on either side of it is
// strongly typed. Reads through the accessors below are defensive:
// a missing or malformed field yields the zero value, never an error,
// so one bad field can never abort a fetch.
package record

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// RecordType tags a record with the entity kind it represents.
type RecordType string

const (
	TypeArea             RecordType = "Area"
	TypeProject          RecordType = "Project"
	TypeTask             RecordType = "Task"
	TypeLearningSnapshot RecordType = "LearningSnapshot"
)

// LearningSnapshotID is the fixed identifier of the singleton snapshot
// record. There is exactly one per zone.
const LearningSnapshotID = "learning-snapshot"

// Record is a remote-store unit of storage.
type Record struct {
	Type   RecordType
	ID     string
	Fields map[string]any
}

// Clone returns a deep-enough copy: the field map is copied, values are
// shared. Values are treated as immutable by the engine.
func (r Record) Clone() Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{Type: r.Type, ID: r.ID, Fields: fields}
}

// stringField reads a string field, defaulting to "".
func stringField(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

// boolField reads a boolean stored either natively or as the 0/1
// convention of the wire schema.
func boolField(fields map[string]any, key string) bool {
	switch v := fields[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}

// intField reads an integer field. JSON decoding hands back float64.
func intField(fields map[string]any, key string) int64 {
	switch v := fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// timeField reads an RFC 3339 timestamp field, defaulting to the zero time.
func timeField(fields map[string]any, key string) time.Time {
	switch v := fields[key].(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// timePtrField reads an optional timestamp field, nil when absent.
func timePtrField(fields map[string]any, key string) *time.Time {
	t := timeField(fields, key)
	if t.IsZero() {
		return nil
	}
	return &t
}

// stringSliceField reads a list-of-strings field; non-string elements
// are dropped.
func stringSliceField(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return v
	case []any:
		var out []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// bytesField reads an encoded blob field. After a JSON round trip
// through the store, []byte values come back base64-encoded.
func bytesField(fields map[string]any, key string) []byte {
	switch v := fields[key].(type) {
	case []byte:
		return v
	case string:
		if b, err := base64.StdEncoding.DecodeString(v); err == nil {
			return b
		}
	}
	return nil
}

// decodeBlob decodes a JSON blob field into dst, best effort.
// Returns false when the field is absent or undecodable; dst is left
// untouched so the caller keeps its empty default.
func decodeBlob(fields map[string]any, key string, dst any) bool {
	b := bytesField(fields, key)
	if len(b) == 0 {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}
