package engine

import (
	"github.com/kestrelapp/kestrel-sync/internal/record"
)

// Reconcile decides, per local record, whether it updates an existing
// remote record or creates a new one, and returns the records to commit.
//
// The policy is last-writer-wins, field-set replacement: when a remote
// record with the same id exists, every mapped field is overwritten
// with the local value. Remote-only fields the mapper doesn't know
// about (written by newer app versions) are preserved; everything the
// local snapshot owns replaces whatever was there. No per-field diffing
// or three-way merge: cross-device conflicts resolve as "whoever syncs
// last for that whole record wins".
func Reconcile(locals []record.Record, remoteByID map[string]record.Record) []record.Record {
	out := make([]record.Record, 0, len(locals))

	for _, local := range locals {
		existing, ok := remoteByID[local.ID]
		if !ok {
			out = append(out, local)
			continue
		}

		merged := existing.Clone()
		merged.Type = local.Type
		for _, k := range record.MappedFields(local.Type) {
			delete(merged.Fields, k)
		}
		for k, v := range local.Fields {
			merged.Fields[k] = v
		}
		out = append(out, merged)
	}

	return out
}
