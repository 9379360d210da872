// Package engine implements the cloud sync engine: the change feed
// client, the merge/upsert reconciler, the batch committer, and the
// coordinator that runs them under a single-flight guarantee.
//
// # Sync run
//
// One run executes strictly in order:
//
//  1. Ensure the zone exists (idempotent create).
//  2. Fetch the full zone contents to build an id -> record index.
//     This is deliberately a full fetch, not an incremental one: the
//     merge index must cover every existing record, including those an
//     incremental token would skip.
//  3. Reconcile the learning snapshot singleton and every local entity
//     against the index. Merging is last-writer-wins, full field-set
//     replacement: the local snapshot at sync time is authoritative for
//     every field it owns. There is no three-way merge.
//  4. Commit the reconciled records in provider-safe chunks,
//     sequentially, aggregating per-record outcomes.
//  5. On success, persist the continuation token and last-sync time and
//     clear the recorded error. Fatal failures leave the token alone.
//
// A second Sync while one is in flight is rejected with
// ErrSyncInProgress, not queued. NotifyMutation provides the debounced
// auto-sync path: rapid local mutations coalesce into one run after the
// window elapses.
//
// # Limitations
//
// Entities removed locally are never deleted remotely; there is no
// tombstone mechanism. Wipe (zone deletion plus token reset) is the
// only destructive path.
package engine
