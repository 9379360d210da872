package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/kestrelapp/kestrel-sync/internal/record"
	"github.com/kestrelapp/kestrel-sync/internal/store"
)

// DefaultChunkSize is the number of records per commit operation,
// chosen to stay under the remote store's max-records-per-op limit.
const DefaultChunkSize = 400

// CommitOutcome aggregates per-record results across all chunks of one
// commit pass.
type CommitOutcome struct {
	// Saved holds the ids of records that committed.
	Saved []string
	// Failed holds records rejected individually by the store.
	Failed []RecordFailure
}

// commitRecords splits records into chunks of chunkSize and commits
// them sequentially. Chunks are sequential on purpose: it bounds memory
// and write rate and keeps token bookkeeping simple.
//
// A chunk-level failure aborts the remaining unsent chunks and is
// returned as a *TransportError together with the outcome accumulated
// so far; chunks already committed stay committed, there is no
// rollback. Per-record failures inside a successful chunk are collected
// in the outcome and do not stop the pass.
func commitRecords(ctx context.Context, st store.RecordStore, zone string, records []record.Record, chunkSize int, logger *log.Logger) (CommitOutcome, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var outcome CommitOutcome

	for chunk := 0; len(records) > 0; chunk++ {
		n := chunkSize
		if n > len(records) {
			n = len(records)
		}
		batch := records[:n]
		records = records[n:]

		results, err := st.Save(ctx, zone, batch)
		if err != nil {
			return outcome, &TransportError{Chunk: chunk, Err: err}
		}

		for _, res := range results {
			if res.Err != nil {
				logger.Printf("WARNING: record %s failed to save: %v", res.RecordID, res.Err)
				outcome.Failed = append(outcome.Failed, RecordFailure{RecordID: res.RecordID, Err: res.Err})
				continue
			}
			outcome.Saved = append(outcome.Saved, res.RecordID)
		}

		logger.Printf("Committed chunk %d: %d records", chunk+1, len(batch))
	}

	return outcome, nil
}

// partialError converts an outcome's failures into a PartialCommitError,
// or nil when everything saved.
func (o CommitOutcome) partialError() error {
	if len(o.Failed) == 0 {
		return nil
	}
	return &PartialCommitError{Failures: o.Failed}
}

// String summarizes the outcome for logs.
func (o CommitOutcome) String() string {
	return fmt.Sprintf("saved=%d failed=%d", len(o.Saved), len(o.Failed))
}
