package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/kestrelapp/kestrel-sync/internal/record"
	"github.com/kestrelapp/kestrel-sync/internal/store"
)

// feedPageSize is how many records to request per change-feed page.
// The store may return fewer; the client loops until MoreComing is false.
const feedPageSize = 200

// FetchChanges drains the zone's change feed from the given token and
// returns one flattened record slice plus the single token representing
// "caught up to this point".
//
// An empty since token requests a full resync: every record in the
// zone. Page accumulation is internal; callers see exactly one result
// and one token. A failure of the fetch itself (missing zone, transport)
// is returned; the caller must have ensured the zone first.
func FetchChanges(ctx context.Context, st store.RecordStore, zone, since string, logger *log.Logger) ([]record.Record, string, error) {
	var (
		records []record.Record
		token   = since
		page    = 0
	)

	for {
		page++
		cp, err := st.Changes(ctx, zone, token, feedPageSize)
		if err != nil {
			return nil, "", fmt.Errorf("change fetch page %d: %w", page, err)
		}

		records = append(records, cp.Records...)
		token = cp.Token

		if len(cp.Records) > 0 && logger != nil {
			logger.Printf("Change feed page %d: +%d records", page, len(cp.Records))
		}

		if !cp.MoreComing {
			break
		}
	}

	return records, token, nil
}

// indexByID builds the id -> record merge index from a fetched slice.
// Later occurrences of an id win, matching the feed's change ordering.
func indexByID(records []record.Record) map[string]record.Record {
	index := make(map[string]record.Record, len(records))
	for _, r := range records {
		index[r.ID] = r
	}
	return index
}
