// Package sqlitestore implements the record store port on embedded
// SQLite (ncruces/go-sqlite3, WAL mode).
//
// Zones are rows in the zones table; each zone carries a monotonically
// increasing change sequence. Every saved record is stamped with the
// next sequence value, and a continuation token is "<zone>@<seq>":
// presenting it returns only records with a higher sequence. Deleting a
// zone cascades to its records and retires every token issued for it.
//
// This is the development and test backend. It is deliberately honest
// about the port's semantics: per-record save outcomes, paged change
// feeds, and token invalidation behave the way a cloud store would.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelapp/kestrel-sync/internal/record"
	"github.com/kestrelapp/kestrel-sync/internal/store"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store is a RecordStore backed by an embedded SQLite database.
type Store struct {
	conn *sql.DB
	path string
}

var _ store.RecordStore = (*Store)(nil)

// Open creates a new store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads. The caller MUST call Close() when done.
//
// Example:
//
//	st, err := sqlitestore.Open(".kestrel/store.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	st := &Store{
		conn: conn,
		path: path,
	}

	if _, err := st.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := st.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := st.initSchema(context.Background()); err != nil {
		_ = st.Close()
		return nil, err
	}

	return st, nil
}

// Close closes the database connection after a WAL checkpoint.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the tables if they don't exist. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS zones (
		name TEXT PRIMARY KEY,
		change_seq INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		zone TEXT NOT NULL,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		fields TEXT NOT NULL,  -- JSON field map
		seq INTEGER NOT NULL,
		modified_at TEXT NOT NULL,
		PRIMARY KEY (zone, id),
		FOREIGN KEY (zone) REFERENCES zones(name) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_records_zone_seq ON records(zone, seq);
	CREATE INDEX IF NOT EXISTS idx_records_type ON records(zone, type);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// EnsureZone implements store.RecordStore.EnsureZone.
// Re-creating an existing zone is success and does not disturb its
// records or change sequence.
func (s *Store) EnsureZone(ctx context.Context, zone string) error {
	if zone == "" {
		return fmt.Errorf("zone name cannot be empty")
	}

	query := `
	INSERT INTO zones (name, change_seq, created_at)
	VALUES (?, 0, ?)
	ON CONFLICT(name) DO NOTHING
	`

	_, err := s.conn.ExecContext(ctx, query, zone, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to ensure zone %s: %w", zone, err)
	}

	return nil
}

// DeleteZone implements store.RecordStore.DeleteZone.
// Returns nil if the zone doesn't exist (idempotent).
func (s *Store) DeleteZone(ctx context.Context, zone string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM zones WHERE name = ?`, zone)
	if err != nil {
		return fmt.Errorf("failed to delete zone %s: %w", zone, err)
	}
	return nil
}

// Changes implements store.RecordStore.Changes.
//
// Records are returned in change order. The page token always points at
// the last record handed out, so a caller that loops on MoreComing and
// keeps the final token is caught up to that point.
func (s *Store) Changes(ctx context.Context, zone, since string, limit int) (*store.ChangePage, error) {
	if limit <= 0 {
		limit = 100
	}

	if err := s.requireZone(ctx, zone); err != nil {
		return nil, err
	}

	sinceSeq, err := parseToken(zone, since)
	if err != nil {
		return nil, err
	}

	// Fetch one extra row to detect whether more pages remain.
	query := `
	SELECT id, type, fields, seq
	FROM records
	WHERE zone = ? AND seq > ?
	ORDER BY seq ASC
	LIMIT ?
	`

	rows, err := s.conn.QueryContext(ctx, query, zone, sinceSeq, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes for zone %s: %w", zone, err)
	}
	defer rows.Close()

	page := &store.ChangePage{Token: formatToken(zone, sinceSeq)}
	lastSeq := sinceSeq

	for rows.Next() {
		var (
			id, typ, fieldsJSON string
			seq                 int64
		)
		if err := rows.Scan(&id, &typ, &fieldsJSON, &seq); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		if len(page.Records) == limit {
			page.MoreComing = true
			break
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			// A corrupt field bag drops only this record; the feed
			// keeps going. The token still advances past it.
			lastSeq = seq
			continue
		}

		page.Records = append(page.Records, record.Record{
			Type:   record.RecordType(typ),
			ID:     id,
			Fields: fields,
		})
		lastSeq = seq
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating changes: %w", err)
	}

	page.Token = formatToken(zone, lastSeq)
	return page, nil
}

// Save implements store.RecordStore.Save.
//
// Each record gets its own change sequence value so incremental fetches
// observe the batch in save order. Records with a missing id or an
// unserializable field bag fail individually; the rest of the batch
// still commits.
func (s *Store) Save(ctx context.Context, zone string, records []record.Record) ([]store.SaveResult, error) {
	if err := s.requireZone(ctx, zone); err != nil {
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	row := tx.QueryRowContext(ctx, `SELECT change_seq FROM zones WHERE name = ?`, zone)
	if err := row.Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to read change sequence for zone %s: %w", zone, err)
	}

	upsert := `
	INSERT INTO records (zone, id, type, fields, seq, modified_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(zone, id) DO UPDATE SET
		type = excluded.type,
		fields = excluded.fields,
		seq = excluded.seq,
		modified_at = excluded.modified_at
	`

	results := make([]store.SaveResult, 0, len(records))
	now := time.Now().UTC().Format(time.RFC3339)

	for _, rec := range records {
		if rec.ID == "" {
			results = append(results, store.SaveResult{RecordID: rec.ID, Err: fmt.Errorf("record id cannot be empty")})
			continue
		}

		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			results = append(results, store.SaveResult{RecordID: rec.ID, Err: fmt.Errorf("failed to marshal fields: %w", err)})
			continue
		}

		seq++
		if _, err := tx.ExecContext(ctx, upsert, zone, rec.ID, string(rec.Type), string(fieldsJSON), seq, now); err != nil {
			return nil, fmt.Errorf("failed to save record %s: %w", rec.ID, err)
		}

		results = append(results, store.SaveResult{RecordID: rec.ID})
	}

	if _, err := tx.ExecContext(ctx, `UPDATE zones SET change_seq = ? WHERE name = ?`, seq, zone); err != nil {
		return nil, fmt.Errorf("failed to advance change sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit save: %w", err)
	}

	return results, nil
}

// RecordCount returns the number of records in the zone.
func (s *Store) RecordCount(ctx context.Context, zone string) (int, error) {
	if err := s.requireZone(ctx, zone); err != nil {
		return 0, err
	}

	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE zone = ?`, zone).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// requireZone fails with store.ErrZoneNotFound when the zone is absent.
func (s *Store) requireZone(ctx context.Context, zone string) error {
	var one int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM zones WHERE name = ?`, zone).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("zone %s: %w", zone, store.ErrZoneNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to look up zone %s: %w", zone, err)
	}
	return nil
}

// formatToken encodes a continuation token for the zone.
func formatToken(zone string, seq int64) string {
	return fmt.Sprintf("%s@%d", zone, seq)
}

// parseToken decodes a continuation token, checking it belongs to the
// zone. An empty token means "from the beginning" (full resync).
func parseToken(zone, token string) (int64, error) {
	if token == "" {
		return 0, nil
	}

	idx := strings.LastIndex(token, "@")
	if idx < 0 || token[:idx] != zone {
		return 0, fmt.Errorf("token %q for zone %s: %w", token, zone, store.ErrInvalidToken)
	}

	seq, err := strconv.ParseInt(token[idx+1:], 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("token %q: %w", token, store.ErrInvalidToken)
	}

	return seq, nil
}
