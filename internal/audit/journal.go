package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is a row read back from the local journal.
type Entry struct {
	ID int64
	Row
}

// Journal mirrors audit rows into a local SQLite file so operators can
// inspect recent activity without opening the sheet.
type Journal struct {
	db *sql.DB
}

func DefaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "replybot.db"
	}
	return filepath.Join(home, ".replybot", "journal.db")
}

func OpenJournal(dbPath string) (*Journal, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// Rows are written by a single worker; one connection keeps ":memory:" coherent too.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_rows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT,
		recorded_at DATETIME NOT NULL,
		actor TEXT,
		source TEXT,
		text TEXT,
		kind TEXT NOT NULL,
		bucket TEXT NOT NULL,
		reply TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ar_recorded_at ON audit_rows(recorded_at);
	CREATE INDEX IF NOT EXISTS idx_ar_bucket ON audit_rows(bucket);
	CREATE INDEX IF NOT EXISTS idx_ar_kind ON audit_rows(kind);
	`
	if _, err := j.db.Exec(query); err != nil {
		return fmt.Errorf("failed to migrate journal: %w", err)
	}
	return nil
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Append(ctx context.Context, row Row) error {
	var reply sql.NullString
	if row.Kind == KindComment {
		reply = sql.NullString{String: row.Reply, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
	INSERT INTO audit_rows (event_id, recorded_at, actor, source, text, kind, bucket, reply)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.EventID,
		row.Timestamp.UTC(),
		row.Actor,
		row.Source,
		row.Text,
		string(row.Kind),
		row.Bucket,
		reply,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit row: %w", err)
	}
	return nil
}

// Recent returns the newest rows first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT id, event_id, recorded_at, actor, source, text, kind, bucket, reply
	FROM audit_rows ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var eventID, actor, source, text, reply sql.NullString
		var recordedAt sql.NullTime
		var kind string
		if err := rows.Scan(&e.ID, &eventID, &recordedAt, &actor, &source, &text, &kind, &e.Bucket, &reply); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.EventID = eventID.String
		e.Timestamp = recordedAt.Time
		e.Actor = actor.String
		e.Source = source.String
		e.Text = text.String
		e.Kind = Kind(kind)
		e.Reply = reply.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// BucketCounts returns the number of rows per kind and bucket since the given time.
func (j *Journal) BucketCounts(ctx context.Context, since time.Time) (map[Kind]map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
	SELECT kind, bucket, COUNT(*) FROM audit_rows
	WHERE recorded_at >= ? GROUP BY kind, bucket`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count journal rows: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]map[string]int)
	for rows.Next() {
		var kind, bucket string
		var n int
		if err := rows.Scan(&kind, &bucket, &n); err != nil {
			return nil, fmt.Errorf("failed to scan counts: %w", err)
		}
		if counts[Kind(kind)] == nil {
			counts[Kind(kind)] = make(map[string]int)
		}
		counts[Kind(kind)][bucket] = n
	}
	return counts, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
