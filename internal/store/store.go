// Package store handles persistence of game records and the statistics summary.
package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/verte-zerg/vstask/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// sortableTime keeps start_time lexically ordered in the games table.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// Store wraps SQLite access for game records.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("create db dir", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open db", err)
	}
	// One writer at a time; SQLite would otherwise report SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, unavailable("migrate", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			game_id TEXT PRIMARY KEY,
			start_time TEXT NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			record TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS summary (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			last_updated TEXT NOT NULL,
			body TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_games_start_time ON games(start_time);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Create inserts a new record. The handle is the game id.
func (s *Store) Create(ctx context.Context, rec *model.GameRecord) (string, error) {
	data, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO games (game_id, start_time, completed, record) VALUES (?, ?, ?, ?)`,
		rec.GameID,
		rec.StartTime.UTC().Format(sortableTime),
		rec.Finalized(),
		string(data),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrExists
		}
		return "", unavailable("insert record", err)
	}
	return rec.GameID, nil
}

// Load reads the record behind a handle.
func (s *Store) Load(ctx context.Context, handle string) (*model.GameRecord, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM games WHERE game_id = ?`, handle).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("load record", err)
	}
	rec, err := decodeRecord([]byte(body))
	if err != nil {
		return nil, unavailable("load record", err)
	}
	return rec, nil
}

// Update applies fn to the stored record inside one transaction.
func (s *Store) Update(ctx context.Context, handle string, fn func(*model.GameRecord) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin update", err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	var body string
	err = tx.QueryRowContext(ctx, `SELECT record FROM games WHERE game_id = ?`, handle).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return unavailable("load record", err)
	}
	rec, err := decodeRecord([]byte(body))
	if err != nil {
		return unavailable("load record", err)
	}
	if err = fn(rec); err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE games SET completed = ?, record = ? WHERE game_id = ?`,
		rec.Finalized(), string(data), handle,
	); err != nil {
		return unavailable("update record", err)
	}
	if err = tx.Commit(); err != nil {
		return unavailable("commit update", err)
	}
	return nil
}

// List returns every stored record ordered by start time.
func (s *Store) List(ctx context.Context) ([]model.GameRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM games ORDER BY start_time ASC, game_id ASC`)
	if err != nil {
		return nil, unavailable("list records", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var records []model.GameRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, unavailable("scan record", err)
		}
		rec, err := decodeRecord([]byte(body))
		if err != nil {
			return nil, unavailable("list records", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list records", err)
	}
	return records, nil
}

// SaveSummary replaces the persisted statistics summary.
func (s *Store) SaveSummary(ctx context.Context, sum model.Summary) error {
	data, err := encodeSummary(sum)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO summary (id, last_updated, body) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_updated = excluded.last_updated, body = excluded.body`,
		sum.LastUpdated.UTC().Format(sortableTime),
		string(data),
	)
	if err != nil {
		return unavailable("save summary", err)
	}
	return nil
}

// LoadSummary returns the persisted summary, or nil when none was saved yet.
func (s *Store) LoadSummary(ctx context.Context) (*model.Summary, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM summary WHERE id = 1`).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("load summary", err)
	}
	sum, err := decodeSummary([]byte(body))
	if err != nil {
		return nil, unavailable("load summary", err)
	}
	return sum, nil
}
