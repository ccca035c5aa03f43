package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/compresr/prompt-pruner/internal/compression"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id          TEXT PRIMARY KEY,
    original_prompt TEXT NOT NULL,
    compressed      TEXT,
    hybrid          TEXT,
    log             TEXT NOT NULL DEFAULT '[]',
    hybrid_log      TEXT,
    config          TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
)`

// SQLiteStore persists runs in a SQLite database.
//
// Logs and config are JSON columns. Rows are only ever replaced whole under
// the run lock, so a reader sees either the old or the new run.
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedMutex
	now   func() time.Time
}

// OpenSQLite opens (or creates) the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}
	return &SQLiteStore{db: db, locks: newKeyedMutex(), now: time.Now}, nil
}

// CreateOrGet implements Store.
func (s *SQLiteStore) CreateOrGet(ctx context.Context, runID, original string) (*Run, error) {
	if runID != "" {
		return s.Get(ctx, runID)
	}
	r := newRun(original, s.now().UTC())
	if err := s.write(ctx, r, true); err != nil {
		return nil, err
	}
	return r, nil
}

// PutCompressed implements Store.
func (s *SQLiteStore) PutCompressed(ctx context.Context, runID, text string, entries []compression.IterationLogEntry, cfg compression.Config) error {
	return s.update(ctx, runID, func(r *Run, now time.Time) {
		applyCompressed(r, text, entries, cfg, now)
	})
}

// PutHybrid implements Store.
func (s *SQLiteStore) PutHybrid(ctx context.Context, runID, text string, entries []compression.IterationLogEntry) error {
	return s.update(ctx, runID, func(r *Run, now time.Time) {
		applyHybrid(r, text, entries, now)
	})
}

func (s *SQLiteStore) update(ctx context.Context, runID string, fn func(*Run, time.Time)) error {
	unlock := s.locks.Lock(runID)
	defer unlock()

	r, err := s.Get(ctx, runID)
	if err != nil {
		return err
	}
	fn(r, s.now().UTC())
	return s.write(ctx, r, false)
}

func (s *SQLiteStore) write(ctx context.Context, r *Run, insert bool) error {
	logJSON, err := json.Marshal(r.Log)
	if err != nil {
		return storeErr(err, "marshaling log")
	}
	var hybridLog, cfg sql.NullString
	if r.HybridLog != nil {
		b, err := json.Marshal(r.HybridLog)
		if err != nil {
			return storeErr(err, "marshaling hybrid log")
		}
		hybridLog = sql.NullString{String: string(b), Valid: true}
	}
	if r.Config != nil {
		b, err := json.Marshal(r.Config)
		if err != nil {
			return storeErr(err, "marshaling config")
		}
		cfg = sql.NullString{String: string(b), Valid: true}
	}

	query := `UPDATE runs SET original_prompt = ?, compressed = ?, hybrid = ?, log = ?,
	    hybrid_log = ?, config = ?, created_at = ?, updated_at = ? WHERE run_id = ?`
	if insert {
		query = `INSERT INTO runs (original_prompt, compressed, hybrid, log,
		    hybrid_log, config, created_at, updated_at, run_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}
	_, err = s.db.ExecContext(ctx, query,
		r.OriginalPrompt, nullString(r.Compressed), nullString(r.Hybrid), string(logJSON),
		hybridLog, cfg, r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano(), r.RunID,
	)
	if err != nil {
		return storeErr(err, "saving run %s", r.RunID)
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (*Run, error) {
	var (
		r                          Run
		compressed, hybrid         sql.NullString
		logJSON                    string
		hybridLog, cfg             sql.NullString
		createdNanos, updatedNanos int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, original_prompt, compressed, hybrid, log, hybrid_log, config, created_at, updated_at
		 FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.OriginalPrompt, &compressed, &hybrid, &logJSON, &hybridLog, &cfg, &createdNanos, &updatedNanos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(runID)
	}
	if err != nil {
		return nil, storeErr(err, "loading run %s", runID)
	}

	if compressed.Valid {
		r.Compressed = &compressed.String
	}
	if hybrid.Valid {
		r.Hybrid = &hybrid.String
	}
	if err := json.Unmarshal([]byte(logJSON), &r.Log); err != nil {
		return nil, storeErr(err, "decoding log of run %s", runID)
	}
	if r.Log == nil {
		r.Log = []compression.IterationLogEntry{}
	}
	if hybridLog.Valid {
		if err := json.Unmarshal([]byte(hybridLog.String), &r.HybridLog); err != nil {
			return nil, storeErr(err, "decoding hybrid log of run %s", runID)
		}
	}
	if cfg.Valid {
		r.Config = &compression.Config{}
		if err := json.Unmarshal([]byte(cfg.String), r.Config); err != nil {
			return nil, storeErr(err, "decoding config of run %s", runID)
		}
	}
	r.CreatedAt = time.Unix(0, createdNanos).UTC()
	r.UpdatedAt = time.Unix(0, updatedNanos).UTC()
	return &r, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	unlock := s.locks.Lock(runID)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return storeErr(err, "deleting run %s", runID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(runID)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

var _ Store = (*SQLiteStore)(nil)
