// Package sqlstore implements the Engine Store abstraction over
// database/sql using modernc.org/sqlite, a pure-Go SQLite driver. The
// compare-and-swap operations required by the store contract are
// implemented as conditional UPDATEs checked against RowsAffected.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/HaoYang670/rucat/internal/apperrors"
	"github.com/HaoYang670/rucat/internal/engine"

	_ "modernc.org/sqlite"
)

// Store is a database/sql-backed EngineStore.
type Store struct {
	db *sql.DB
}

// Open opens (and creates, if needed) a SQLite-backed engine store. dsn may
// be ":memory:" or a file path; file paths are configured with WAL journal
// mode and a busy timeout so the server and the monitor can share one file
// concurrently.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open engine store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping engine store: %w", err)
	}

	if err := configureLocalSQLite(ctx, db, dsn); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// configureLocalSQLite keeps a single connection for every DSN (each
// connection to an in-memory DSN would open its own empty database, and a
// shared file would see "database is locked" errors under concurrent
// server+monitor writers), and enables WAL mode and a busy timeout for
// file-backed databases.
func configureLocalSQLite(ctx context.Context, db *sql.DB, dsn string) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ready reports whether the database connection is reachable, for
// readiness probes.
func (s *Store) Ready(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.Unavailable("sqlstore.ping", err)
	}
	return nil
}

func encodeConfigs(c engine.Configs) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode configs: %w", err)
	}
	return string(b), nil
}

func decodeConfigs(raw string) (engine.Configs, error) {
	var c engine.Configs
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode configs: %w", err)
	}
	return c, nil
}

// Insert adds a new record, failing with ErrConflict if its id is already
// present.
func (s *Store) Insert(ctx context.Context, rec *engine.Record) error {
	configs, err := encodeConfigs(rec.Configs)
	if err != nil {
		return apperrors.Internal("sqlstore.insert", err)
	}

	const stmt = `INSERT INTO engines (id, name, engine_type, version, configs, state, reason, create_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		rec.ID, rec.Name, string(rec.EngineType), rec.Version, configs,
		string(rec.State), rec.Reason, rec.CreateTime.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "constraint failed") {
			return apperrors.Conflict("engine", rec.ID, "engine "+rec.ID+" already exists")
		}
		return apperrors.Unavailable("sqlstore.insert", err)
	}
	return nil
}

// Get loads a record by id.
func (s *Store) Get(ctx context.Context, id string) (*engine.Record, error) {
	const stmt = `SELECT id, name, engine_type, version, configs, state, reason, create_time
		FROM engines WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	return scanRecord(row, id)
}

func scanRecord(row *sql.Row, id string) (*engine.Record, error) {
	var (
		rec        engine.Record
		engineType string
		configs    string
		state      string
		createTime string
	)
	err := row.Scan(&rec.ID, &rec.Name, &engineType, &rec.Version, &configs, &state, &rec.Reason, &createTime)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("engine", id)
	}
	if err != nil {
		return nil, apperrors.Unavailable("sqlstore.get", err)
	}

	rec.EngineType = engine.Type(engineType)
	rec.State = engine.State(state)
	rec.Configs, err = decodeConfigs(configs)
	if err != nil {
		return nil, apperrors.Internal("sqlstore.get", err)
	}
	rec.CreateTime, err = time.Parse(time.RFC3339Nano, createTime)
	if err != nil {
		return nil, apperrors.Internal("sqlstore.get", err)
	}
	return &rec, nil
}

// List enumerates every record's id.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM engines`)
	if err != nil {
		return nil, apperrors.Unavailable("sqlstore.list", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Unavailable("sqlstore.list", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("sqlstore.list", err)
	}
	return ids, nil
}

// CASState atomically moves id's state from expected to next via a
// conditional UPDATE, checked against RowsAffected.
func (s *Store) CASState(ctx context.Context, id string, expected, next engine.State, reason string) error {
	const stmt = `UPDATE engines SET state = ?, reason = ? WHERE id = ? AND state = ?`
	res, err := s.db.ExecContext(ctx, stmt, string(next), reason, id, string(expected))
	if err != nil {
		return apperrors.Unavailable("sqlstore.casState", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("sqlstore.casState", err)
	}
	if affected == 1 {
		return nil
	}
	return s.conflictOrNotFound(ctx, id, "expected "+string(expected))
}

// DeleteIfState removes id's record only if its current state is a member
// of allowed.
func (s *Store) DeleteIfState(ctx context.Context, id string, allowed []engine.State) error {
	if len(allowed) == 0 {
		return s.conflictOrNotFound(ctx, id, "no state permits deletion")
	}

	placeholders := make([]string, len(allowed))
	args := make([]any, 0, len(allowed)+1)
	args = append(args, id)
	for i, st := range allowed {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	stmt := fmt.Sprintf(`DELETE FROM engines WHERE id = ? AND state IN (%s)`, strings.Join(placeholders, ", "))
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return apperrors.Unavailable("sqlstore.deleteIfState", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("sqlstore.deleteIfState", err)
	}
	if affected == 1 {
		return nil
	}
	return s.conflictOrNotFound(ctx, id, "engine cannot be deleted from its current state")
}

// conflictOrNotFound is called after a conditional write affects zero rows:
// it distinguishes "id does not exist" from "id exists but state moved" by
// re-reading the current state, matching the original Rust source's
// retry-loop pattern of reporting the observed state back to the caller.
func (s *Store) conflictOrNotFound(ctx context.Context, id, reason string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return apperrors.NotFound("engine", id)
	}
	return apperrors.ConflictState("engine", string(rec.State), reason)
}

// ScanByStates returns every record whose state is a member of states.
func (s *Store) ScanByStates(ctx context.Context, states []engine.State) ([]*engine.Record, error) {
	if len(states) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, st := range states {
		placeholders[i] = "?"
		args[i] = string(st)
	}

	stmt := fmt.Sprintf(`SELECT id, name, engine_type, version, configs, state, reason, create_time
		FROM engines WHERE state IN (%s)`, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperrors.Unavailable("sqlstore.scanByStates", err)
	}
	defer rows.Close()

	var out []*engine.Record
	for rows.Next() {
		var (
			rec        engine.Record
			engineType string
			configs    string
			state      string
			createTime string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &engineType, &rec.Version, &configs, &state, &rec.Reason, &createTime); err != nil {
			return nil, apperrors.Unavailable("sqlstore.scanByStates", err)
		}
		rec.EngineType = engine.Type(engineType)
		rec.State = engine.State(state)
		if rec.Configs, err = decodeConfigs(configs); err != nil {
			return nil, apperrors.Internal("sqlstore.scanByStates", err)
		}
		if rec.CreateTime, err = time.Parse(time.RFC3339Nano, createTime); err != nil {
			return nil, apperrors.Internal("sqlstore.scanByStates", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("sqlstore.scanByStates", err)
	}
	return out, nil
}
