package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atnpgo/arwes/internal/model"

	_ "modernc.org/sqlite"
)

const createLoadsTable = `
CREATE TABLE IF NOT EXISTS loads (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    request     TEXT NOT NULL,
    resources   INTEGER NOT NULL,
    timeout_ms  INTEGER NOT NULL,
    error       TEXT,
    failed_kind TEXT,
    failed_url  TEXT,
    timed_out   INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS load_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    load_id    TEXT NOT NULL REFERENCES loads(id),
    seq        INTEGER NOT NULL,
    kind       TEXT NOT NULL,
    url        TEXT NOT NULL,
    ready      INTEGER NOT NULL,
    error      TEXT,
    created_at DATETIME NOT NULL
)`

const createEventsIndex = `
CREATE INDEX IF NOT EXISTS idx_load_events_load ON load_events(load_id, seq)`

const loadColumns = `id, status, request, timeout_ms, error, failed_kind, failed_url,
	timed_out, duration_ms, created_at, started_at, finished_at`

// ErrNotFound is returned when a load is not found.
var ErrNotFound = errors.New("load not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []struct{ name, sql string }{
		{"loads table", createLoadsTable},
		{"events table", createEventsTable},
		{"events index", createEventsIndex},
	} {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateLoad inserts a new load record.
func (s *SQLiteStore) CreateLoad(ctx context.Context, l *model.Load) error {
	req, err := json.Marshal(l.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO loads (
			id, status, request, resources, timeout_ms, error, failed_kind, failed_url,
			timed_out, duration_ms, created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Status, string(req), l.Request.Len(), l.TimeoutMS,
		nullString(l.Error), nullString(string(l.FailedKind)), nullString(l.FailedURL),
		l.TimedOut, l.DurationMS, l.CreatedAt, l.StartedAt, l.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert load: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoad(row rowScanner) (*model.Load, error) {
	var (
		l                             model.Load
		req                           string
		errMsg, failedKind, failedURL sql.NullString
		durationMS                    sql.NullInt64
		startedAt, finishedAt         sql.NullTime
	)
	if err := row.Scan(
		&l.ID, &l.Status, &req, &l.TimeoutMS, &errMsg, &failedKind, &failedURL,
		&l.TimedOut, &durationMS, &l.CreatedAt, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(req), &l.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	l.Error = errMsg.String
	l.FailedKind = model.Kind(failedKind.String)
	l.FailedURL = failedURL.String
	if durationMS.Valid {
		d := int(durationMS.Int64)
		l.DurationMS = &d
	}
	if startedAt.Valid {
		t := startedAt.Time
		l.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		l.FinishedAt = &t
	}
	return &l, nil
}

// GetLoad retrieves a load by ID.
func (s *SQLiteStore) GetLoad(ctx context.Context, id string) (*model.Load, error) {
	l, err := scanLoad(s.db.QueryRowContext(ctx,
		`SELECT `+loadColumns+` FROM loads WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get load: %w", err)
	}
	return l, nil
}

// ListLoads returns a paginated list of loads ordered by created_at DESC,
// along with the total count of all loads.
func (s *SQLiteStore) ListLoads(ctx context.Context, limit, offset int) ([]*model.Load, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM loads").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count loads: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+loadColumns+` FROM loads ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list loads: %w", err)
	}
	defer rows.Close()

	var loads []*model.Load
	for rows.Next() {
		l, err := scanLoad(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan load: %w", err)
		}
		loads = append(loads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate loads: %w", err)
	}

	return loads, total, nil
}

// currentStatus reads the status of a load inside tx.
func currentStatus(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var status string
	err := tx.QueryRowContext(ctx, "SELECT status FROM loads WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	return status, nil
}

// UpdateLoadStatus moves a load to status. Entering running sets started_at;
// entering a terminal status sets finished_at.
func (s *SQLiteStore) UpdateLoadStatus(ctx context.Context, id, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	from, err := currentStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	if !model.ValidTransition(from, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, status)
	}

	now := time.Now().UTC()
	switch {
	case status == model.StatusRunning:
		_, err = tx.ExecContext(ctx,
			"UPDATE loads SET status = ?, started_at = ? WHERE id = ?", status, now, id)
	case model.Terminal(status):
		_, err = tx.ExecContext(ctx,
			"UPDATE loads SET status = ?, finished_at = ? WHERE id = ?", status, now, id)
	default:
		_, err = tx.ExecContext(ctx,
			"UPDATE loads SET status = ? WHERE id = ?", status, id)
	}
	if err != nil {
		return fmt.Errorf("update load status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateLoad writes the mutable fields of l. A status change must be a valid
// transition; writing the current status again is allowed.
func (s *SQLiteStore) UpdateLoad(ctx context.Context, l *model.Load) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	from, err := currentStatus(ctx, tx, l.ID)
	if err != nil {
		return err
	}
	if from != l.Status && !model.ValidTransition(from, l.Status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, l.Status)
	}
	if from == l.Status && model.Terminal(from) {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE loads SET status = ?, error = ?, failed_kind = ?, failed_url = ?,
			timed_out = ?, duration_ms = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		l.Status, nullString(l.Error), nullString(string(l.FailedKind)), nullString(l.FailedURL),
		l.TimedOut, l.DurationMS, l.StartedAt, l.FinishedAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("update load: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetLoadStats returns aggregate statistics over all loads.
func (s *SQLiteStore) GetLoadStats(ctx context.Context) (*LoadStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &LoadStats{
		CountByStatus:     make(map[string]int),
		CountByFailedKind: make(map[string]int),
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(timed_out), 0), AVG(duration_ms) FROM loads`,
	).Scan(&stats.Total, &stats.TimedOut, &avg); err != nil {
		return nil, fmt.Errorf("aggregate loads: %w", err)
	}
	stats.AvgDurationMS = avg.Float64

	if err := countInto(ctx, tx, stats.CountByStatus,
		"SELECT status, COUNT(*) FROM loads GROUP BY status"); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	if err := countInto(ctx, tx, stats.CountByFailedKind,
		`SELECT failed_kind, COUNT(*) FROM loads
		WHERE failed_kind IS NOT NULL AND failed_kind != '' GROUP BY failed_kind`); err != nil {
		return nil, fmt.Errorf("count by failed kind: %w", err)
	}

	return stats, nil
}

func countInto(ctx context.Context, tx *sql.Tx, dst map[string]int, query string) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}

// InsertEvent stores a progress event and sets its ID.
func (s *SQLiteStore) InsertEvent(ctx context.Context, e *model.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO load_events (load_id, seq, kind, url, ready, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.LoadID, e.Seq, string(e.Kind), e.URL, e.Ready, nullString(e.Error), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	e.ID = id
	return nil
}

// GetEvents returns the events of a load ordered by sequence number.
func (s *SQLiteStore) GetEvents(ctx context.Context, loadID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, load_id, seq, kind, url, ready, error, created_at
		FROM load_events WHERE load_id = ? ORDER BY seq ASC`, loadID)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var e model.Event
		var kind string
		var errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.LoadID, &e.Seq, &kind, &e.URL, &e.Ready, &errMsg, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.Kind(kind)
		e.Error = errMsg.String
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Ping checks that the database still answers queries.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
