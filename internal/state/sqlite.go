package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// ErrNotOpened is returned by every operation on a store that is not open.
var ErrNotOpened = errors.New("database not opened")

const recordColumns = `id, source_row_index, status, node_kind, action, identifier,
	output_node, error_message, output_batch_file, last_attempt_at, raw_row`

// SQLiteStore implements core.RecordStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite state store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewSQLiteStoreFromDB wraps an existing connection. Migrations are not run.
func NewSQLiteStoreFromDB(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	s := NewSQLiteStore(logger)
	s.db = db
	return s
}

// Open opens the database at path and applies migrations.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return &core.PersistenceError{Op: "open", Err: fmt.Errorf("failed to create state directory: %w", err)}
			}
		}
		dsn = "file:" + path +
			"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return &core.PersistenceError{Op: "open", Err: fmt.Errorf("failed to open sqlite database: %w", err)}
	}

	// every connection to ":memory:" is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return &core.PersistenceError{Op: "open", Err: fmt.Errorf("failed to ping sqlite database: %w", err)}
	}

	if err := MigrateWithDB(db, s.logger); err != nil {
		_ = db.Close()
		return &core.PersistenceError{Op: "migrate", Err: err}
	}

	s.db = db
	s.path = path
	s.logger.Debug("state store opened", slog.String("path", path))
	return nil
}

// Path returns the path the store was opened with.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func persistErr(op string, err error) error {
	return &core.PersistenceError{Op: op, Err: err}
}

// RegisterIfAbsent inserts every record as pending unless its id is already
// stored. Existing records are never modified.
func (s *SQLiteStore) RegisterIfAbsent(ctx context.Context, records []*core.Record) (core.RegisterResult, error) {
	var res core.RegisterResult
	if s.db == nil {
		return res, persistErr("register", ErrNotOpened)
	}
	if len(records) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, persistErr("register", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, source_row_index, status, raw_row, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return res, persistErr("register", fmt.Errorf("failed to prepare insert: %w", err))
	}
	defer stmt.Close()

	created := s.now().Format(time.RFC3339Nano)
	for _, r := range records {
		if r.ID == "" {
			return core.RegisterResult{}, persistErr("register", fmt.Errorf("record for row %d has no id", r.SourceRowIndex))
		}
		raw, err := json.Marshal(r.RawRow)
		if err != nil {
			return core.RegisterResult{}, persistErr("register", fmt.Errorf("failed to encode raw row %d: %w", r.SourceRowIndex, err))
		}

		result, err := stmt.ExecContext(ctx, r.ID, r.SourceRowIndex, core.StatusPending, string(raw), created)
		if err != nil {
			return core.RegisterResult{}, persistErr("register", fmt.Errorf("failed to insert record %s: %w", r.ID, err))
		}
		if n, _ := result.RowsAffected(); n > 0 {
			res.Inserted++
		} else {
			res.AlreadyPresent++
		}
	}

	if err := tx.Commit(); err != nil {
		return core.RegisterResult{}, persistErr("register", fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.logger.Debug("records registered",
		slog.Int("inserted", res.Inserted),
		slog.Int("already_present", res.AlreadyPresent))
	return res, nil
}

// GetByID returns the record with the given id, or nil if none exists.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*core.Record, error) {
	if s.db == nil {
		return nil, persistErr("get", ErrNotOpened)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get", fmt.Errorf("failed to get record %s: %w", id, err))
	}
	return rec, nil
}

// GetByIdentifier returns the first record (by row index) with the given
// identifier, or nil if none exists. Duplicates are logged, not reported.
func (s *SQLiteStore) GetByIdentifier(ctx context.Context, identifier string) (*core.Record, error) {
	if s.db == nil {
		return nil, persistErr("lookup", ErrNotOpened)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE identifier = ?
		 ORDER BY source_row_index, id
		 LIMIT 2`, identifier)
	if err != nil {
		return nil, persistErr("lookup", fmt.Errorf("failed to look up identifier: %w", err))
	}
	defer rows.Close()

	var found []*core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, persistErr("lookup", fmt.Errorf("failed to scan record: %w", err))
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("lookup", err)
	}

	if len(found) == 0 {
		return nil, nil
	}
	if len(found) > 1 {
		s.logger.Warn("identifier matches more than one record; using the first",
			slog.String("identifier", identifier),
			slog.String("id", found[0].ID),
			slog.Int("row", found[0].SourceRowIndex))
	}
	return found[0], nil
}

// updateSQL builds the partial update for a target status. The WHERE clause
// only matches records whose current status may move to the target.
func updateSQL(to core.RecordStatus) string {
	from := to.AllowedFrom()
	return `UPDATE records SET
		status = ?,
		node_kind = COALESCE(NULLIF(?, ''), node_kind),
		action = COALESCE(NULLIF(?, ''), action),
		identifier = COALESCE(NULLIF(?, ''), identifier),
		output_node = COALESCE(NULLIF(?, ''), output_node),
		output_batch_file = COALESCE(NULLIF(?, ''), output_batch_file),
		error_message = NULLIF(?, ''),
		last_attempt_at = ?
	WHERE id = ? AND status IN (?` + strings.Repeat(", ?", len(from)-1) + `)`
}

func (s *SQLiteStore) updateArgs(u core.StatusUpdate) []any {
	args := []any{
		u.Status, u.NodeKind, u.Action, u.Identifier, u.OutputNode, u.OutputBatchFile,
		u.ErrorMessage, s.now().Format(time.RFC3339Nano), u.ID,
	}
	for _, st := range u.Status.AllowedFrom() {
		args = append(args, st)
	}
	return args
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// applyUpdate runs one partial update. It reports whether the record matched,
// and when it did not, whether it exists at all.
func (s *SQLiteStore) applyUpdate(ctx context.Context, q execer, u core.StatusUpdate) (updated, exists bool, err error) {
	result, err := q.ExecContext(ctx, updateSQL(u.Status), s.updateArgs(u)...)
	if err != nil {
		return false, false, fmt.Errorf("failed to update record %s: %w", u.ID, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return true, true, nil
	}

	var one int
	err = q.QueryRowContext(ctx, `SELECT 1 FROM records WHERE id = ?`, u.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to check record %s: %w", u.ID, err)
	}
	return false, true, nil
}

// UpdateStatus applies a partial update to one record. Empty optional fields
// keep their stored value; the error message is always overwritten.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, u core.StatusUpdate) error {
	if s.db == nil {
		return persistErr("update", ErrNotOpened)
	}
	if !u.Status.Valid() {
		return fmt.Errorf("unknown status %q: %w", u.Status, core.ErrInvalidTransition)
	}

	updated, exists, err := s.applyUpdate(ctx, s.db, u)
	if err != nil {
		return persistErr("update", err)
	}
	switch {
	case updated:
		return nil
	case !exists:
		return fmt.Errorf("%s: %w", u.ID, core.ErrRecordNotFound)
	default:
		return fmt.Errorf("record %s cannot move to %s: %w", u.ID, u.Status, core.ErrInvalidTransition)
	}
}

// BatchUpdateStatus applies many partial updates in a single transaction.
// Unknown ids and refused transitions are counted, not treated as failures.
func (s *SQLiteStore) BatchUpdateStatus(ctx context.Context, updates []core.StatusUpdate) (core.BatchResult, error) {
	var res core.BatchResult
	if s.db == nil {
		return res, persistErr("batch update", ErrNotOpened)
	}
	if len(updates) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, persistErr("batch update", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		if !u.Status.Valid() {
			res.Rejected++
			continue
		}
		updated, exists, err := s.applyUpdate(ctx, tx, u)
		if err != nil {
			return core.BatchResult{}, persistErr("batch update", err)
		}
		switch {
		case updated:
			res.Updated++
		case !exists:
			res.NotFound++
		default:
			res.Rejected++
			s.logger.Debug("status transition refused",
				slog.String("id", u.ID),
				slog.String("to", string(u.Status)))
		}
	}

	if err := tx.Commit(); err != nil {
		return core.BatchResult{}, persistErr("batch update", fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.logger.Debug("batch status update applied",
		slog.Int("updated", res.Updated),
		slog.Int("not_found", res.NotFound),
		slog.Int("rejected", res.Rejected))
	return res, nil
}

// QueryByStatus returns records in any of the given statuses ordered by
// source row index. With no statuses every record is returned.
func (s *SQLiteStore) QueryByStatus(ctx context.Context, statuses ...core.RecordStatus) ([]*core.Record, error) {
	if s.db == nil {
		return nil, persistErr("query", ErrNotOpened)
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, st)
		}
	}
	query += ` ORDER BY source_row_index, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistErr("query", fmt.Errorf("failed to query records: %w", err))
	}
	defer rows.Close()

	var records []*core.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, persistErr("query", fmt.Errorf("failed to scan record: %w", err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("query", err)
	}
	return records, nil
}

// CountsByStatus returns the number of records per status.
func (s *SQLiteStore) CountsByStatus(ctx context.Context) (map[core.RecordStatus]int, error) {
	if s.db == nil {
		return nil, persistErr("count", ErrNotOpened)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, persistErr("count", fmt.Errorf("failed to count records: %w", err))
	}
	defer rows.Close()

	counts := make(map[core.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, persistErr("count", fmt.Errorf("failed to scan count: %w", err))
		}
		counts[core.RecordStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountsByKind returns the number of successful records per node kind.
func (s *SQLiteStore) CountsByKind(ctx context.Context) (map[string]int, error) {
	if s.db == nil {
		return nil, persistErr("count", ErrNotOpened)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(NULLIF(node_kind, ''), 'unknown'), COUNT(*)
		 FROM records WHERE status = ?
		 GROUP BY COALESCE(NULLIF(node_kind, ''), 'unknown')`, core.StatusSuccess)
	if err != nil {
		return nil, persistErr("count", fmt.Errorf("failed to count node kinds: %w", err))
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, persistErr("count", fmt.Errorf("failed to scan count: %w", err))
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// ClearAll deletes every record.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if s.db == nil {
		return persistErr("clear", ErrNotOpened)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	if err != nil {
		return persistErr("clear", fmt.Errorf("failed to clear records: %w", err))
	}
	n, _ := result.RowsAffected()
	s.logger.Info("state store cleared", slog.Int64("records", n))
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*core.Record, error) {
	rec := &core.Record{}
	var status, raw string
	var nodeKind, action, identifier, outputNode, errMsg, batchFile, lastAttempt sql.NullString

	err := row.Scan(&rec.ID, &rec.SourceRowIndex, &status, &nodeKind, &action, &identifier,
		&outputNode, &errMsg, &batchFile, &lastAttempt, &raw)
	if err != nil {
		return nil, err
	}

	rec.Status = core.RecordStatus(status)
	rec.NodeKind = nodeKind.String
	rec.Action = action.String
	rec.Identifier = identifier.String
	rec.OutputNode = outputNode.String
	rec.ErrorMessage = errMsg.String
	rec.OutputBatchFile = batchFile.String

	if lastAttempt.Valid && lastAttempt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastAttempt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_attempt_at for %s: %w", rec.ID, err)
		}
		rec.LastAttemptAt = &t
	}

	if err := json.Unmarshal([]byte(raw), &rec.RawRow); err != nil {
		return nil, fmt.Errorf("invalid raw_row for %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Ensure SQLiteStore implements the RecordStore interface.
var _ core.RecordStore = (*SQLiteStore)(nil)
