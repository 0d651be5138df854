package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	worksheet  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	start_row  INTEGER NOT NULL,
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS results (
	id                 TEXT PRIMARY KEY,
	run_id             TEXT NOT NULL REFERENCES runs(id),
	row_index          INTEGER NOT NULL,
	address            TEXT NOT NULL,
	status             TEXT NOT NULL,
	username           TEXT NOT NULL DEFAULT '',
	confidence         TEXT NOT NULL DEFAULT '',
	raw_response       TEXT NOT NULL DEFAULT '',
	existence_response TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS checkpoints (
	unit_key   TEXT PRIMARY KEY,
	row_index  INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_worksheet ON runs(worksheet);
CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, worksheet string, startRow int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, worksheet, status, start_row, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, worksheet, string(model.RunStatusRunning), startRow, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Worksheet: worksheet,
		Status:    model.RunStatusRunning,
		StartRow:  startRow,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	var summaryJSON sql.NullString
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal summary")
		}
		summaryJSON = sql.NullString{String: string(data), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, updated_at = ? WHERE id = ?`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, worksheet, status, start_row, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, worksheet, status, start_row, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Worksheet != "" {
		query += ` AND worksheet = ?`
		args = append(args, filter.Worksheet)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, res model.InferenceResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (id, run_id, row_index, address, status, username, confidence, raw_response, existence_response, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, res.Row, res.Address, string(res.Status), res.Username,
		string(res.Confidence), res.RawResponse, res.ExistenceResponse, res.Error, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save result for run %s row %d", runID, res.Row)
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]model.InferenceResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, address, status, username, confidence, raw_response, existence_response, error
		 FROM results WHERE run_id = ? ORDER BY row_index`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.InferenceResult
	for rows.Next() {
		var r model.InferenceResult
		if err := rows.Scan(&r.Row, &r.Address, &r.Status, &r.Username, &r.Confidence,
			&r.RawResponse, &r.ExistenceResponse, &r.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, key string) (int, bool, error) {
	var row int
	err := s.db.QueryRowContext(ctx, `SELECT row_index FROM checkpoints WHERE unit_key = ?`, key).Scan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: load checkpoint %s", key)
	}
	return row, true, nil
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, key string, row int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (unit_key, row_index, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (unit_key) DO UPDATE SET row_index = excluded.row_index, updated_at = excluded.updated_at`,
		key, row, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save checkpoint %s", key)
}

func (s *SQLiteStore) ResetCheckpoint(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE unit_key = ?`, key)
	return eris.Wrapf(err, "sqlite: reset checkpoint %s", key)
}

// helpers

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &r.Worksheet, &r.Status, &r.StartRow, &summaryJSON, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
