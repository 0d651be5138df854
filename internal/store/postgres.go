package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/wallet-search-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":      `INSERT INTO runs (id, worksheet, status, start_row, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"finish_run":      `UPDATE runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
	"get_run":         `SELECT id, worksheet, status, start_row, summary, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_result":   `INSERT INTO results (id, run_id, row_index, address, status, username, confidence, raw_response, existence_response, error, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"load_checkpoint": `SELECT row_index FROM checkpoints WHERE unit_key = $1`,
	"save_checkpoint": `INSERT INTO checkpoints (unit_key, row_index, updated_at) VALUES ($1, $2, $3) ON CONFLICT (unit_key) DO UPDATE SET row_index = EXCLUDED.row_index, updated_at = EXCLUDED.updated_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	worksheet  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	start_row  INTEGER NOT NULL,
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS results (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id             TEXT NOT NULL REFERENCES runs(id),
	row_index          INTEGER NOT NULL,
	address            TEXT NOT NULL,
	status             TEXT NOT NULL,
	username           TEXT NOT NULL DEFAULT '',
	confidence         TEXT NOT NULL DEFAULT '',
	raw_response       TEXT NOT NULL DEFAULT '',
	existence_response TEXT NOT NULL DEFAULT '',
	error              TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS checkpoints (
	unit_key   TEXT PRIMARY KEY,
	row_index  INTEGER NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_worksheet ON runs(worksheet);
CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, worksheet string, startRow int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, worksheet, status, start_row, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, worksheet, string(model.RunStatusRunning), startRow, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		if summaryJSON, err = json.Marshal(summary); err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, updated_at = $3 WHERE id = $4`,
		string(status), summaryJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanPostgresRun(s.pool.QueryRow(ctx,
		`SELECT id, worksheet, status, start_row, summary, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, worksheet, status, start_row, summary, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Worksheet != "" {
		query += fmt.Sprintf(` AND worksheet = $%d`, argIdx)
		args = append(args, filter.Worksheet)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveResult(ctx context.Context, runID string, res model.InferenceResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results (id, run_id, row_index, address, status, username, confidence, raw_response, existence_response, error, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New().String(), runID, res.Row, res.Address, string(res.Status), res.Username,
		string(res.Confidence), res.RawResponse, res.ExistenceResponse, res.Error, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save result for run %s row %d", runID, res.Row)
}

func (s *PostgresStore) ListResults(ctx context.Context, runID string) ([]model.InferenceResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_index, address, status, username, confidence, raw_response, existence_response, error FROM results WHERE run_id = $1 ORDER BY row_index`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.InferenceResult
	for rows.Next() {
		var r model.InferenceResult
		var status, confidence string
		if err := rows.Scan(&r.Row, &r.Address, &status, &r.Username, &confidence,
			&r.RawResponse, &r.ExistenceResponse, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		r.Status = model.Status(status)
		r.Confidence = model.Confidence(confidence)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) LoadCheckpoint(ctx context.Context, key string) (int, bool, error) {
	var row int
	err := s.pool.QueryRow(ctx, `SELECT row_index FROM checkpoints WHERE unit_key = $1`, key).Scan(&row)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: load checkpoint %s", key)
	}
	return row, true, nil
}

func (s *PostgresStore) SaveCheckpoint(ctx context.Context, key string, row int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO checkpoints (unit_key, row_index, updated_at) VALUES ($1, $2, $3) ON CONFLICT (unit_key) DO UPDATE SET row_index = EXCLUDED.row_index, updated_at = EXCLUDED.updated_at`,
		key, row, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save checkpoint %s", key)
}

func (s *PostgresStore) ResetCheckpoint(ctx context.Context, key string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE unit_key = $1`, key)
	return eris.Wrapf(err, "postgres: reset checkpoint %s", key)
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var summaryJSON []byte

	if err := row.Scan(&r.ID, &r.Worksheet, &status, &r.StartRow, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if len(summaryJSON) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
