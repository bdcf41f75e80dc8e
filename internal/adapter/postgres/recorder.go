// Package postgres records prediction runs in PostgreSQL so the dashboard
// can show a run history.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/floodsense-service/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

const schema = `
CREATE TABLE IF NOT EXISTS prediction_runs (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT      NOT NULL,
	succeeded    BOOLEAN     NOT NULL,
	error        TEXT        NOT NULL DEFAULT '',
	row_count    INTEGER     NOT NULL DEFAULT 0,
	flood_points INTEGER     NOT NULL DEFAULT 0,
	points       JSONB       NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS prediction_runs_finished_at_idx ON prediction_runs (finished_at DESC);`

// DefaultHistoryLimit caps Recent when the caller passes a non-positive limit.
const DefaultHistoryLimit = 20

// Recorder stores prediction runs. It implements state.RunSink.
type Recorder struct {
	db *sqlx.DB
}

// Connect opens a connection pool to url and verifies it.
func Connect(ctx context.Context, url string) (*Recorder, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewRecorder(db), nil
}

// NewRecorder wraps an existing pool.
func NewRecorder(db *sqlx.DB) *Recorder {
	return &Recorder{db: db}
}

// EnsureSchema creates the run table if it does not exist.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

type runRow struct {
	domain.RunSummary
	Points []byte `db:"points"`
}

func newRunRow(report domain.RunReport) (runRow, error) {
	points := []domain.Coordinate{}
	if report.Result != nil {
		points = domain.Coordinates(report.Result.Positives)
	}
	data, err := json.Marshal(points)
	if err != nil {
		return runRow{}, fmt.Errorf("marshal points: %w", err)
	}
	return runRow{RunSummary: report.Summary(), Points: data}, nil
}

// Publish inserts the run. Re-publishing the same run id is a no-op.
func (r *Recorder) Publish(ctx context.Context, report domain.RunReport) error {
	row, err := newRunRow(report)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO prediction_runs (
			id, started_at, finished_at, duration_ms, succeeded,
			error, row_count, flood_points, points
		) VALUES (
			:id, :started_at, :finished_at, :duration_ms, :succeeded,
			:error, :row_count, :flood_points, :points
		)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("insert run %s: %w", report.ID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	const query = `
		SELECT id, started_at, finished_at, duration_ms, succeeded,
			error, row_count, flood_points
		FROM prediction_runs
		ORDER BY finished_at DESC
		LIMIT $1`

	runs := []domain.RunSummary{}
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return runs, nil
}

// Points returns the flood points stored for run id, or ErrRunNotFound.
func (r *Recorder) Points(ctx context.Context, id string) ([]domain.Coordinate, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT points FROM prediction_runs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", id, err)
	}
	var points []domain.Coordinate
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("decode run %s points: %w", id, err)
	}
	return points, nil
}

// CheckReadiness pings the database.
func (r *Recorder) CheckReadiness(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Recorder) Close() error {
	return r.db.Close()
}
