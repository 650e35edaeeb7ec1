// Package storage archives evaluation results in an embedded DuckDB
// database for later querying and Parquet export.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/railtrace/railtrace/internal/model"
	"github.com/railtrace/railtrace/pkg/engine"
)

// Store wraps the archive database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       VARCHAR PRIMARY KEY,
	train_number VARCHAR,
	loco_number  VARCHAR,
	train_type   VARCHAR,
	direction    VARCHAR,
	max_speed    DOUBLE,
	sample_count INTEGER,
	violation_count INTEGER,
	diagnostic_count INTEGER,
	evaluated_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS violations (
	run_id       VARCHAR,
	kind         VARCHAR,
	section_id   VARCHAR,
	start_ts     TIMESTAMP,
	end_ts       TIMESTAMP,
	peak_excess  DOUBLE,
	severity     VARCHAR,
	sample_count INTEGER
);

CREATE TABLE IF NOT EXISTS diagnostics (
	run_id       VARCHAR,
	code         VARCHAR,
	sample_index INTEGER,
	section_id   VARCHAR,
	message      VARCHAR
);
`

// Open opens (or creates) the archive database at path.
// An empty path opens an in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Archive persists a run's evaluation result in one transaction.
func (s *Store) Archive(ctx context.Context, run *model.Run, res *engine.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.TrainNumber, run.LocoNumber,
		run.TrainType.String(), run.Direction.String(), run.MaxPermissibleSpeed,
		len(run.Samples), len(res.Violations), len(res.Diagnostics),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	vstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO violations VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer vstmt.Close()
	for _, v := range res.Violations {
		if _, err := vstmt.ExecContext(ctx,
			run.ID.String(), v.Kind.String(), v.SectionID,
			v.Start, v.End, v.PeakExcess, v.Severity.String(), v.SampleCount,
		); err != nil {
			return fmt.Errorf("insert violation: %w", err)
		}
	}

	dstmt, err := tx.PrepareContext(ctx,
		`INSERT INTO diagnostics VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer dstmt.Close()
	for _, d := range res.Diagnostics {
		if _, err := dstmt.ExecContext(ctx,
			run.ID.String(), d.Code.String(), d.SampleIndex, d.SectionID, d.Message,
		); err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	return tx.Commit()
}

// KindCount is one row of the per-kind violation summary.
type KindCount struct {
	Kind  string
	Count int64
}

// SummaryByKind returns archive-wide violation counts per kind.
func (s *Store) SummaryByKind(ctx context.Context) ([]KindCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM violations GROUP BY kind ORDER BY kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KindCount
	for rows.Next() {
		var kc KindCount
		if err := rows.Scan(&kc.Kind, &kc.Count); err != nil {
			return nil, err
		}
		out = append(out, kc)
	}
	return out, rows.Err()
}

// RunRow is one archived run.
type RunRow struct {
	RunID          string
	TrainNumber    string
	TrainType      string
	ViolationCount int64
	EvaluatedAt    time.Time
}

// RecentRuns returns the most recently archived runs.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, train_number, train_type, violation_count, evaluated_at
		 FROM runs ORDER BY evaluated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.TrainNumber, &r.TrainType, &r.ViolationCount, &r.EvaluatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportParquet writes the violations table to a Parquet file using
// DuckDB's native COPY.
func (s *Store) ExportParquet(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`COPY (SELECT * FROM violations) TO '%s' (FORMAT PARQUET)`, path))
	if err != nil {
		return fmt.Errorf("export parquet: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
