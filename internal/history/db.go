package history

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the optional SQLite index over run history. It mirrors what the
// JSONL files record so past runs can be queried without parsing them.
type DB struct {
	conn *sql.DB
}

// OpenDB opens or creates the history database and initializes the
// schema.
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// WAL allows readers while a run is being recorded.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Run is one recorded scenario execution.
type Run struct {
	ID           int64
	RunID        string
	Scenario     string
	StartedAt    time.Time
	Passed       bool
	FailureCount int
}

// RecordRun inserts a run row plus one metric row per value.
func (db *DB) RecordRun(run *Run, metrics map[string]float64) error {
	result, err := db.conn.Exec(`
		INSERT INTO runs (run_id, scenario, started_at, passed, failure_count)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Scenario, run.StartedAt.Format(time.RFC3339), run.Passed, run.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := db.conn.Exec(`
			INSERT INTO run_metrics (run_id, metric, value)
			VALUES (?, ?, ?)`,
			id, name, metrics[name],
		); err != nil {
			return fmt.Errorf("failed to record metric %s: %w", name, err)
		}
	}
	return nil
}

// ListRuns returns recent runs, newest first. An empty scenario lists
// every scenario; limit 0 means no limit.
func (db *DB) ListRuns(scenario string, limit int) ([]*Run, error) {
	query := `SELECT id, run_id, scenario, started_at, passed, failure_count
		FROM runs`
	var args []interface{}
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var startedAt string

		if err := rows.Scan(&run.ID, &run.RunID, &run.Scenario, &startedAt, &run.Passed, &run.FailureCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// RunMetrics returns the metric values recorded for one run row.
func (db *DB) RunMetrics(id int64) (map[string]float64, error) {
	rows, err := db.conn.Query(`
		SELECT metric, value FROM run_metrics WHERE run_id = ? ORDER BY metric`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run metrics: %w", err)
	}
	defer rows.Close()

	metrics := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics[name] = value
	}
	return metrics, rows.Err()
}
