// Package history archives finished pipeline runs in a local SQLite file.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/newsroom/internal/newsroom"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("history: run not found")

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultLimit is the number of runs List returns when limit <= 0.
const DefaultLimit = 20

// Run is one archived result.
type Run struct {
	ID          int64           `json:"id"`
	Topic       string          `json:"topic"`
	RunID       string          `json:"run_id,omitempty"`
	Status      newsroom.Status `json:"status"`
	Iterations  int             `json:"iterations"`
	Title       string          `json:"title,omitempty"`
	Score       *float64        `json:"score,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Result decodes the archived payload.
func (r *Run) Result() (*newsroom.PipelineResult, error) {
	var res newsroom.PipelineResult
	if err := json.Unmarshal(r.Payload, &res); err != nil {
		return nil, fmt.Errorf("history: decode run %d: %w", r.ID, err)
	}
	res.Raw = r.Payload
	return &res, nil
}

// Store is the run archive.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the archive at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			topic        TEXT    NOT NULL,
			run_id       TEXT    NOT NULL DEFAULT '',
			status       TEXT    NOT NULL,
			iterations   INTEGER NOT NULL DEFAULT 0,
			title        TEXT    NOT NULL DEFAULT '',
			score        REAL,
			payload      TEXT    NOT NULL,
			completed_at TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(completed_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_topic ON runs(topic);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save archives res. topic is used when the result does not carry one.
func (s *Store) Save(ctx context.Context, topic string, res *newsroom.PipelineResult) (int64, error) {
	if res == nil {
		return 0, errors.New("history: nil result")
	}

	payload := res.Raw
	if len(payload) == 0 {
		b, err := json.Marshal(res)
		if err != nil {
			return 0, fmt.Errorf("history: encode result: %w", err)
		}
		payload = b
	}

	if res.Topic != "" {
		topic = res.Topic
	}
	iterations := 0
	if res.Iterations != nil {
		iterations = *res.Iterations
	}
	var title string
	if res.Article != nil {
		title = res.Article.Title
	}
	var score *float64
	if res.Review != nil {
		v := res.Review.Score
		score = &v
	}
	completed := res.FinishedAt.Time
	if completed.IsZero() {
		completed = s.now()
	}

	out, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (topic, run_id, status, iterations, title, score, payload, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		topic, res.RunID, string(res.Status), iterations, title, score, string(payload),
		completed.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	return out.LastInsertId()
}

const selectRun = `SELECT id, topic, run_id, status, iterations, title, score, payload, completed_at FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r         Run
		status    string
		payload   string
		completed string
	)
	if err := row.Scan(&r.ID, &r.Topic, &r.RunID, &status, &r.Iterations, &r.Title, &r.Score, &payload, &completed); err != nil {
		return nil, err
	}
	r.Status = newsroom.Status(status)
	r.Payload = json.RawMessage(payload)
	t, err := time.Parse(timeLayout, completed)
	if err != nil {
		return nil, fmt.Errorf("history: run %d: bad completed_at %q: %w", r.ID, completed, err)
	}
	r.CompletedAt = t
	return &r, nil
}

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("history: get run %d: %w", id, err)
	}
	return r, nil
}

// List returns the most recent runs, newest first. A non-empty topic
// filters by exact topic.
func (s *Store) List(ctx context.Context, topic string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := selectRun + ` WHERE 1=1`
	args := []any{}
	if topic != "" {
		query += ` AND topic = ?`
		args = append(args, topic)
	}
	query += ` ORDER BY completed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}
