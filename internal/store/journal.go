package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNilJournal = errors.New("journal is nil")

// Visit is one completed pass of a visitor through the skull.
type Visit struct {
	ID             string    `json:"visit_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	Trigger        string    `json:"trigger"`
	FinalState     string    `json:"final_state"`
	Fortune        string    `json:"fortune,omitempty"`
	TemplateSource string    `json:"template_source,omitempty"`
	PrintAttempted bool      `json:"print_attempted"`
	PrintSucceeded bool      `json:"print_succeeded"`
}

// Journal persists completed visits in SQLite.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (creating if needed) the database at path and migrates it.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One connection: every query sees the same :memory: database.
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) Ping(ctx context.Context) error {
	if j == nil || j.db == nil {
		return ErrNilJournal
	}
	return j.db.PingContext(ctx)
}

func (j *Journal) RecordVisit(ctx context.Context, v Visit) error {
	if j == nil || j.db == nil {
		return fmt.Errorf("record visit: %w", ErrNilJournal)
	}
	if v.ID == "" {
		return fmt.Errorf("record visit: id is empty")
	}
	_, err := j.db.ExecContext(ctx, `INSERT OR REPLACE INTO visits
		(id, started_at, ended_at, trigger_cmd, final_state, fortune, template_source, print_attempted, print_succeeded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID,
		v.StartedAt.UTC().Format(time.RFC3339Nano),
		v.EndedAt.UTC().Format(time.RFC3339Nano),
		v.Trigger,
		v.FinalState,
		nullable(v.Fortune),
		nullable(v.TemplateSource),
		v.PrintAttempted,
		v.PrintSucceeded,
	)
	if err != nil {
		return fmt.Errorf("record visit: insert: %w", err)
	}
	return nil
}

// RecentVisits returns up to limit visits, newest first.
func (j *Journal) RecentVisits(ctx context.Context, limit int) ([]Visit, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("recent visits: %w", ErrNilJournal)
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, started_at, ended_at, trigger_cmd, final_state,
		fortune, template_source, print_attempted, print_succeeded
		FROM visits ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent visits: query: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var (
			v                    Visit
			started, ended       string
			fortune, source      sql.NullString
			attempted, succeeded bool
		)
		if err := rows.Scan(&v.ID, &started, &ended, &v.Trigger, &v.FinalState, &fortune, &source, &attempted, &succeeded); err != nil {
			return nil, fmt.Errorf("recent visits: scan: %w", err)
		}
		v.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("recent visits: parse started_at: %w", err)
		}
		v.EndedAt, err = time.Parse(time.RFC3339Nano, ended)
		if err != nil {
			return nil, fmt.Errorf("recent visits: parse ended_at: %w", err)
		}
		v.Fortune = fortune.String
		v.TemplateSource = source.String
		v.PrintAttempted = attempted
		v.PrintSucceeded = succeeded
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent visits: rows: %w", err)
	}
	return out, nil
}

func (j *Journal) CountPrinted(ctx context.Context) (int, error) {
	if j == nil || j.db == nil {
		return 0, fmt.Errorf("count printed: %w", ErrNilJournal)
	}
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits WHERE print_succeeded = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count printed: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
