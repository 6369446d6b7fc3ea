package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/toolagent/internal/llm"
	"github.com/michaelbrown/toolagent/internal/storage"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, prompt, status, model, profile, answer, error, created_at, updated_at`

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// each :memory: connection is its own database
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func now() (time.Time, string) {
	t := time.Now().UTC()
	return t, t.Format(timeLayout)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *storage.Run) error {
	t, ts := now()
	run.CreatedAt = t
	run.UpdatedAt = t

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Prompt, run.Status, run.Model, run.Profile, run.Answer, run.Error, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO run_messages (run_id, messages) VALUES (?, '[]')`, run.ID)
	if err != nil {
		return fmt.Errorf("inserting run messages: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous run prefix %q", id)
	}
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts storage.RunListOptions) ([]storage.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY updated_at DESC, created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *storage.Run) error {
	t, ts := now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, answer = ?, error = ?, updated_at = ? WHERE id = ?`,
		run.Status, run.Answer, run.Error, ts, run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, run.ID)
	}
	run.UpdatedAt = t
	return nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM run_messages WHERE run_id = ?`,
		`DELETE FROM run_servers WHERE run_id = ?`,
		`DELETE FROM runs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, run.ID); err != nil {
			return fmt.Errorf("deleting run: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveMessages(ctx context.Context, runID string, messages []llm.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	_, ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_messages (run_id, messages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		runID, string(data), ts,
	)
	return err
}

func (s *SQLiteStore) LoadMessages(ctx context.Context, runID string) ([]llm.Message, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT messages FROM run_messages WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	var messages []llm.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) SaveOutcomes(ctx context.Context, runID string, outcomes []storage.ServerOutcome) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_servers WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clearing outcomes: %w", err)
	}
	for i, o := range outcomes {
		toolsJSON, err := json.Marshal(o.Tools)
		if err != nil {
			return fmt.Errorf("marshaling tools: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_servers (run_id, position, server, ok, tools, error)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, i, o.Server, o.OK, string(toolsJSON), o.Error,
		)
		if err != nil {
			return fmt.Errorf("inserting outcome %s: %w", o.Server, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadOutcomes(ctx context.Context, runID string) ([]storage.ServerOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server, ok, tools, error FROM run_servers WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("loading outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []storage.ServerOutcome
	for rows.Next() {
		var o storage.ServerOutcome
		var toolsJSON string
		if err := rows.Scan(&o.Server, &o.OK, &toolsJSON, &o.Error); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(toolsJSON), &o.Tools); err != nil {
			return nil, fmt.Errorf("unmarshaling tools: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*storage.Run, error) {
	var run storage.Run
	var createdAt, updatedAt string
	err := s.Scan(&run.ID, &run.Prompt, &run.Status, &run.Model, &run.Profile,
		&run.Answer, &run.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	run.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &run, nil
}
