// Package history persists tool-augmented chat runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/bridge/agent"
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/migrations"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrRunNotFound is returned by GetRun for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded tool-augmented chat.
type Run struct {
	ID         string               `json:"id"`
	Provider   string               `json:"provider"`
	Model      string               `json:"model,omitempty"`
	State      agent.State          `json:"state"`
	Iterations int                  `json:"iterations"`
	Text       string               `json:"text,omitempty"`
	Final      llm.RawResponse      `json:"final,omitempty"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	Messages   []llm.Message        `json:"messages,omitempty"`
	ToolCalls  []llm.ToolCallResult `json:"tool_calls,omitempty"`
}

// Store records runs. It implements bridge.Recorder.
type Store struct {
	db     *sql.DB
	owned  bool
	logger zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close() //nolint:errcheck // Cleanup on error
		return nil, err
	}
	s := NewStore(db, logger)
	s.owned = true
	return s, nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// RecordRun stores result and returns the new run ID.
func (s *Store) RecordRun(ctx context.Context, provider, model string, result *agent.RunResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("nil run result")
	}
	id := uuid.NewString()
	var errText any
	if result.Err != nil {
		errText = result.Err.Error()
	}
	var finalRaw any
	if len(result.Final) > 0 {
		finalRaw = string(result.Final)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	run := sq.Insert("runs").
		Columns("id", "provider", "model", "state", "iterations", "final_text", "final_raw", "error", "created_at").
		Values(id, provider, model, string(result.State), result.Iterations, result.Text, finalRaw, errText, time.Now().Unix())
	if err := execBuilder(ctx, tx, run); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if len(result.Messages) > 0 {
		msgs := sq.Insert("run_messages").Columns("run_id", "seq", "role", "content")
		for i, m := range result.Messages {
			msgs = msgs.Values(id, i, string(m.Role), m.Content)
		}
		if err := execBuilder(ctx, tx, msgs); err != nil {
			return "", fmt.Errorf("insert messages: %w", err)
		}
	}

	if len(result.ToolCalls) > 0 {
		calls := sq.Insert("run_tool_calls").Columns("run_id", "seq", "name", "arguments", "result")
		for i, c := range result.ToolCalls {
			args, err := json.Marshal(c.Arguments)
			if err != nil {
				return "", fmt.Errorf("marshal arguments of %s: %w", c.Name, err)
			}
			calls = calls.Values(id, i, c.Name, string(args), c.Result)
		}
		if err := execBuilder(ctx, tx, calls); err != nil {
			return "", fmt.Errorf("insert tool calls: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	s.logger.Debug().Str("run_id", id).Str("provider", provider).Int("tool_calls", len(result.ToolCalls)).Msg("Recorded run")
	return id, nil
}

func execBuilder(ctx context.Context, tx *sql.Tx, b sq.InsertBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

var runColumns = []string{"id", "provider", "model", "state", "iterations", "final_text", "final_raw", "error", "created_at"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r        Run
		state    string
		finalRaw sql.NullString
		errText  sql.NullString
		created  int64
	)
	if err := row.Scan(&r.ID, &r.Provider, &r.Model, &state, &r.Iterations, &r.Text, &finalRaw, &errText, &created); err != nil {
		return nil, err
	}
	r.State = agent.State(state)
	if finalRaw.Valid {
		r.Final = llm.RawResponse(finalRaw.String)
	}
	r.Error = errText.String
	r.CreatedAt = time.Unix(created, 0)
	return &r, nil
}

// ListRuns returns the most recent runs first, without transcripts.
// A non-positive limit returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := sq.Select(runColumns...).From("runs").OrderBy("created_at DESC", "rowid DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Rows close error can be ignored

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its transcript and tool calls.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	query, args, err := sq.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if run.Messages, err = s.messages(ctx, id); err != nil {
		return nil, err
	}
	if run.ToolCalls, err = s.toolCalls(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) messages(ctx context.Context, id string) ([]llm.Message, error) {
	query, args, err := sq.Select("role", "content").From("run_messages").
		Where(sq.Eq{"run_id": id}).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Rows close error can be ignored

	var out []llm.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, llm.NewTextMessage(llm.MessageRole(role), content))
	}
	return out, rows.Err()
}

func (s *Store) toolCalls(ctx context.Context, id string) ([]llm.ToolCallResult, error) {
	query, args, err := sq.Select("name", "arguments", "result").From("run_tool_calls").
		Where(sq.Eq{"run_id": id}).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tool calls: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Rows close error can be ignored

	out := []llm.ToolCallResult{}
	for rows.Next() {
		var (
			call llm.ToolCallResult
			args string
		)
		if err := rows.Scan(&call.Name, &args, &call.Result); err != nil {
			return nil, fmt.Errorf("scan tool call: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &call.Arguments); err != nil {
			return nil, fmt.Errorf("decode arguments of %s: %w", call.Name, err)
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its transcript.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	for _, table := range []string{"run_tool_calls", "run_messages"} {
		query, args, err := sq.Delete(table).Where(sq.Eq{"run_id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	query, args, err := sq.Delete("runs").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}
