package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/taskboard/domain/task"
)

const pgCreateTable = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	priority       TEXT NOT NULL,
	category       TEXT NOT NULL,
	assignee       TEXT,
	attachments    JSONB NOT NULL DEFAULT '[]',
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	status_history JSONB NOT NULL DEFAULT '[]',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`

const pgCreateIndex = `CREATE INDEX IF NOT EXISTS tasks_created_at_idx ON tasks (created_at DESC)`

const pgColumns = `id, title, description, status, priority, category, assignee,
	attachments, started_at, completed_at, status_history, created_at, updated_at`

// PgStore implements task.Store on PostgreSQL through pgx.
type PgStore struct {
	pool *pgxpool.Pool
}

var _ task.Store = (*PgStore)(nil)

// NewPgStore creates a store over pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PgStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := NewPgStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tasks table if it does not exist.
func (s *PgStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{pgCreateTable, pgCreateIndex} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Find retrieves all tasks, newest first.
func (s *PgStore) Find(ctx context.Context) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgColumns+` FROM tasks ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to find tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]task.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// FindByID retrieves a task by its ID.
func (s *PgStore) FindByID(ctx context.Context, id string) (task.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM tasks WHERE id = $1`, id)
	return scanOne(row)
}

// Create saves a new task.
func (s *PgStore) Create(ctx context.Context, t task.Task) (task.Task, error) {
	args, err := taskArgs(t)
	if err != nil {
		return task.Task{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (`+pgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+pgColumns, args...)
	created, err := scanOne(row)
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to create task: %w", err)
	}
	return created, nil
}

// UpdateByID locks the row, applies p and writes it back in one transaction.
func (s *PgStore) UpdateByID(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	var updated task.Task
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+pgColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
		current, err := scanOne(row)
		if err != nil {
			return err
		}

		p.Apply(&current)
		args, err := taskArgs(current)
		if err != nil {
			return err
		}
		row = tx.QueryRow(ctx, `
			UPDATE tasks SET
				title = $2, description = $3, status = $4, priority = $5, category = $6,
				assignee = $7, attachments = $8, started_at = $9, completed_at = $10,
				status_history = $11, created_at = $12, updated_at = $13
			WHERE id = $1
			RETURNING `+pgColumns, args...)
		updated, err = scanOne(row)
		return err
	})
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return task.Task{}, err
		}
		return task.Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	return updated, nil
}

// DeleteByID removes a task and returns it as it was.
func (s *PgStore) DeleteByID(ctx context.Context, id string) (task.Task, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM tasks WHERE id = $1 RETURNING `+pgColumns, id)
	deleted, err := scanOne(row)
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return task.Task{}, err
		}
		return task.Task{}, fmt.Errorf("failed to delete task: %w", err)
	}
	return deleted, nil
}

// Ping checks the database connection.
func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

func taskArgs(t task.Task) ([]any, error) {
	attachments := t.Attachments
	if attachments == nil {
		attachments = []task.Attachment{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}
	historyJSON, err := json.Marshal(t.StatusHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status history: %w", err)
	}
	return []any{
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), string(t.Category),
		t.Assignee, attachmentsJSON, t.StartedAt, t.CompletedAt, historyJSON, t.CreatedAt, t.UpdatedAt,
	}, nil
}

func scanOne(row pgx.Row) (task.Task, error) {
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return task.Task{}, task.ErrNotFound
	}
	return t, err
}

func scanTask(row pgx.Row) (task.Task, error) {
	var (
		t                            task.Task
		status, priority, category   string
		attachmentsJSON, historyJSON []byte
	)
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &status, &priority, &category, &t.Assignee,
		&attachmentsJSON, &t.StartedAt, &t.CompletedAt, &historyJSON, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return task.Task{}, err
		}
		return task.Task{}, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.Category = task.Category(category)
	if err := json.Unmarshal(attachmentsJSON, &t.Attachments); err != nil {
		return task.Task{}, fmt.Errorf("failed to decode attachments: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &t.StatusHistory); err != nil {
		return task.Task{}, fmt.Errorf("failed to decode status history: %w", err)
	}
	if t.Attachments == nil {
		t.Attachments = []task.Attachment{}
	}
	t.StartedAt = utcPtr(t.StartedAt)
	t.CompletedAt = utcPtr(t.CompletedAt)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}
