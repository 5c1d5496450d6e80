package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrEmptyTodoContent = errors.New("todo content is empty")

type Todo struct {
	ID          int64
	Content     string
	CreatedBy   string
	CreatedAt   time.Time
	Completed   bool
	CompletedAt time.Time
	Mentions    string
}

func (s *Store) AddTodo(ctx context.Context, content, createdBy, mentionsJSON string) (Todo, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Todo{}, ErrEmptyTodoContent
	}
	result, err := s.db.ExecContext(
		ctx,
		`INSERT INTO todos (content, created_by, mentions) VALUES (?, ?, ?)`,
		content,
		strings.TrimSpace(createdBy),
		nullIfEmpty(strings.TrimSpace(mentionsJSON)),
	)
	if err != nil {
		return Todo{}, fmt.Errorf("insert todo: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return Todo{}, fmt.Errorf("todo insert id: %w", err)
	}
	return Todo{
		ID:        id,
		Content:   content,
		CreatedBy: strings.TrimSpace(createdBy),
		CreatedAt: time.Now().UTC(),
		Mentions:  strings.TrimSpace(mentionsJSON),
	}, nil
}

// PendingTodos returns open items in insertion order.
func (s *Store) PendingTodos(ctx context.Context) ([]Todo, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, content, created_by, created_at, completed, COALESCE(completed_at, ''), COALESCE(mentions, '')
		 FROM todos
		 WHERE completed = 0
		 ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending todos: %w", err)
	}
	defer rows.Close()

	var results []Todo
	for rows.Next() {
		var todo Todo
		var createdAtText string
		var completedAtText string
		if err := rows.Scan(
			&todo.ID,
			&todo.Content,
			&todo.CreatedBy,
			&createdAtText,
			&todo.Completed,
			&completedAtText,
			&todo.Mentions,
		); err != nil {
			return nil, fmt.Errorf("scan todo row: %w", err)
		}
		todo.CreatedAt = parseSQLiteDateTime(createdAtText)
		todo.CompletedAt = parseSQLiteDateTime(completedAtText)
		results = append(results, todo)
	}
	return results, rows.Err()
}

// CompleteTodo is idempotent: completing an unknown or already-completed id
// is a no-op.
func (s *Store) CompleteTodo(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE todos SET completed = 1, completed_at = datetime('now') WHERE id = ? AND completed = 0`,
		id,
	)
	if err != nil {
		return fmt.Errorf("complete todo: %w", err)
	}
	return nil
}

func (s *Store) ClearCompletedTodos(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE completed = 1`)
	if err != nil {
		return 0, fmt.Errorf("clear completed todos: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear completed todos: %w", err)
	}
	return removed, nil
}
