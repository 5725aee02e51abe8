package sqlite

import (
	"context"
	"database/sql"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

type tasksRepo struct {
	q querier
}

const taskColumns = `id, created_at, updated_at, account_id, created_by_user_id,
	updated_by_user_id, title, status, description_markdown, completed_at, archived_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var (
		t                    domain.Task
		createdAt, updatedAt string
		status               string
		completed, archived  sql.NullString
	)
	err := scan(&t.ID, &createdAt, &updatedAt, &t.AccountID, &t.CreatedByUserID,
		&t.UpdatedByUserID, &t.Title, &status, &t.DescriptionMarkdown, &completed, &archived)
	if err != nil {
		return domain.Task{}, mapNotFound(err)
	}
	t.CreatedAt = mapTime(createdAt)
	t.UpdatedAt = mapTime(updatedAt)
	t.Status = domain.TaskStatus(status)
	t.CompletedAt = mapNullTime(completed)
	t.ArchivedAt = mapNullTime(archived)
	return t, nil
}

func (r *tasksRepo) GetTaskByID(ctx context.Context, id string) (domain.Task, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM task WHERE id = ?`, id)
	return scanTask(row.Scan)
}

func (r *tasksRepo) ListTasksForAccount(ctx context.Context, accountID string, opts domain.TaskListOptions) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM task WHERE account_id = ?`
	args := []any{accountID}

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.Search != "" {
		query += ` AND (title LIKE ? OR description_markdown LIKE ?)`
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern)
	}

	// Order column is chosen from a fixed set, never interpolated from
	// caller input.
	orderBy := "updated_at"
	if opts.OrderBy == "created_at" {
		orderBy = "created_at"
	}
	query += ` ORDER BY ` + orderBy
	if opts.Descending {
		query += ` DESC`
	} else {
		query += ` ASC`
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
