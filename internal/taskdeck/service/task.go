package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/pkg/idx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

var (
	ErrTaskNotFound = errors.New("task not found")

	// DefaultTaskTitle is the placeholder for freshly created tasks.
	DefaultTaskTitle = "New task"
)

// TaskService owns the task lifecycle. All writes flow through the
// record cache so every mutation produces exactly one change event.
type TaskService struct {
	Store   store.Store
	Records *records.Store
}

// TaskUpdate is a partial edit; nil fields are left untouched.
type TaskUpdate struct {
	Title               *string
	DescriptionMarkdown *string
}

// CreateTask adds a placeholder task to the account.
func (s *TaskService) CreateTask(ctx context.Context, accountID, userID string) (domain.Task, error) {
	log := slogx.FromContext(ctx)

	now := time.Now()
	rec := records.Record{
		"id":                   idx.New().String(),
		"created_at":           domain.FormatTime(now),
		"updated_at":           domain.FormatTime(now),
		"account_id":           accountID,
		"created_by_user_id":   userID,
		"updated_by_user_id":   userID,
		"title":                DefaultTaskTitle,
		"status":               string(domain.TaskActive),
		"description_markdown": "",
	}

	stored, err := s.Records.Insert(ctx, "task", rec)
	if err != nil {
		log.Error("failed to create task", slog.Any("error", err))
		return domain.Task{}, err
	}

	log.Debug("task created",
		slog.String("task_id", stored.ID()),
		slog.String("account_id", accountID),
	)
	return taskFromRecord(stored), nil
}

// GetTask returns one task.
func (s *TaskService) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	t, err := s.Store.Tasks().GetTaskByID(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Task{}, ErrTaskNotFound
	}
	return t, err
}

// UpdateTask applies a partial edit and bumps the update stamp.
func (s *TaskService) UpdateTask(ctx context.Context, taskID, userID string, upd TaskUpdate) (domain.Task, error) {
	partial := records.Record{
		"updated_at":         domain.FormatTime(time.Now()),
		"updated_by_user_id": userID,
	}
	if upd.Title != nil {
		partial["title"] = *upd.Title
	}
	if upd.DescriptionMarkdown != nil {
		partial["description_markdown"] = *upd.DescriptionMarkdown
	}

	return s.applyTask(ctx, taskID, partial)
}

// CompleteTask moves an active task to completed.
func (s *TaskService) CompleteTask(ctx context.Context, taskID, userID string) (domain.Task, error) {
	now := time.Now()
	return s.applyTask(ctx, taskID, records.Record{
		"status":             string(domain.TaskCompleted),
		"completed_at":       domain.FormatTime(now),
		"updated_at":         domain.FormatTime(now),
		"updated_by_user_id": userID,
	})
}

// ReopenTask moves a completed task back to active and clears the
// completion stamp.
func (s *TaskService) ReopenTask(ctx context.Context, taskID, userID string) (domain.Task, error) {
	return s.applyTask(ctx, taskID, records.Record{
		"status":             string(domain.TaskActive),
		"completed_at":       nil,
		"updated_at":         domain.FormatTime(time.Now()),
		"updated_by_user_id": userID,
	})
}

// ArchiveTask parks a task out of the active lists.
func (s *TaskService) ArchiveTask(ctx context.Context, taskID, userID string) (domain.Task, error) {
	now := time.Now()
	return s.applyTask(ctx, taskID, records.Record{
		"status":             string(domain.TaskArchived),
		"archived_at":        domain.FormatTime(now),
		"updated_at":         domain.FormatTime(now),
		"updated_by_user_id": userID,
	})
}

// UnarchiveTask restores an archived task to active.
func (s *TaskService) UnarchiveTask(ctx context.Context, taskID, userID string) (domain.Task, error) {
	return s.applyTask(ctx, taskID, records.Record{
		"status":             string(domain.TaskActive),
		"archived_at":        nil,
		"updated_at":         domain.FormatTime(time.Now()),
		"updated_by_user_id": userID,
	})
}

// DeleteTask removes a task permanently.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.Records.Delete(ctx, "task", taskID)
	if errors.Is(err, records.ErrNotFound) {
		return ErrTaskNotFound
	}
	return err
}

// ListTasks returns the account's tasks. Zero-valued options list
// everything ordered by update time, newest first.
func (s *TaskService) ListTasks(ctx context.Context, accountID string, opts domain.TaskListOptions) ([]domain.Task, error) {
	if opts.OrderBy == "" {
		opts.OrderBy = "updated_at"
		opts.Descending = true
	}
	return s.Store.Tasks().ListTasksForAccount(ctx, accountID, opts)
}

func (s *TaskService) applyTask(ctx context.Context, taskID string, partial records.Record) (domain.Task, error) {
	stored, err := s.Records.Update(ctx, "task", taskID, partial)
	if err != nil {
		if errors.Is(err, records.ErrWriteFailed) {
			return domain.Task{}, ErrTaskNotFound
		}
		return domain.Task{}, err
	}
	return taskFromRecord(stored), nil
}

func taskFromRecord(rec records.Record) domain.Task {
	return domain.Task{
		ID:                  rec.ID(),
		CreatedAt:           rec.Time("created_at"),
		UpdatedAt:           rec.Time("updated_at"),
		AccountID:           rec.String("account_id"),
		CreatedByUserID:     rec.String("created_by_user_id"),
		UpdatedByUserID:     rec.String("updated_by_user_id"),
		Title:               rec.String("title"),
		Status:              domain.TaskStatus(rec.String("status")),
		DescriptionMarkdown: rec.String("description_markdown"),
		CompletedAt:         rec.Time("completed_at"),
		ArchivedAt:          rec.Time("archived_at"),
	}
}
