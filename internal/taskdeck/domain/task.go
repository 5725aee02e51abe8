package domain

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskArchived  TaskStatus = "archived"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskActive, TaskCompleted, TaskArchived:
		return true
	}
	return false
}

// TaskListOptions filters and orders a task listing. An empty Status
// means all statuses; Search matches title and description. OrderBy is
// "updated_at" or "created_at".
type TaskListOptions struct {
	Status     TaskStatus
	Search     string
	OrderBy    string
	Descending bool
}

// Task is a unit of work scoped to exactly one account.
type Task struct {
	ID                  string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	AccountID           string
	CreatedByUserID     string
	UpdatedByUserID     string
	Title               string
	Status              TaskStatus
	DescriptionMarkdown string
	CompletedAt         time.Time
	ArchivedAt          time.Time
}
