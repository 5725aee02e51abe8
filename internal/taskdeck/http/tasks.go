package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/metrics"
	"github.com/taskdeck/taskdeck/internal/taskdeck/service"
	"github.com/taskdeck/taskdeck/pkg/httpx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

type TaskHandler struct {
	Router      *Router
	TaskService *service.TaskService
}

type taskUpdateRequest struct {
	Title               *string `json:"title" validate:"omitempty,min=1,max=300"`
	DescriptionMarkdown *string `json:"description_markdown" validate:"omitempty,max=100000"`
}

type taskResponse struct {
	ID                  string     `json:"id"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	AccountID           string     `json:"account_id"`
	CreatedByUserID     string     `json:"created_by_user_id"`
	UpdatedByUserID     string     `json:"updated_by_user_id"`
	Title               string     `json:"title"`
	Status              string     `json:"status"`
	DescriptionMarkdown string     `json:"description_markdown"`
	Excerpt             string     `json:"excerpt"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ArchivedAt          *time.Time `json:"archived_at,omitempty"`
}

// excerptLen is what list views show before truncation.
const excerptLen = 160

// HandleCreate godoc
//
//	@Summary		Create a task
//	@Description	Creates a placeholder task the caller then edits in place.
//	@Tags			Tasks
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Account id"
//	@Success		201	{object}	taskResponse
//	@Router			/v1/accounts/{id}/tasks [post].
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")

	caller, ok := h.Router.callerMembership(w, r, accountID)
	if !ok {
		return
	}

	t, err := h.TaskService.CreateTask(ctx, accountID, caller.UserID)
	if err != nil {
		log.Error("task create failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Task create failed")
		return
	}

	metrics.TasksCreatedTotal.Inc()
	httpx.WriteJSON(w, http.StatusCreated, toTaskResponse(t))
}

// HandleList godoc
//
//	@Summary	List an account's tasks
//	@Tags		Tasks
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id			path	string	true	"Account id"
//	@Param		status		query	string	false	"Filter by status"	Enums(active, completed, archived)
//	@Param		search		query	string	false	"Substring match on title and description"
//	@Param		order_by	query	string	false	"Sort column"	Enums(created_at, updated_at, title)
//	@Param		desc		query	bool	false	"Sort descending"
//	@Success	200			{array}	taskResponse
//	@Router		/v1/accounts/{id}/tasks [get].
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	accountID := r.PathValue("id")

	if _, ok := h.Router.callerMembership(w, r, accountID); !ok {
		return
	}

	q := r.URL.Query()
	opts := domain.TaskListOptions{
		Status:     domain.TaskStatus(q.Get("status")),
		Search:     q.Get("search"),
		OrderBy:    q.Get("order_by"),
		Descending: q.Get("desc") == "true",
	}

	tasks, err := h.TaskService.ListTasks(ctx, accountID, opts)
	if err != nil {
		log.Error("task listing failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Listing failed")
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGet godoc
//
//	@Summary	Get a task
//	@Tags		Tasks
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id	path		string	true	"Task id"
//	@Success	200	{object}	taskResponse
//	@Failure	404	{object}	httpx.ErrorResponse
//	@Router		/v1/tasks/{id} [get].
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTaskResponse(t))
}

// HandleUpdate godoc
//
//	@Summary	Edit a task's title or description
//	@Tags		Tasks
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Task id"
//	@Param		body	body		taskUpdateRequest	true	"Partial edit"
//	@Success	200		{object}	taskResponse
//	@Failure	404		{object}	httpx.ErrorResponse
//	@Router		/v1/tasks/{id} [patch].
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	t, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	var req taskUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.TaskService.UpdateTask(ctx, t.ID, httpx.UserIDFromCtx(ctx), service.TaskUpdate{
		Title:               req.Title,
		DescriptionMarkdown: req.DescriptionMarkdown,
	})
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Task not found")
			return
		}
		log.Error("task update failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Update failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTaskResponse(updated))
}

// HandleDelete godoc
//
//	@Summary	Delete a task permanently
//	@Tags		Tasks
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Task id"
//	@Success	204
//	@Failure	404	{object}	httpx.ErrorResponse
//	@Router		/v1/tasks/{id} [delete].
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	t, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	if err := h.TaskService.DeleteTask(ctx, t.ID); err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Task not found")
			return
		}
		log.Error("task delete failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLifecycle godoc
//
//	@Summary	Move a task through its lifecycle
//	@Tags		Tasks
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id		path		string	true	"Task id"
//	@Param		action	path		string	true	"Transition"	Enums(complete, reopen, archive, unarchive)
//	@Success	200		{object}	taskResponse
//	@Failure	404		{object}	httpx.ErrorResponse
//	@Router		/v1/tasks/{id}/{action} [post].
func (h *TaskHandler) HandleLifecycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	t, ok := h.loadTask(w, r)
	if !ok {
		return
	}
	userID := httpx.UserIDFromCtx(ctx)

	var (
		updated domain.Task
		err     error
	)
	switch action := r.PathValue("action"); action {
	case "complete":
		updated, err = h.TaskService.CompleteTask(ctx, t.ID, userID)
	case "reopen":
		updated, err = h.TaskService.ReopenTask(ctx, t.ID, userID)
	case "archive":
		updated, err = h.TaskService.ArchiveTask(ctx, t.ID, userID)
	case "unarchive":
		updated, err = h.TaskService.UnarchiveTask(ctx, t.ID, userID)
	default:
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Unknown action")
		return
	}
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Task not found")
			return
		}
		log.Error("task transition failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Transition failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTaskResponse(updated))
}

// HandleExport godoc
//
//	@Summary	Download a task as a markdown file
//	@Tags		Tasks
//	@Security	BearerAuth
//	@Produce	text/markdown
//	@Param		id	path		string	true	"Task id"
//	@Success	200	{string}	string
//	@Failure	404	{object}	httpx.ErrorResponse
//	@Router		/v1/tasks/{id}/export [get].
func (h *TaskHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	t, ok := h.loadTask(w, r)
	if !ok {
		return
	}

	filename, content := service.ExportMarkdown(t)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

// loadTask fetches the task and checks the caller is a member of its
// account. Tasks the caller cannot see report as not found.
func (h *TaskHandler) loadTask(w http.ResponseWriter, r *http.Request) (domain.Task, bool) {
	t, err := h.TaskService.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrTaskNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "Task not found")
		} else {
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Task lookup failed")
		}
		return domain.Task{}, false
	}
	if _, ok := h.Router.callerMembership(w, r, t.AccountID); !ok {
		return domain.Task{}, false
	}
	return t, true
}

func toTaskResponse(t domain.Task) taskResponse {
	resp := taskResponse{
		ID:                  t.ID,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
		AccountID:           t.AccountID,
		CreatedByUserID:     t.CreatedByUserID,
		UpdatedByUserID:     t.UpdatedByUserID,
		Title:               t.Title,
		Status:              string(t.Status),
		DescriptionMarkdown: t.DescriptionMarkdown,
		Excerpt:             service.Excerpt(t.DescriptionMarkdown, excerptLen),
	}
	if !t.CompletedAt.IsZero() {
		resp.CompletedAt = &t.CompletedAt
	}
	if !t.ArchivedAt.IsZero() {
		resp.ArchivedAt = &t.ArchivedAt
	}
	return resp
}
