package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chepyr/taskmaster/shared"
	"github.com/chepyr/taskmaster/shared/models"
)

/*
handles routes:
- GET /tasks - list the caller's tasks
- POST /tasks - create a new task
*/
func (h *Handler) HandleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listTasks(w, r)
	case http.MethodPost:
		h.createTask(w, r)
	default:
		shared.SendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	list, err := h.Tasks.ListTasks(ctx, principalFrom(ctx))
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	shared.SendJSON(w, http.StatusOK, list)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeTaskInput(w, r)
	if !ok {
		return
	}
	draft, err := input.draft()
	if err != nil {
		shared.SendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.CreateTask(ctx, principalFrom(ctx), draft)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/tasks/%d", task.ID))
	shared.SendJSON(w, http.StatusCreated, task)
}

/*
routes:
- GET /tasks/{id},
- PUT/PATCH /tasks/{id},
- DELETE /tasks/{id}
*/
func (h *Handler) HandleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskIDstr := strings.TrimPrefix(r.URL.Path, "/tasks/")
	if taskIDstr == "" {
		shared.SendError(w, "task id is required", http.StatusBadRequest)
		return
	}
	taskID, err := strconv.ParseInt(taskIDstr, 10, 64)
	if err != nil || taskID <= 0 {
		shared.SendError(w, "task id must be a positive integer", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getTaskByID(w, r, taskID)
	case http.MethodPut, http.MethodPatch:
		h.updateTaskByID(w, r, taskID)
	case http.MethodDelete:
		h.deleteTaskByID(w, r, taskID)
	default:
		shared.SendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getTaskByID(w http.ResponseWriter, r *http.Request, taskID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.GetTask(ctx, principalFrom(ctx), taskID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	shared.SendJSON(w, http.StatusOK, task)
}

func (h *Handler) updateTaskByID(w http.ResponseWriter, r *http.Request, taskID int64) {
	input, ok := decodeTaskInput(w, r)
	if !ok {
		return
	}
	patch, err := input.patch()
	if err != nil {
		shared.SendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.UpdateTask(ctx, principalFrom(ctx), taskID, patch)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	shared.SendJSON(w, http.StatusOK, task)
}

func (h *Handler) deleteTaskByID(w http.ResponseWriter, r *http.Request, taskID int64) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	task, err := h.Tasks.DeleteTask(ctx, principalFrom(ctx), taskID)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	shared.SendJSON(w, http.StatusOK, task)
}

// GET /tasks/status/{status}
func (h *Handler) HandleTasksByStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		shared.SendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	status := strings.TrimPrefix(r.URL.Path, "/tasks/status/")
	list, err := h.Tasks.ListByStatus(ctx, principalFrom(ctx), status)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	shared.SendJSON(w, http.StatusOK, list)
}

// GET /tasks/priority/{priority}
func (h *Handler) HandleTasksByPriority(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		shared.SendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	priority := strings.TrimPrefix(r.URL.Path, "/tasks/priority/")
	list, err := h.Tasks.ListByPriority(ctx, principalFrom(ctx), priority)
	if err != nil {
		sendServiceError(w, r, err)
		return
	}
	shared.SendJSON(w, http.StatusOK, list)
}

// taskInput is the request body for create and update. Fields the caller
// may not set (id, owner_id, timestamps) are simply not decoded.
type taskInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Priority    *string   `json:"priority"`
	Status      *string   `json:"status"`
	Tags        tagsField `json:"tags"`
	DueDate     *string   `json:"due_date"`
	Completed   *bool     `json:"completed"`
}

func decodeTaskInput(w http.ResponseWriter, r *http.Request) (*taskInput, bool) {
	if !shared.IsJSONContentType(r) {
		shared.SendError(w, "Content-Type must be application/json", http.StatusBadRequest)
		return nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var input taskInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		shared.SendError(w, "Invalid JSON body", http.StatusBadRequest)
		return nil, false
	}
	return &input, true
}

func (in *taskInput) draft() (models.TaskDraft, error) {
	draft := models.TaskDraft{Completed: in.Completed}
	if in.Title != nil {
		draft.Title = *in.Title
	}
	if in.Description != nil {
		draft.Description = *in.Description
	}
	if in.Priority != nil {
		draft.Priority = models.Priority(*in.Priority)
	}
	if in.Status != nil {
		draft.Status = models.TaskStatus(*in.Status)
	}
	if in.Tags.set {
		draft.Tags = in.Tags.values
	}
	if in.DueDate != nil && *in.DueDate != "" {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return draft, err
		}
		draft.DueDate = &due
	}
	return draft, nil
}

func (in *taskInput) patch() (models.TaskPatch, error) {
	patch := models.TaskPatch{
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
	}
	if in.Priority != nil {
		p := models.Priority(*in.Priority)
		patch.Priority = &p
	}
	if in.Status != nil {
		s := models.TaskStatus(*in.Status)
		patch.Status = &s
	}
	if in.Tags.set {
		tags := in.Tags.values
		patch.Tags = &tags
	}
	if in.DueDate != nil {
		if *in.DueDate == "" {
			patch.ClearDueDate = true
		} else {
			due, err := parseDueDate(*in.DueDate)
			if err != nil {
				return patch, err
			}
			patch.DueDate = &due
		}
	}
	return patch, nil
}

func parseDueDate(s string) (time.Time, error) {
	due, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("due_date must be an RFC 3339 timestamp")
	}
	return due, nil
}

// tagsField accepts either a JSON array of strings or the older form where
// the array was sent pre-encoded as a string.
type tagsField struct {
	set    bool
	values []string
}

func (f *tagsField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var values []string
	if err := json.Unmarshal(b, &values); err == nil {
		f.set, f.values = true, values
		return nil
	}

	var encoded string
	if err := json.Unmarshal(b, &encoded); err != nil {
		return errors.New("tags must be an array of strings")
	}
	f.set, f.values = true, []string{}
	if strings.TrimSpace(encoded) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &f.values); err != nil {
		return errors.New("tags must be an array of strings")
	}
	return nil
}
