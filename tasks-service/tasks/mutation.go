package tasks

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chepyr/taskmaster/shared/models"
)

// CreateTask stores a new task owned by p. Missing priority and status
// default to medium and todo.
func (s *Service) CreateTask(ctx context.Context, p *Principal, draft models.TaskDraft) (*models.Task, error) {
	owner, err := ownerOf(p)
	if err != nil {
		return nil, err
	}

	title, err := normalizeTitle(draft.Title)
	if err != nil {
		return nil, err
	}
	priority := models.PriorityMedium
	if draft.Priority != "" {
		if !draft.Priority.Valid() {
			return nil, invalidArgument("unknown priority %q", draft.Priority)
		}
		priority = draft.Priority
	}
	var status *models.TaskStatus
	if draft.Status != "" {
		status = &draft.Status
	}
	resolved, err := resolveStatus(models.TaskStatusTodo, status, draft.Completed)
	if err != nil {
		return nil, err
	}

	now := s.stamp(time.Time{})
	task := &models.Task{
		OwnerID:     owner,
		Title:       title,
		Description: draft.Description,
		Priority:    priority,
		Status:      resolved,
		Tags:        normalizeTags(draft.Tags),
		DueDate:     utcPtr(draft.DueDate),
		CreatedAt:   now,
		UpdatedAt:   now,
		Lifecycle:   models.LifecycleActive,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, storeFailure("create task", err)
	}
	return task, nil
}

// UpdateTask merges patch into the principal's live task and returns the
// full record as stored. Even an empty patch advances UpdatedAt.
func (s *Service) UpdateTask(ctx context.Context, p *Principal, id int64, patch models.TaskPatch) (*models.Task, error) {
	owner, err := ownerOf(p)
	if err != nil {
		return nil, err
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	current, err := s.store.GetByID(ctx, owner, id)
	if err != nil {
		return nil, translate("get task", err)
	}

	merged := current.Clone()
	if patch.Title != nil {
		// validatePatch already checked it
		merged.Title, _ = normalizeTitle(*patch.Title)
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.Priority != nil {
		merged.Priority = *patch.Priority
	}
	if merged.Status, err = resolveStatus(current.Status, patch.Status, patch.Completed); err != nil {
		return nil, err
	}
	if patch.Tags != nil {
		merged.Tags = normalizeTags(*patch.Tags)
	}
	switch {
	case patch.ClearDueDate:
		merged.DueDate = nil
	case patch.DueDate != nil:
		merged.DueDate = utcPtr(patch.DueDate)
	}
	merged.UpdatedAt = s.stamp(current.UpdatedAt)

	if err := s.store.Update(ctx, merged); err != nil {
		return nil, translate("update task", err)
	}
	return merged, nil
}

// DeleteTask soft-deletes the principal's live task. The returned record is
// the task as it last looked while live, with DeletedAt set and UpdatedAt
// moved to the same instant.
func (s *Service) DeleteTask(ctx context.Context, p *Principal, id int64) (*models.Task, error) {
	owner, err := ownerOf(p)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetByID(ctx, owner, id)
	if err != nil {
		return nil, translate("get task", err)
	}

	at := s.stamp(current.UpdatedAt)
	if err := s.store.SoftDelete(ctx, owner, id, at); err != nil {
		return nil, translate("delete task", err)
	}

	snapshot := current.Clone()
	snapshot.UpdatedAt = at
	snapshot.DeletedAt = &at
	snapshot.Lifecycle = models.LifecycleDeleted
	return snapshot, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalidArgument("title is required")
	}
	if utf8.RuneCountInString(title) > models.MaxTitleLength {
		return "", invalidArgument("title longer than %d characters", models.MaxTitleLength)
	}
	return title, nil
}

func validatePatch(patch models.TaskPatch) error {
	if patch.Title != nil {
		if _, err := normalizeTitle(*patch.Title); err != nil {
			return err
		}
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return invalidArgument("unknown priority %q", *patch.Priority)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return invalidArgument("unknown status %q", *patch.Status)
	}
	if patch.Status != nil && patch.Completed != nil &&
		(*patch.Status == models.TaskStatusCompleted) != *patch.Completed {
		return invalidArgument("status %q contradicts completed=%t", *patch.Status, *patch.Completed)
	}
	if patch.DueDate != nil && patch.ClearDueDate {
		return invalidArgument("due date both set and cleared")
	}
	return nil
}

// resolveStatus folds the legacy completed flag into a status.
func resolveStatus(current models.TaskStatus, status *models.TaskStatus, completed *bool) (models.TaskStatus, error) {
	if status != nil && !status.Valid() {
		return "", invalidArgument("unknown status %q", *status)
	}
	switch {
	case status != nil && completed != nil:
		if (*status == models.TaskStatusCompleted) != *completed {
			return "", invalidArgument("status %q contradicts completed=%t", *status, *completed)
		}
		return *status, nil
	case status != nil:
		return *status, nil
	case completed != nil && *completed:
		return models.TaskStatusCompleted, nil
	case completed != nil && current == models.TaskStatusCompleted:
		return models.TaskStatusTodo, nil
	}
	return current, nil
}

// normalizeTags trims each tag and drops empty ones, keeping order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}
