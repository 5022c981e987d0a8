package tasks

import (
	"context"

	"github.com/chepyr/taskmaster/shared/models"
	"github.com/chepyr/taskmaster/tasks-service/db"
)

// ListTasks returns the principal's live tasks, newest first.
func (s *Service) ListTasks(ctx context.Context, p *Principal) ([]*models.Task, error) {
	owner, err := ownerOf(p)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, "list tasks", db.TaskFilter{OwnerID: owner})
}

// GetTask reports ErrNotFound for missing, deleted and foreign ids alike.
func (s *Service) GetTask(ctx context.Context, p *Principal, id int64) (*models.Task, error) {
	owner, err := ownerOf(p)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetByID(ctx, owner, id)
	if err != nil {
		return nil, translate("get task", err)
	}
	return task, nil
}

func (s *Service) ListByStatus(ctx context.Context, p *Principal, status string) ([]*models.Task, error) {
	owner, err := ownerOf(p)
	if err != nil {
		return nil, err
	}
	st := models.TaskStatus(status)
	if !st.Valid() {
		return nil, invalidArgument("unknown status %q", status)
	}
	return s.list(ctx, "list tasks by status", db.TaskFilter{OwnerID: owner, Status: st})
}

func (s *Service) ListByPriority(ctx context.Context, p *Principal, priority string) ([]*models.Task, error) {
	owner, err := ownerOf(p)
	if err != nil {
		return nil, err
	}
	pr := models.Priority(priority)
	if !pr.Valid() {
		return nil, invalidArgument("unknown priority %q", priority)
	}
	return s.list(ctx, "list tasks by priority", db.TaskFilter{OwnerID: owner, Priority: pr})
}

func (s *Service) list(ctx context.Context, op string, filter db.TaskFilter) ([]*models.Task, error) {
	tasks, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return tasks, nil
}
