package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chepyr/taskmaster/shared/models"
	"github.com/google/uuid"
)

// ErrTaskNotFound means no live task owned by the caller matched.
var ErrTaskNotFound = errors.New("task not found")

// TaskFilter is the single predicate behind every task query and mutation.
// OwnerID is mandatory and deleted rows are always excluded; the other fields
// narrow the match when set.
type TaskFilter struct {
	OwnerID  uuid.UUID
	ID       int64
	Status   models.TaskStatus
	Priority models.Priority
}

// where renders the filter after any args already bound, so placeholders keep
// increasing through the statement.
func (f TaskFilter) where(args []any) (string, []any) {
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	clauses := []string{"owner_id = " + next(f.OwnerID), "deleted_at IS NULL"}
	if f.ID != 0 {
		clauses = append(clauses, "id = "+next(f.ID))
	}
	if f.Status != "" {
		clauses = append(clauses, "status = "+next(string(f.Status)))
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority = "+next(string(f.Priority)))
	}
	return strings.Join(clauses, " AND "), args
}

// defines methods for task db operations
type TaskRepositoryInterface interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, ownerID uuid.UUID, id int64) (*models.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	SoftDelete(ctx context.Context, ownerID uuid.UUID, id int64, at time.Time) error
}

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, owner_id, title, description, priority, status, tags,
 due_date, created_at, updated_at, deleted_at`

// Create inserts the task and sets task.ID to the store-assigned id.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	tags, err := encodeTags(task.Tags)
	if err != nil {
		return err
	}
	query := `INSERT INTO tasks (owner_id, title, description, priority, status, tags,
	 due_date, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

	err = r.db.QueryRowContext(
		ctx, query, task.OwnerID, task.Title, task.Description, string(task.Priority),
		string(task.Status), tags, nullTime(task.DueDate), task.CreatedAt, task.UpdatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, ownerID uuid.UUID, id int64) (*models.Task, error) {
	tasks, err := r.list(ctx, TaskFilter{OwnerID: ownerID, ID: id}, 1)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrTaskNotFound
	}
	return tasks[0], nil
}

// List returns matching live tasks, newest first. Ties on created_at fall
// back to id so the order is stable between calls.
func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	return r.list(ctx, filter, 0)
}

func (r *TaskRepository) list(ctx context.Context, filter TaskFilter, limit int) ([]*models.Task, error) {
	where, args := filter.where(nil)
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + where +
		` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Update overwrites every mutable column of a live task owned by task.OwnerID.
// id, owner_id and created_at are never written.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	tags, err := encodeTags(task.Tags)
	if err != nil {
		return err
	}
	args := []any{
		task.Title, task.Description, string(task.Priority), string(task.Status),
		tags, nullTime(task.DueDate), task.UpdatedAt,
	}
	where, args := TaskFilter{OwnerID: task.OwnerID, ID: task.ID}.where(args)
	query := `UPDATE tasks SET title = $1, description = $2, priority = $3, status = $4,
	 tags = $5, due_date = $6, updated_at = $7 WHERE ` + where

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return expectOneRow(res)
}

// SoftDelete stamps deleted_at and updated_at on a live task. The row stays.
func (r *TaskRepository) SoftDelete(ctx context.Context, ownerID uuid.UUID, id int64, at time.Time) error {
	where, args := TaskFilter{OwnerID: ownerID, ID: id}.where([]any{at})
	query := `UPDATE tasks SET deleted_at = $1, updated_at = $1 WHERE ` + where

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task        models.Task
		description sql.NullString
		priority    string
		status      string
		tags        sql.NullString
		dueDate     sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.OwnerID, &task.Title, &description, &priority, &status, &tags,
		&dueDate, &task.CreatedAt, &task.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.Description = description.String
	task.Priority = models.Priority(priority)
	task.Status = models.TaskStatus(status)
	if task.Tags, err = decodeTags(tags); err != nil {
		return nil, err
	}
	if dueDate.Valid {
		due := dueDate.Time
		task.DueDate = &due
	}
	task.Lifecycle = models.LifecycleActive
	if deletedAt.Valid {
		deleted := deletedAt.Time
		task.DeletedAt = &deleted
		task.Lifecycle = models.LifecycleDeleted
	}
	return &task, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
