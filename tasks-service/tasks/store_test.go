package tasks

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	idb "github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/shared/models"
	"github.com/chepyr/taskmaster/tasks-service/db"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory TaskRepositoryInterface that counts calls.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Task
	calls  int
	err    error
}

func newMemStore() *memStore {
	return &memStore{rows: map[int64]*models.Task{}}
}

func (m *memStore) hit() error {
	m.calls++
	return m.err
}

func (m *memStore) live(owner uuid.UUID, id int64) (*models.Task, bool) {
	row, ok := m.rows[id]
	if !ok || row.OwnerID != owner || row.DeletedAt != nil {
		return nil, false
	}
	return row, true
}

func (m *memStore) Create(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(); err != nil {
		return err
	}
	m.nextID++
	task.ID = m.nextID
	m.rows[task.ID] = task.Clone()
	return nil
}

func (m *memStore) GetByID(_ context.Context, owner uuid.UUID, id int64) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(); err != nil {
		return nil, err
	}
	row, ok := m.live(owner, id)
	if !ok {
		return nil, db.ErrTaskNotFound
	}
	return row.Clone(), nil
}

func (m *memStore) List(_ context.Context, f db.TaskFilter) ([]*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(); err != nil {
		return nil, err
	}
	out := []*models.Task{}
	for _, row := range m.rows {
		if row.OwnerID != f.OwnerID || row.DeletedAt != nil {
			continue
		}
		if (f.Status != "" && row.Status != f.Status) || (f.Priority != "" && row.Priority != f.Priority) {
			continue
		}
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memStore) Update(_ context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(); err != nil {
		return err
	}
	row, ok := m.live(task.OwnerID, task.ID)
	if !ok {
		return db.ErrTaskNotFound
	}
	next := task.Clone()
	next.CreatedAt = row.CreatedAt
	m.rows[task.ID] = next
	return nil
}

func (m *memStore) SoftDelete(_ context.Context, owner uuid.UUID, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.hit(); err != nil {
		return err
	}
	row, ok := m.live(owner, id)
	if !ok {
		return db.ErrTaskNotFound
	}
	row.DeletedAt = &at
	row.UpdatedAt = at
	row.Lifecycle = models.LifecycleDeleted
	return nil
}

// raw returns the stored row regardless of owner or lifecycle.
func (m *memStore) raw(id int64) *models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// deleteAfterRead soft-deletes each row right after handing it out, so the
// service's follow-up write finds it gone.
type deleteAfterRead struct {
	db.TaskRepositoryInterface
}

func (s deleteAfterRead) GetByID(ctx context.Context, owner uuid.UUID, id int64) (*models.Task, error) {
	task, err := s.TaskRepositoryInterface.GetByID(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if err := s.TaskRepositoryInterface.SoftDelete(ctx, owner, id, time.Now().UTC()); err != nil {
		return nil, err
	}
	return task, nil
}

// stepClock advances by one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sqliteStore(t *testing.T) (*db.TaskRepository, *sql.DB) {
	t.Helper()
	conn, err := idb.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	require.NoError(t, idb.Migrate(context.Background(), conn, "sqlite3"))
	t.Cleanup(func() { conn.Close() })
	return db.NewTaskRepository(conn), conn
}

var errBoom = errors.New("connection reset")

func principal() *Principal {
	return &Principal{ID: uuid.New(), Email: "user@example.com"}
}

func ptr[T any](v T) *T { return &v }
