package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	idb "github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/shared/models"
	"github.com/chepyr/taskmaster/tasks-service/auth"
	tdb "github.com/chepyr/taskmaster/tasks-service/db"
	"github.com/chepyr/taskmaster/tasks-service/tasks"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type testServer struct {
	mux   *http.ServeMux
	db    *sql.DB
	users *idb.UserRepository
}

func setupHTTP(t *testing.T) *testServer {
	t.Helper()

	dbx, err := idb.Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := idb.Migrate(context.Background(), dbx, "sqlite3"); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })

	users := idb.NewUserRepository(dbx)
	h := &Handler{
		Tasks:    tasks.NewService(tdb.NewTaskRepository(dbx)),
		Resolver: auth.NewJWTResolver(testSecret, users),
	}
	mux := http.NewServeMux()
	h.Routes(mux)

	return &testServer{mux: mux, db: dbx, users: users}
}

// newUser registers a user and returns a bearer header for them.
func (s *testServer) newUser(t *testing.T) string {
	t.Helper()
	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return bearerForUser(t, user.ID.String())
}

func bearerForUser(t *testing.T, userID string) string {
	t.Helper()
	return "Bearer " + signToken(t, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	})
}

func (s *testServer) do(t *testing.T, method, url, authz, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

type taskJSON struct {
	ID          int64    `json:"id"`
	OwnerID     string   `json:"owner_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	Status      string   `json:"status"`
	Completed   bool     `json:"completed"`
	Tags        []string `json:"tags"`
	DueDate     *string  `json:"due_date"`
	DeletedAt   *string  `json:"deleted_at"`
}

func decodeTask(t *testing.T, rec *httptest.ResponseRecorder) taskJSON {
	t.Helper()
	var task taskJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("decode task: %v body=%s", err, rec.Body.String())
	}
	return task
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []taskJSON {
	t.Helper()
	var list []taskJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v body=%s", err, rec.Body.String())
	}
	return list
}

func TestTasks_ShipRelease(t *testing.T) {
	s := setupHTTP(t)
	authz := s.newUser(t)

	// 1) create
	rec := s.do(t, http.MethodPost, "/tasks", authz, `{"title":"Ship release","priority":"high"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /tasks status=%d body=%s", rec.Code, rec.Body.String())
	}
	created := decodeTask(t, rec)
	if created.Status != "todo" || created.Completed || created.Priority != "high" {
		t.Fatalf("unexpected created task: %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != fmt.Sprintf("/tasks/%d", created.ID) {
		t.Fatalf("Location = %q", loc)
	}
	taskURL := fmt.Sprintf("/tasks/%d", created.ID)

	// 2) complete
	rec = s.do(t, http.MethodPatch, taskURL, authz, `{"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PATCH status=%d body=%s", rec.Code, rec.Body.String())
	}
	updated := decodeTask(t, rec)
	if updated.Status != "completed" || !updated.Completed || updated.Title != "Ship release" {
		t.Fatalf("unexpected updated task: %+v", updated)
	}

	// 3) delete returns the snapshot
	rec = s.do(t, http.MethodDelete, taskURL, authz, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status=%d body=%s", rec.Code, rec.Body.String())
	}
	deleted := decodeTask(t, rec)
	if deleted.Status != "completed" || deleted.Title != "Ship release" || deleted.DeletedAt == nil {
		t.Fatalf("unexpected delete snapshot: %+v", deleted)
	}

	// 4) gone
	if rec = s.do(t, http.MethodGet, taskURL, authz, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("GET after delete status=%d", rec.Code)
	}
	if rec = s.do(t, http.MethodDelete, taskURL, authz, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status=%d", rec.Code)
	}
}

func TestTasks_CreateIgnoresOwnerInBody(t *testing.T) {
	s := setupHTTP(t)
	authz := s.newUser(t)
	other := uuid.NewString()

	body := `{"title":"mine","owner_id":"` + other + `","id":999,"tags":["a"," b ",""],"due_date":"2025-12-31T10:00:00Z"}`
	rec := s.do(t, http.MethodPost, "/tasks", authz, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	task := decodeTask(t, rec)
	if task.OwnerID == other || task.ID == 999 {
		t.Fatalf("client-supplied identity leaked into task: %+v", task)
	}
	if len(task.Tags) != 2 || task.Tags[0] != "a" || task.Tags[1] != "b" {
		t.Fatalf("tags = %v", task.Tags)
	}
	if task.DueDate == nil || !strings.HasPrefix(*task.DueDate, "2025-12-31T10:00:00") {
		t.Fatalf("due_date = %v", task.DueDate)
	}
}

func TestTasks_LegacyEncodedTags(t *testing.T) {
	s := setupHTTP(t)
	authz := s.newUser(t)

	rec := s.do(t, http.MethodPost, "/tasks", authz, `{"title":"x","tags":"[\"work\",\"home\"]"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	task := decodeTask(t, rec)
	if len(task.Tags) != 2 || task.Tags[0] != "work" || task.Tags[1] != "home" {
		t.Fatalf("tags = %v", task.Tags)
	}

	rec = s.do(t, http.MethodPost, "/tasks", authz, `{"title":"x","tags":"not json"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tags status=%d", rec.Code)
	}
}

func TestTasks_CreateValidation(t *testing.T) {
	s := setupHTTP(t)
	authz := s.newUser(t)

	bodies := []string{
		`{"title":"   "}`,
		`{"description":"no title"}`,
		`{"title":"x","priority":"urgent"}`,
		`{"title":"x","status":"done"}`,
		`{"title":"x","status":"todo","completed":true}`,
		`{"title":"x","due_date":"tomorrow"}`,
		`{"title":`,
	}
	for _, body := range bodies {
		if rec := s.do(t, http.MethodPost, "/tasks", authz, body); rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s status=%d, want 400", body, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(`{"title":"x"}`))
	req.Header.Set("Authorization", authz)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("non-JSON content type status=%d", rec.Code)
	}
}

func TestTasks_UpdateMergesAndClearsDueDate(t *testing.T) {
	s := setupHTTP(t)
	authz := s.newUser(t)

	rec := s.do(t, http.MethodPost, "/tasks", authz,
		`{"title":"plan","description":"q3","tags":["a"],"due_date":"2025-09-30T17:00:00Z"}`)
	created := decodeTask(t, rec)
	url := fmt.Sprintf("/tasks/%d", created.ID)

	rec = s.do(t, http.MethodPut, url, authz, `{"due_date":"","priority":"low"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status=%d body=%s", rec.Code, rec.Body.String())
	}
	updated := decodeTask(t, rec)
	if updated.DueDate != nil || updated.Priority != "low" {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if updated.Title != "plan" || updated.Description != "q3" || len(updated.Tags) != 1 {
		t.Fatalf("untouched fields changed: %+v", updated)
	}

	rec = s.do(t, http.MethodPatch, url, authz, `{"completed":true}`)
	if got := decodeTask(t, rec); got.Status != "completed" || !got.Completed {
		t.Fatalf("completed flag not folded into status: %+v", got)
	}
	rec = s.do(t, http.MethodPatch, url, authz, `{"completed":false}`)
	if got := decodeTask(t, rec); got.Status != "todo" || got.Completed {
		t.Fatalf("uncompleting did not reopen: %+v", got)
	}
}

// userB asks for userA's task: 404, same as a missing id
func TestTask_ByID_ForeignIsNotFound(t *testing.T) {
	s := setupHTTP(t)
	authA := s.newUser(t)
	authB := s.newUser(t)

	created := decodeTask(t, s.do(t, http.MethodPost, "/tasks", authA, `{"title":"Task 1"}`))
	url := fmt.Sprintf("/tasks/%d", created.ID)
	missing := fmt.Sprintf("/tasks/%d", created.ID+1000)

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPut, `{"title":"updated title"}`},
		{http.MethodDelete, ""},
	} {
		foreign := s.do(t, tc.method, url, authB, tc.body)
		absent := s.do(t, tc.method, missing, authA, tc.body)
		if foreign.Code != http.StatusNotFound || absent.Code != http.StatusNotFound {
			t.Fatalf("%s: foreign=%d missing=%d, want 404", tc.method, foreign.Code, absent.Code)
		}
		if foreign.Body.String() != absent.Body.String() {
			t.Fatalf("%s: foreign body %q differs from missing body %q", tc.method, foreign.Body, absent.Body)
		}
	}

	got := decodeTask(t, s.do(t, http.MethodGet, url, authA, ""))
	if got.Title != "Task 1" {
		t.Fatalf("owner's task changed: %+v", got)
	}
}

func TestTasks_ListsAreScopedAndFiltered(t *testing.T) {
	s := setupHTTP(t)
	authA := s.newUser(t)
	authB := s.newUser(t)

	s.do(t, http.MethodPost, "/tasks", authA, `{"title":"a1","priority":"high"}`)
	s.do(t, http.MethodPost, "/tasks", authA, `{"title":"a2","status":"in_progress"}`)
	s.do(t, http.MethodPost, "/tasks", authB, `{"title":"b1","priority":"high"}`)

	list := decodeList(t, s.do(t, http.MethodGet, "/tasks", authA, ""))
	if len(list) != 2 || list[0].Title != "a2" || list[1].Title != "a1" {
		t.Fatalf("GET /tasks = %+v", list)
	}

	list = decodeList(t, s.do(t, http.MethodGet, "/tasks/priority/high", authA, ""))
	if len(list) != 1 || list[0].Title != "a1" {
		t.Fatalf("GET /tasks/priority/high = %+v", list)
	}

	list = decodeList(t, s.do(t, http.MethodGet, "/tasks/status/in_progress", authA, ""))
	if len(list) != 1 || list[0].Title != "a2" {
		t.Fatalf("GET /tasks/status/in_progress = %+v", list)
	}

	rec := s.do(t, http.MethodGet, "/tasks/status/completed", authB, "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("empty list: status=%d body=%s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, http.MethodGet, "/tasks/status/bogus", authA, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus status=%d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/tasks/priority/urgent", authA, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus priority=%d, want 400", rec.Code)
	}
}

func TestTasks_DeletedHiddenFromEveryRead(t *testing.T) {
	s := setupHTTP(t)
	authz := s.newUser(t)

	created := decodeTask(t, s.do(t, http.MethodPost, "/tasks", authz, `{"title":"gone","priority":"low"}`))
	s.do(t, http.MethodDelete, fmt.Sprintf("/tasks/%d", created.ID), authz, "")

	for _, url := range []string{"/tasks", "/tasks/status/todo", "/tasks/priority/low"} {
		if list := decodeList(t, s.do(t, http.MethodGet, url, authz, "")); len(list) != 0 {
			t.Errorf("GET %s still shows deleted task: %+v", url, list)
		}
	}

	var deletedAt sql.NullTime
	if err := s.db.QueryRow(`SELECT deleted_at FROM tasks WHERE id = $1`, created.ID).Scan(&deletedAt); err != nil {
		t.Fatalf("row should still exist: %v", err)
	}
	if !deletedAt.Valid {
		t.Fatal("deleted_at not set")
	}
}

func TestTasks_UnknownUserTokenRejected(t *testing.T) {
	s := setupHTTP(t)
	id := uuid.New()
	authz := bearerForUser(t, id.String())

	if rec := s.do(t, http.MethodGet, "/tasks", authz, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("token for unknown user status=%d, want 401", rec.Code)
	}
}

// no Authorization header -> 401 Unauthorized on every route
func TestTasks_Unauthorized(t *testing.T) {
	s := setupHTTP(t)

	endpoints := []struct {
		method string
		url    string
		body   string
	}{
		{method: http.MethodGet, url: "/tasks"},
		{method: http.MethodGet, url: "/tasks/1"},
		{method: http.MethodPost, url: "/tasks", body: `{"title":"x"}`},
		{method: http.MethodPut, url: "/tasks/1", body: `{"title":"x"}`},
		{method: http.MethodDelete, url: "/tasks/1"},
		{method: http.MethodGet, url: "/tasks/status/todo"},
		{method: http.MethodGet, url: "/tasks/priority/high"},
	}
	for _, ep := range endpoints {
		if rec := s.do(t, ep.method, ep.url, "", ep.body); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: want 401, got %d", ep.method, ep.url, rec.Code)
		}
	}
}

func TestTasks_BadIDAndMethod(t *testing.T) {
	s := setupHTTP(t)
	authz := s.newUser(t)

	if rec := s.do(t, http.MethodGet, "/tasks/abc", authz, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id status=%d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/tasks/0", authz, ""); rec.Code != http.StatusBadRequest {
		t.Errorf("zero id status=%d", rec.Code)
	}
	if rec := s.do(t, http.MethodDelete, "/tasks", authz, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /tasks status=%d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/tasks/status/todo", authz, `{}`); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /tasks/status status=%d", rec.Code)
	}
}

func TestSendServiceError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	cases := map[error]int{
		tasks.ErrUnauthenticated:                        http.StatusUnauthorized,
		fmt.Errorf("%w: bad", tasks.ErrInvalidArgument): http.StatusBadRequest,
		tasks.ErrNotFound:                               http.StatusNotFound,
		fmt.Errorf("%w: boom", tasks.ErrStoreFailure):   http.StatusInternalServerError,
	}
	for err, want := range cases {
		rec := httptest.NewRecorder()
		sendServiceError(rec, req, err)
		if rec.Code != want {
			t.Errorf("%v: status=%d, want %d", err, rec.Code, want)
		}
	}
}
