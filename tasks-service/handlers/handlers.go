package handlers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/chepyr/taskmaster/internal/ratelimit"
	"github.com/chepyr/taskmaster/shared"
	"github.com/chepyr/taskmaster/tasks-service/tasks"
)

const (
	requestTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20 // 1MB
)

type Handler struct {
	Tasks       *tasks.Service
	Resolver    tasks.PrincipalResolver
	RateLimiter ratelimit.Limiter
	// Peers whose X-Forwarded-For header names the client.
	TrustedProxies []string
}

// Routes registers every tasks endpoint behind the auth middleware.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/tasks", h.AuthMiddleware(h.HandleTasks))
	mux.HandleFunc("/tasks/", h.AuthMiddleware(h.HandleTaskByID))
	mux.HandleFunc("/tasks/status/", h.AuthMiddleware(h.HandleTasksByStatus))
	mux.HandleFunc("/tasks/priority/", h.AuthMiddleware(h.HandleTasksByPriority))
}

// sendServiceError maps the tasks error taxonomy onto HTTP. Only failures
// the caller cannot fix are logged.
func sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tasks.ErrUnauthenticated):
		shared.SendError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, tasks.ErrInvalidArgument):
		shared.SendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tasks.ErrNotFound):
		shared.SendError(w, "Task not found", http.StatusNotFound)
	default:
		log.Printf("%s %s failed: %v", r.Method, r.URL.Path, err)
		shared.SendError(w, "Internal server error", http.StatusInternalServerError)
	}
}
