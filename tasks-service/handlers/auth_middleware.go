package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/chepyr/taskmaster/shared"
	"github.com/chepyr/taskmaster/tasks-service/tasks"
)

type contextKey struct{}

var principalKey contextKey

/*
Rate limit by client IP, resolve the bearer token to a principal
and put the principal into the request context
*/
func (h *Handler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.RateLimiter != nil && !h.RateLimiter.Allow(r.Context(), shared.ClientIP(r, h.TrustedProxies)) {
			shared.SendError(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.SendError(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}
		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || tokenString == "" {
			shared.SendError(w, "Invalid Authorization header", http.StatusUnauthorized)
			return
		}

		principal, err := h.Resolver.ResolvePrincipal(r.Context(), tokenString)
		if err != nil {
			log.Printf("Failed to resolve principal: %v", err)
			shared.SendError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if principal == nil {
			shared.SendError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next(w, r.WithContext(ctx))
	}
}

// principalFrom returns nil when the middleware did not run; the tasks
// service turns that into ErrUnauthenticated.
func principalFrom(ctx context.Context) *tasks.Principal {
	p, _ := ctx.Value(principalKey).(*tasks.Principal)
	return p
}
