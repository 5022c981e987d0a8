package handlers

import (
	"log"
	"net/http"
	"regexp"

	idb "github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/internal/ratelimit"
	"github.com/chepyr/taskmaster/shared"
)

type Handler struct {
	UserRepo    idb.UserRepositoryInterface
	RateLimiter ratelimit.Limiter
	Tokens      *TokenIssuer
	// Peers whose X-Forwarded-For header names the client.
	TrustedProxies []string
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

const minPasswordLength = 4

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func (handler *Handler) allow(writer http.ResponseWriter, request *http.Request, action string) bool {
	clientIP := shared.ClientIP(request, handler.TrustedProxies)
	if handler.RateLimiter != nil && !handler.RateLimiter.Allow(request.Context(), clientIP) {
		log.Printf("Rate limit exceeded for IP: %s", clientIP)
		shared.SendError(writer, "Too many "+action+" attempts. Please try again later.", http.StatusTooManyRequests)
		return false
	}
	return true
}

func validateUserEmailAndPassword(input credentials, writer http.ResponseWriter) bool {
	if !isValidEmail(input.Email) {
		log.Printf("Invalid email format")
		shared.SendError(writer, "Invalid email", http.StatusBadRequest)
		return false
	}
	if len(input.Password) < minPasswordLength {
		log.Printf("Password too short")
		shared.SendError(writer, "Password must be at least 4 characters long", http.StatusBadRequest)
		return false
	}
	return true
}

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}
