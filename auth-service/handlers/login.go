package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	idb "github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/shared"
	"golang.org/x/crypto/bcrypt"
)

func (handler *Handler) Login(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		log.Printf("Invalid method for login: %s", request.Method)
		shared.SendError(writer, "Use POST method for login", http.StatusMethodNotAllowed)
		return
	}
	if !handler.allow(writer, request, "login") {
		return
	}

	var input credentials
	request.Body = http.MaxBytesReader(writer, request.Body, 1<<20)
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		log.Printf("Error decoding JSON: %v", err)
		shared.SendError(writer, "Bad JSON", http.StatusBadRequest)
		return
	}
	if !validateUserEmailAndPassword(input, writer) {
		return
	}

	ctx, cancel := context.WithTimeout(request.Context(), requestTimeout)
	defer cancel()

	user, err := handler.UserRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if !errors.Is(err, idb.ErrUserNotFound) {
			log.Printf("Error retrieving user by email %s: %v", input.Email, err)
			shared.SendError(writer, "Cannot log in", http.StatusInternalServerError)
			return
		}
		log.Printf("Login for unknown email: %s", input.Email)
		shared.SendError(writer, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	// Compare provided password with stored password hash
	if err := bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		log.Printf("Invalid password for email: %s", input.Email)
		shared.SendError(writer, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	tokenString, err := handler.Tokens.Issue(user.ID)
	if err != nil {
		log.Printf("Error generating token: %v", err)
		shared.SendError(writer, "Cannot create token", http.StatusInternalServerError)
		return
	}

	shared.SendJSON(writer, http.StatusOK, map[string]any{
		"user_email": user.Email,
		"user_id":    user.ID,
		"token":      tokenString,
	})
	log.Printf("User logged in: %s", input.Email)
}
