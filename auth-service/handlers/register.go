package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	idb "github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/shared"
	"github.com/chepyr/taskmaster/shared/models"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const requestTimeout = 5 * time.Second

func (handler *Handler) Register(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		log.Printf("Invalid method for register: %s", request.Method)
		shared.SendError(writer, "Use POST method", http.StatusMethodNotAllowed)
		return
	}
	if !handler.allow(writer, request, "register") {
		return
	}

	var input credentials
	request.Body = http.MaxBytesReader(writer, request.Body, 1<<20)
	if err := json.NewDecoder(request.Body).Decode(&input); err != nil {
		log.Printf("Error decoding JSON: %v", err)
		shared.SendError(writer, "Bad JSON", http.StatusBadRequest)
		return
	}
	input.Email = strings.TrimSpace(input.Email)
	if !validateUserEmailAndPassword(input, writer) {
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Error hashing password: %v", err)
		shared.SendError(writer, "Cannot hash password", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := context.WithTimeout(request.Context(), requestTimeout)
	defer cancel()

	if err := handler.UserRepo.Create(ctx, user); err != nil {
		if errors.Is(err, idb.ErrDuplicateEmail) {
			shared.SendError(writer, "Email already registered", http.StatusConflict)
			return
		}
		log.Printf("Error saving user %s: %v", user.Email, err)
		shared.SendError(writer, "Cannot save user", http.StatusInternalServerError)
		return
	}

	log.Printf("User registered: %s", user.Email)
	shared.SendJSON(writer, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
}
