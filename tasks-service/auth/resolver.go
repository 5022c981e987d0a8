// Package auth resolves bearer tokens issued by auth-service into task
// principals.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/chepyr/taskmaster/internal/db"
	"github.com/chepyr/taskmaster/shared/models"
	"github.com/chepyr/taskmaster/tasks-service/tasks"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserLookup is the part of db.UserRepositoryInterface the resolver needs.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// JWTResolver accepts HS256 tokens with a uuid "sub" and an "exp". When Users
// is set the subject must also be a live user.
type JWTResolver struct {
	secret []byte
	users  UserLookup
	parser *jwt.Parser
}

func NewJWTResolver(secret string, users UserLookup) *JWTResolver {
	return &JWTResolver{
		secret: []byte(secret),
		users:  users,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (r *JWTResolver) ResolvePrincipal(ctx context.Context, credential string) (*tasks.Principal, error) {
	if credential == "" {
		return nil, nil
	}

	claims := jwt.RegisteredClaims{}
	token, err := r.parser.ParseWithClaims(credential, &claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return nil, nil
	}

	principal := &tasks.Principal{ID: id}
	if r.users == nil {
		return principal, nil
	}

	user, err := r.users.GetByID(ctx, id)
	if errors.Is(err, db.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", id, err)
	}
	principal.Email = user.Email
	return principal, nil
}
