package tasks

import (
	"context"

	"github.com/google/uuid"
)

// Principal is the authenticated user on whose behalf an operation runs.
type Principal struct {
	ID    uuid.UUID
	Email string
}

// PrincipalResolver turns a request credential into a Principal.
// A credential that does not identify a live user yields (nil, nil);
// an error means the lookup itself failed.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, credential string) (*Principal, error)
}
