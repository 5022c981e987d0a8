// Package tasks holds the user-scoped query and mutation operations on tasks.
// Every operation takes the acting principal explicitly and never sees
// another owner's records or deleted ones.
package tasks

import (
	"errors"
	"time"

	"github.com/chepyr/taskmaster/tasks-service/db"
	"github.com/google/uuid"
)

type Service struct {
	store db.TaskRepositoryInterface
	now   func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store db.TaskRepositoryInterface, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ownerOf must run before anything else in an operation.
func ownerOf(p *Principal) (uuid.UUID, error) {
	if p == nil || p.ID == uuid.Nil {
		return uuid.Nil, ErrUnauthenticated
	}
	return p.ID, nil
}

// stamp returns the current time, nudged forward if needed so that it is
// strictly after prev.
func (s *Service) stamp(prev time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func translate(op string, err error) error {
	if errors.Is(err, db.ErrTaskNotFound) {
		return ErrNotFound
	}
	return storeFailure(op, err)
}
