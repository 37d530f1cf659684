package notification

import (
	"context"
	"sync"

	"rental-booking/internal/models"
	"rental-booking/internal/repository"
)

type memQueue struct {
	mu   sync.Mutex
	msgs []*Message
	err  error
}

func (q *memQueue) Enqueue(ctx context.Context, msg *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.msgs = append(q.msgs, msg)
	return nil
}

type memDirectory struct {
	units map[string]*models.Unit
	users map[string]*models.User
}

func (d *memDirectory) GetUnit(ctx context.Context, id, version string) (*models.Unit, error) {
	if u, ok := d.units[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (d *memDirectory) ListUnitsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Unit, error) {
	return nil, nil
}

func (d *memDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func newDirectory() *memDirectory {
	return &memDirectory{
		units: map[string]*models.Unit{
			"unit-1": {ID: "unit-1", Title: "Sea view loft", CreatedBy: "host-1"},
		},
		users: map[string]*models.User{
			"host-1":  {ID: "host-1", Username: "marta", Email: "marta@example.com", AppLanguage: "es", ENotifications: true, EValidated: true},
			"guest-1": {ID: "guest-1", Username: "tom", Email: "tom@example.com", AppLanguage: "en-GB", ENotifications: true, EValidated: true},
		},
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Envelope
	err  error
}

func (s *recordingSender) Send(ctx context.Context, env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, env)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}
