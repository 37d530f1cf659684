package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/notification"
	"rental-booking/internal/overlap"
	"rental-booking/internal/repository"
)

// memStore an in-memory record store with the same conditional-write
// semantics as the Postgres repositories
type memStore struct {
	mu       sync.Mutex
	units    map[string]*models.Unit
	users    map[string]*models.User
	requests map[string]*models.Request

	// createHook runs inside CreateRequest before the conditional insert
	createHook func()
	// messageErr makes UpdateMessage fail
	messageErr error
}

func newMemStore() *memStore {
	return &memStore{
		units: map[string]*models.Unit{
			"U": {ID: "U", Title: "Sea view loft", CreatedBy: "host"},
		},
		users: map[string]*models.User{
			"host":   {ID: "host", Username: "marta", Email: "marta@example.com", AppLanguage: "es", ENotifications: true, EValidated: true},
			"guest1": {ID: "guest1", Username: "tom", Email: "tom@example.com", AppLanguage: "en", ENotifications: true, EValidated: true},
			"guest2": {ID: "guest2", Username: "ana", Email: "ana@example.com", AppLanguage: "en", ENotifications: true, EValidated: true},
		},
		requests: map[string]*models.Request{},
	}
}

func (s *memStore) seedApproved(id, unitID, guest string, in, out time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[id] = &models.Request{ID: id, UnitID: unitID, CheckIn: in, CheckOut: out, Status: models.StatusApproved, CreatedBy: guest}
}

func (s *memStore) approvedOverlap(unitID, excludeID string, stay overlap.Range) (string, bool) {
	for _, r := range s.sortedRequests() {
		if r.UnitID != unitID || r.ID == excludeID || r.Status != models.StatusApproved {
			continue
		}
		if overlap.Predicate.Match(r.Range(), stay) {
			return r.ID, true
		}
	}
	return "", false
}

func (s *memStore) sortedRequests() []*models.Request {
	out := make([]*models.Request, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckIn.Equal(out[j].CheckIn) {
			return out[i].CheckIn.Before(out[j].CheckIn)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memStore) GetRequest(ctx context.Context, id, version string) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) ListApproved(ctx context.Context, unitID string, endingAfter time.Time) ([]models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Request
	for _, r := range s.sortedRequests() {
		if r.UnitID == unitID && r.Status == models.StatusApproved && r.CheckOut.After(endingAfter) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) CreateRequest(ctx context.Context, req *models.Request) error {
	if s.createHook != nil {
		s.createHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.approvedOverlap(req.UnitID, req.ID, req.Range()); ok {
		return &repository.ConflictError{ConflictingID: id}
	}
	now := time.Now()
	req.Status = models.StatusWait
	req.CreatedAt, req.EditedAt = now, now
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id string, to models.RequestStatus) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.Status != models.StatusWait {
		return nil, repository.ErrStatusConflict
	}
	if to == models.StatusApproved {
		if cid, hit := s.approvedOverlap(r.UnitID, r.ID, r.Range()); hit {
			return nil, &repository.ConflictError{ConflictingID: cid}
		}
	}
	r.Status = to
	r.EditedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (s *memStore) UpdateMessage(ctx context.Context, id, message string) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messageErr != nil {
		return nil, s.messageErr
	}
	r, ok := s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.Message = message
	cp := *r
	return &cp, nil
}

func (s *memStore) ListRequests(ctx context.Context, f repository.RequestFilter, limit, offset int) ([]models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Request
	for _, r := range s.sortedRequests() {
		if f.UnitID != "" && r.UnitID != f.UnitID {
			continue
		}
		if f.CreatedBy != "" && r.CreatedBy != f.CreatedBy {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *memStore) GetUnit(ctx context.Context, id, version string) (*models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) ListUnitsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Unit
	for _, u := range s.units {
		if u.CreatedBy == ownerID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *memStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) AdjustPendingCounts(ctx context.Context, unitID string, delta int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return "", repository.ErrNotFound
	}
	u.PendingRequestsCount += delta
	s.users[u.CreatedBy].PendingRequestsCount += delta
	return u.CreatedBy, nil
}

func (s *memStore) RecountPending(ctx context.Context) (int64, error) { return 0, nil }

func (s *memStore) counts(unitID string) (unit, host int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.units[unitID]
	return u.PendingRequestsCount, s.users[u.CreatedBy].PendingRequestsCount
}

type memQueue struct {
	mu   sync.Mutex
	msgs []*notification.Message
}

func (q *memQueue) Enqueue(ctx context.Context, msg *notification.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}
