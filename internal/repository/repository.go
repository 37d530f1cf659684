package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-booking/internal/models"
)

var (
	// ErrNotFound the row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict the request already left WAIT when the conditional update ran
	ErrStatusConflict = errors.New("request status already decided")
)

// ConflictError a conditional write was refused because an APPROVED request
// on the same unit overlaps the stay.
type ConflictError struct {
	ConflictingID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("overlaps approved request %s", e.ConflictingID)
}

// RequestFilter narrows ListRequests; empty fields are ignored
type RequestFilter struct {
	UnitID    string
	CreatedBy string
	Status    models.RequestStatus
}

// RequestStore reservation request persistence
type RequestStore interface {
	GetRequest(ctx context.Context, id, version string) (*models.Request, error)
	// ListApproved returns APPROVED requests of unitID whose check_out is after endingAfter
	ListApproved(ctx context.Context, unitID string, endingAfter time.Time) ([]models.Request, error)
	// CreateRequest inserts req in WAIT unless an APPROVED overlap exists (*ConflictError)
	CreateRequest(ctx context.Context, req *models.Request) error
	// UpdateStatus moves a WAIT request to a terminal state. Returns ErrStatusConflict when
	// the request is no longer WAIT and *ConflictError when approving would overlap.
	UpdateStatus(ctx context.Context, id string, to models.RequestStatus) (*models.Request, error)
	UpdateMessage(ctx context.Context, id, message string) (*models.Request, error)
	ListRequests(ctx context.Context, filter RequestFilter, limit, offset int) ([]models.Request, error)
}

// UnitStore unit persistence
type UnitStore interface {
	GetUnit(ctx context.Context, id, version string) (*models.Unit, error)
	ListUnitsByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Unit, error)
}

// CounterStore server-side arithmetic on the denormalized pending counters
type CounterStore interface {
	// AdjustPendingCounts adds delta to the unit's and its host's pending_requests_count
	// in one statement and returns the host id.
	AdjustPendingCounts(ctx context.Context, unitID string, delta int) (string, error)
	RecountPending(ctx context.Context) (int64, error)
}

// BookingStore batch updates used by the reconciler
type BookingStore interface {
	// ClearExpiredBookings resets units whose booked_until <= today; returns their ids
	ClearExpiredBookings(ctx context.Context, today time.Time) ([]string, error)
	// MarkActiveBookings flags units with an APPROVED stay containing today; returns their ids
	MarkActiveBookings(ctx context.Context, today time.Time) ([]string, error)
}

// UserStore user lookups
type UserStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}
