package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental-booking/internal/cache"
	"rental-booking/internal/counter"
	"rental-booking/internal/events"
	"rental-booking/internal/lifecycle"
	"rental-booking/internal/models"
	"rental-booking/internal/notification"
	"rental-booking/internal/overlap"
	"rental-booking/internal/repository"
	"rental-booking/internal/trigger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrForbidden the caller does not own the unit or the request
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidRange check_out must be strictly after check_in
	ErrInvalidRange = errors.New("check_out must be after check_in")
	// ErrInvalidStatus unknown status value
	ErrInvalidStatus = errors.New("invalid request status")
)

// Deps collaborators of the booking service
type Deps struct {
	Requests  repository.RequestStore
	Units     repository.UnitStore
	Users     repository.UserStore
	Counters  repository.CounterStore
	UnitCache *cache.UnitCache
	Queue     notification.Queue
	Events    events.Publisher
	Logger    *zap.Logger
}

// BookingService runs request writes through the lifecycle pipeline:
// Before* triggers, the conditional write, then After* triggers.
type BookingService struct {
	requests repository.RequestStore
	units    repository.UnitStore
	cache    *cache.UnitCache
	registry *trigger.Registry[models.Request, models.RequestUpdate]
	tracer   trace.Tracer
	logger   *zap.Logger
}

// CreateRequestInput a guest's reservation request
type CreateRequestInput struct {
	UnitID   string
	Message  string
	CheckIn  time.Time
	CheckOut time.Time
}

// New wires the trigger table: guard on Before*, then counters, notifications,
// the change feed and cache invalidation on After*.
func New(d Deps) *BookingService {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.UnitCache == nil {
		d.UnitCache = cache.NewUnitCache(d.Units, nil, 0, d.Logger)
	}

	reg := trigger.NewRegistry[models.Request, models.RequestUpdate]("request", d.Logger)
	lifecycle.NewGuard(d.Requests, d.Logger).Register(reg)
	counter.NewMaintainer(d.Counters, d.Logger).Register(reg)
	notification.NewDispatcher(d.Queue, d.Units, d.Users, d.Logger).Register(reg)
	events.Register(reg, d.Events)

	s := &BookingService{
		requests: d.Requests,
		units:    d.Units,
		cache:    d.UnitCache,
		registry: reg,
		tracer:   otel.Tracer("rental-booking/service"),
		logger:   d.Logger,
	}
	invalidate := func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		if a.New != nil {
			s.cache.Invalidate(ctx, a.New.UnitID)
		}
		return nil
	}
	reg.On(trigger.AfterCreated, "cache.invalidate", invalidate)
	reg.On(trigger.AfterEdited, "cache.invalidate", invalidate)
	return s
}

// Registry exposes the trigger table, mainly for inspection in tests
func (s *BookingService) Registry() *trigger.Registry[models.Request, models.RequestUpdate] {
	return s.registry
}

func (s *BookingService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := lifecycle.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("error_code", code))
		}
	}
	span.End()
}

// CreateRequest submits a reservation request in WAIT
func (s *BookingService) CreateRequest(ctx context.Context, actorID string, in CreateRequestInput) (req *models.Request, err error) {
	ctx, span := s.startSpan(ctx, "BookingService.CreateRequest",
		attribute.String("unit_id", in.UnitID),
		attribute.String("actor_id", actorID),
	)
	defer func() { endSpan(span, err) }()

	stay := overlap.NewRange(in.CheckIn, in.CheckOut)
	if !stay.Valid() {
		return nil, ErrInvalidRange
	}
	if _, err := s.cache.Get(ctx, in.UnitID, "", cache.Hint{UseCache: true}); err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}

	req = &models.Request{
		ID:        uuid.NewString(),
		UnitID:    in.UnitID,
		Message:   strings.TrimSpace(in.Message),
		CheckIn:   stay.CheckIn,
		CheckOut:  stay.CheckOut,
		Status:    models.StatusWait,
		CreatedBy: actorID,
	}

	if err := s.registry.Fire(ctx, trigger.Args[models.Request, models.RequestUpdate]{
		Event: trigger.BeforeCreate,
		New:   req,
	}); err != nil {
		return nil, err
	}

	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return nil, lifecycle.FromStore(err)
	}

	s.logger.Info("Reservation request created",
		zap.String("request_id", req.ID),
		zap.String("unit_id", req.UnitID),
		zap.String("check_in", req.CheckIn.Format(time.DateOnly)),
		zap.String("check_out", req.CheckOut.Format(time.DateOnly)),
	)

	_ = s.registry.Fire(ctx, trigger.Args[models.Request, models.RequestUpdate]{
		Event: trigger.AfterCreated,
		New:   req,
	})
	return req, nil
}

// EditRequest applies upd to request id. Status changes are reserved for the
// unit's owner, message changes for the request's creator. When the status is
// written but the message is not, the decided request is returned with the error.
func (s *BookingService) EditRequest(ctx context.Context, actorID, id string, upd models.RequestUpdate) (updated *models.Request, err error) {
	ctx, span := s.startSpan(ctx, "BookingService.EditRequest",
		attribute.String("request_id", id),
		attribute.String("actor_id", actorID),
	)
	defer func() { endSpan(span, err) }()

	original, err := s.requests.GetRequest(ctx, id, "")
	if err != nil {
		return nil, err
	}

	if upd.Status != nil {
		if !upd.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		if err := s.authorizeOwner(ctx, actorID, original.UnitID); err != nil {
			return nil, err
		}
	}
	if upd.Message != nil && original.CreatedBy != actorID {
		return nil, ErrForbidden
	}

	if err := s.registry.Fire(ctx, trigger.Args[models.Request, models.RequestUpdate]{
		Event:    trigger.BeforeEdit,
		Original: original,
		Update:   upd,
	}); err != nil {
		return nil, err
	}

	updated = original
	decided := false
	if upd.Status != nil && upd.Status.Terminal() {
		updated, err = s.requests.UpdateStatus(ctx, id, *upd.Status)
		if err != nil {
			return nil, lifecycle.FromStore(err)
		}
		decided = true
		s.logger.Info("Reservation request decided",
			zap.String("request_id", id),
			zap.String("unit_id", updated.UnitID),
			zap.String("status", string(updated.Status)),
		)
	}

	// once the status is committed the After* side effects must run, even if
	// the message write below fails
	var msgErr error
	if upd.Message != nil {
		withMessage, err := s.requests.UpdateMessage(ctx, id, strings.TrimSpace(*upd.Message))
		switch {
		case err != nil && !decided:
			return nil, err
		case err != nil:
			msgErr = fmt.Errorf("status changed but message update failed: %w", err)
			s.logger.Error("Failed to update request message after decision",
				zap.String("request_id", id),
				zap.String("status", string(updated.Status)),
				zap.Error(err),
			)
		default:
			updated = withMessage
		}
	}

	_ = s.registry.Fire(ctx, trigger.Args[models.Request, models.RequestUpdate]{
		Event:    trigger.AfterEdited,
		Original: original,
		Update:   upd,
		New:      updated,
	})
	if msgErr != nil {
		return updated, msgErr
	}
	return updated, nil
}

// DecideRequest approves or denies a WAIT request
func (s *BookingService) DecideRequest(ctx context.Context, actorID, id string, status models.RequestStatus) (*models.Request, error) {
	if !status.Terminal() {
		return nil, ErrInvalidStatus
	}
	return s.EditRequest(ctx, actorID, id, models.RequestUpdate{Status: &status})
}

func (s *BookingService) authorizeOwner(ctx context.Context, actorID, unitID string) error {
	unit, err := s.cache.Get(ctx, unitID, "", cache.Hint{UseCache: true})
	if err != nil {
		return fmt.Errorf("failed to load unit: %w", err)
	}
	if unit.CreatedBy != actorID {
		return ErrForbidden
	}
	return nil
}

// ListMyRequests the caller's own reservations, optionally by status
func (s *BookingService) ListMyRequests(ctx context.Context, actorID string, status models.RequestStatus, limit, offset int) ([]models.Request, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.requests.ListRequests(ctx, repository.RequestFilter{CreatedBy: actorID, Status: status}, limit, offset)
}

// ListUnitRequests requests against a unit, visible to its owner only
func (s *BookingService) ListUnitRequests(ctx context.Context, actorID, unitID string, status models.RequestStatus, limit, offset int) ([]models.Request, error) {
	if status != "" && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if err := s.authorizeOwner(ctx, actorID, unitID); err != nil {
		return nil, err
	}
	return s.requests.ListRequests(ctx, repository.RequestFilter{UnitID: unitID, Status: status}, limit, offset)
}

// ListHostUnits the caller's units with their pending counters
func (s *BookingService) ListHostUnits(ctx context.Context, actorID string, limit, offset int) ([]models.Unit, error) {
	return s.units.ListUnitsByOwner(ctx, actorID, limit, offset)
}

// UnavailableDays days in [from, to) already taken by APPROVED stays on unitID
func (s *BookingService) UnavailableDays(ctx context.Context, unitID string, from, to time.Time) ([]time.Time, error) {
	window := overlap.NewRange(from, to)
	if !window.Valid() {
		return nil, ErrInvalidRange
	}
	approved, err := s.requests.ListApproved(ctx, unitID, window.CheckIn)
	if err != nil {
		return nil, fmt.Errorf("failed to load approved requests: %w", err)
	}
	taken := make([]overlap.Range, 0, len(approved))
	for i := range approved {
		taken = append(taken, approved[i].Range())
	}
	return overlap.BlockedDays(window.CheckIn, window.CheckOut, taken), nil
}
