// Package lifecycle enforces the WAIT -> APPROVED | DENIED state machine and keeps
// the APPROVED stays of a unit pairwise non-overlapping.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/overlap"
	"rental-booking/internal/trigger"

	"go.uber.org/zap"
)

// ApprovedLister the one query the guard needs
type ApprovedLister interface {
	ListApproved(ctx context.Context, unitID string, endingAfter time.Time) ([]models.Request, error)
}

// Guard Before* handlers for requests
type Guard struct {
	requests ApprovedLister
	logger   *zap.Logger
}

func NewGuard(requests ApprovedLister, logger *zap.Logger) *Guard {
	return &Guard{requests: requests, logger: logger}
}

// Register attaches the guard to the request registry
func (g *Guard) Register(reg *trigger.Registry[models.Request, models.RequestUpdate]) {
	reg.On(trigger.BeforeCreate, "lifecycle.guard", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		return g.BeforeCreate(ctx, a.New)
	})
	reg.On(trigger.BeforeEdit, "lifecycle.guard", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		return g.BeforeEdit(ctx, a.Original, a.Update)
	})
}

// BeforeCreate rejects a candidate whose stay overlaps an APPROVED request on the same unit
func (g *Guard) BeforeCreate(ctx context.Context, candidate *models.Request) error {
	if candidate == nil {
		return fmt.Errorf("nil candidate request")
	}
	return g.checkOverlap(ctx, candidate)
}

// BeforeEdit rejects status changes on decided requests and approvals that would
// overlap another APPROVED request. Message-only edits pass.
func (g *Guard) BeforeEdit(ctx context.Context, original *models.Request, upd models.RequestUpdate) error {
	if original == nil {
		return fmt.Errorf("nil original request")
	}
	if upd.Status == nil {
		return nil
	}
	if original.Status != models.StatusWait {
		g.logger.Info("Refused status change on decided request",
			zap.String("request_id", original.ID),
			zap.String("status", string(original.Status)),
			zap.String("requested", string(*upd.Status)),
			zap.String("error_code", CodeInvalidTransition),
		)
		return NewInvalidTransitionError(string(original.Status))
	}
	if *upd.Status != models.StatusApproved {
		return nil
	}
	// dates are immutable after creation, so the stored range is the one to check
	return g.checkOverlap(ctx, original)
}

func (g *Guard) checkOverlap(ctx context.Context, req *models.Request) error {
	approved, err := g.requests.ListApproved(ctx, req.UnitID, req.CheckIn)
	if err != nil {
		return fmt.Errorf("failed to load approved requests: %w", err)
	}

	ranges := make([]overlap.Range, 0, len(approved))
	ids := make([]string, 0, len(approved))
	for i := range approved {
		if approved[i].ID == req.ID {
			continue
		}
		ranges = append(ranges, approved[i].Range())
		ids = append(ids, approved[i].ID)
	}

	if idx, found := overlap.FirstConflict(req.Range(), ranges); found {
		g.logger.Info("Refused overlapping request",
			zap.String("request_id", req.ID),
			zap.String("unit_id", req.UnitID),
			zap.String("conflicting_request_id", ids[idx]),
			zap.String("error_code", CodeOverlappingRequest),
		)
		return NewOverlapError(ids[idx])
	}
	return nil
}
