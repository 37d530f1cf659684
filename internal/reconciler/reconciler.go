// Package reconciler aligns the denormalized booked flags of units with the
// APPROVED requests whose stay contains today.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rental-booking/internal/events"
	"rental-booking/internal/lifecycle"
	"rental-booking/internal/repository"

	"go.uber.org/zap"
)

// Invalidator drops cached unit snapshots
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...string)
}

// Result unit ids changed by one cycle
type Result struct {
	Cleared []string
	Marked  []string
}

// Reconciler BookingReconciler
type Reconciler struct {
	store  repository.BookingStore
	cache  Invalidator
	events events.Publisher
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// New loc defines which calendar day "today" is; nil means UTC
func New(store repository.BookingStore, cache Invalidator, pub events.Publisher, loc *time.Location, logger *zap.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Reconciler{
		store:  store,
		cache:  cache,
		events: pub,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// Today the current calendar day in loc, as a UTC midnight date
func (r *Reconciler) Today() time.Time {
	y, m, d := r.now().In(r.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Run is the scheduler entry point
func (r *Reconciler) Run(ctx context.Context) error {
	_, err := r.RunCycle(ctx)
	return err
}

// RunCycle clears expired bookings, then marks units whose approved stay has
// begun. The two statements are independent: a failed clear does not stop the
// mark step, and a failed cycle is simply repeated on the next tick.
func (r *Reconciler) RunCycle(ctx context.Context) (Result, error) {
	today := r.Today()
	var res Result
	var errs []error

	cleared, err := r.store.ClearExpiredBookings(ctx, today)
	if err != nil {
		errs = append(errs, fmt.Errorf("clear expired bookings: %w", err))
	} else {
		res.Cleared = cleared
	}

	marked, err := r.store.MarkActiveBookings(ctx, today)
	if err != nil {
		errs = append(errs, fmt.Errorf("mark active bookings: %w", err))
	} else {
		res.Marked = marked
	}

	r.afterCycle(ctx, res)

	if len(errs) > 0 {
		err := errors.Join(errs...)
		r.logger.Error("Booking reconciliation cycle failed",
			zap.Time("today", today),
			zap.Int("cleared", len(res.Cleared)),
			zap.Int("marked", len(res.Marked)),
			zap.String("error_code", lifecycle.CodeReconcilerCycleFailure),
			zap.Error(err),
		)
		return res, err
	}

	r.logger.Info("Booking reconciliation finished",
		zap.Time("today", today),
		zap.Int("cleared", len(res.Cleared)),
		zap.Int("marked", len(res.Marked)),
	)
	return res, nil
}

func (r *Reconciler) afterCycle(ctx context.Context, res Result) {
	changed := make([]string, 0, len(res.Cleared)+len(res.Marked))
	changed = append(changed, res.Cleared...)
	changed = append(changed, res.Marked...)
	if len(changed) == 0 {
		return
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, changed...)
	}

	publish := func(kind events.Kind, ids []string) {
		for _, id := range ids {
			if err := r.events.Publish(ctx, events.Event{Kind: kind, UnitID: id}); err != nil {
				r.logger.Warn("Failed to publish unit event",
					zap.String("unit_id", id),
					zap.String("kind", string(kind)),
					zap.Error(err),
				)
			}
		}
	}
	publish(events.UnitReleased, res.Cleared)
	publish(events.UnitBooked, res.Marked)
}
