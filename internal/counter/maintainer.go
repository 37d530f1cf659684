package counter

import (
	"context"
	"errors"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/repository"
	"rental-booking/internal/trigger"

	"go.uber.org/zap"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 100 * time.Millisecond
)

// Maintainer keeps units.pending_requests_count and the host's
// users.pending_requests_count equal to the number of WAIT requests, one
// increment or decrement per lifecycle edge.
type Maintainer struct {
	store    repository.CounterStore
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

func NewMaintainer(store repository.CounterStore, logger *zap.Logger) *Maintainer {
	return &Maintainer{
		store:    store,
		logger:   logger,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// WithRetry overrides the retry policy for transient store errors
func (m *Maintainer) WithRetry(attempts int, backoff time.Duration) *Maintainer {
	if attempts < 1 {
		attempts = 1
	}
	m.attempts = attempts
	m.backoff = backoff
	return m
}

// Register attaches the maintainer to the After* events of the request registry
func (m *Maintainer) Register(reg *trigger.Registry[models.Request, models.RequestUpdate]) {
	reg.On(trigger.AfterCreated, "counter.created", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		return m.OnCreated(ctx, a.New)
	})
	reg.On(trigger.AfterEdited, "counter.resolved", func(ctx context.Context, a trigger.Args[models.Request, models.RequestUpdate]) error {
		if a.Original == nil || a.New == nil {
			return nil
		}
		// only the WAIT -> terminal edge moves the counters
		if a.Original.Status != models.StatusWait || !a.New.Status.Terminal() {
			return nil
		}
		return m.OnResolved(ctx, a.New)
	})
}

// OnCreated increments both counters
func (m *Maintainer) OnCreated(ctx context.Context, req *models.Request) error {
	return m.adjust(ctx, req, +1)
}

// OnResolved decrements both counters
func (m *Maintainer) OnResolved(ctx context.Context, req *models.Request) error {
	return m.adjust(ctx, req, -1)
}

func (m *Maintainer) adjust(ctx context.Context, req *models.Request, delta int) error {
	var err error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		var hostID string
		hostID, err = m.store.AdjustPendingCounts(ctx, req.UnitID, delta)
		if err == nil {
			m.logger.Debug("Adjusted pending counters",
				zap.String("request_id", req.ID),
				zap.String("unit_id", req.UnitID),
				zap.String("host_id", hostID),
				zap.Int("delta", delta),
			)
			return nil
		}
		if errors.Is(err, repository.ErrNotFound) || attempt == m.attempts {
			break
		}

		select {
		case <-time.After(m.backoff * time.Duration(attempt)):
			continue
		case <-ctx.Done():
			err = ctx.Err()
		}
		break
	}

	m.logger.Error("Failed to adjust pending counters",
		zap.String("request_id", req.ID),
		zap.String("unit_id", req.UnitID),
		zap.Int("delta", delta),
		zap.Error(err),
	)
	return err
}
