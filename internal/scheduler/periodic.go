// Package scheduler runs a job on a fixed interval without ever letting two
// runs overlap, inside one process or across replicas sharing a Redis.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSkipped a run was not started because another one holds the job
var ErrSkipped = errors.New("previous run still in progress")

// Job one cycle of work
type Job func(ctx context.Context) error

// Periodic single-flight runner
type Periodic struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger

	locker  Locker
	lockKey string
	lockTTL time.Duration

	running sync.Mutex
}

func NewPeriodic(name string, interval time.Duration, job Job, logger *zap.Logger) *Periodic {
	return &Periodic{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger,
	}
}

// WithLock additionally requires a lease from locker for each run. ttl should
// exceed the longest expected run.
func (p *Periodic) WithLock(locker Locker, key string, ttl time.Duration) *Periodic {
	p.locker = locker
	p.lockKey = key
	p.lockTTL = ttl
	return p
}

// Start runs the job now and then on every tick until ctx is done
func (p *Periodic) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting periodic job",
		zap.String("job", p.name),
		zap.Duration("interval", p.interval),
	)

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	err := p.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSkipped):
		p.logger.Info("Skipping periodic job, previous run still active", zap.String("job", p.name))
	case err != nil:
		p.logger.Error("Periodic job failed", zap.String("job", p.name), zap.Error(err))
	}
}

// RunOnce runs the job unless a run is already active here or, with a lock,
// on another replica. Returns ErrSkipped in that case.
func (p *Periodic) RunOnce(ctx context.Context) error {
	if !p.running.TryLock() {
		return ErrSkipped
	}
	defer p.running.Unlock()

	if p.locker != nil {
		release, ok, err := p.locker.TryLock(ctx, p.lockKey, p.lockTTL)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSkipped
		}
		defer func() {
			// release even when the job's ctx was cancelled
			if err := release(context.Background()); err != nil {
				p.logger.Warn("Failed to release job lock", zap.String("job", p.name), zap.Error(err))
			}
		}()
	}

	start := time.Now()
	err := p.job(ctx)
	p.logger.Debug("Periodic job finished",
		zap.String("job", p.name),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	return err
}
