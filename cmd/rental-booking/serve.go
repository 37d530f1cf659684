package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"rental-booking/internal/cache"
	"rental-booking/internal/notification"
	"rental-booking/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const reconcileLockKey = "rental:lock:reconcile"

func serveCmd() *cobra.Command {
	var noWorker bool
	var noReconciler bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hourly booking reconciler and the notification worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			log := a.logger

			if err := a.openDB(); err != nil {
				return err
			}
			if err := a.openRedis(ctx); err != nil {
				return err
			}

			log.Info("Starting rental-booking service",
				zap.Bool("reconciler", !noReconciler),
				zap.Bool("notification_worker", !noWorker),
			)

			var wg sync.WaitGroup
			errChan := make(chan error, 2)
			run := func(name string, fn func(context.Context) error) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := fn(ctx); err != nil {
						log.Error("Component stopped with error", zap.String("component", name), zap.Error(err))
						errChan <- err
					}
				}()
			}

			if !noReconciler {
				rec, err := a.reconciler()
				if err != nil {
					return err
				}
				periodic := scheduler.NewPeriodic("booking-reconciler", a.cfg.Booking.Reconcile.Interval, rec.Run, log).
					WithLock(scheduler.NewRedisLocker(a.redis), reconcileLockKey, a.cfg.Booking.Reconcile.LockTTL)
				run("reconciler", periodic.Start)
			}

			if !noWorker {
				q, err := a.notificationQueue(true)
				if err != nil {
					return err
				}
				mailer := a.cfg.Notification.Mailer
				sender := notification.NewHTTPSender(mailer.BaseURL, mailer.APIKey, mailer.Timeout, log)
				worker := notification.NewWorker(q.Source, a.users, cache.NewRedisKVStore(a.redis), sender,
					a.cfg.Notification.DedupeTTL, log)
				run("notification-worker", worker.Run)
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			var runErr error
			select {
			case sig := <-sigChan:
				log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
			case runErr = <-errChan:
			case <-ctx.Done():
			}
			cancel()
			wg.Wait()

			log.Info("Service stopped")
			return runErr
		},
	}

	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "Do not drain the notification queue")
	cmd.Flags().BoolVar(&noReconciler, "no-reconciler", false, "Do not run the booking reconciler")
	return cmd
}
