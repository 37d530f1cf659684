package main

import (
	"fmt"
	"os"

	"rental-booking/internal/models"
	"rental-booking/internal/report"
	"rental-booking/internal/repository"
	"rental-booking/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one booking reconciliation cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.openDB(); err != nil {
				return err
			}
			if err := a.openRedis(ctx); err != nil {
				return err
			}
			rec, err := a.reconciler()
			if err != nil {
				return err
			}

			// share the lease with running servers so a manual run never overlaps a scheduled one
			periodic := scheduler.NewPeriodic("booking-reconciler", a.cfg.Booking.Reconcile.Interval, rec.Run, a.logger).
				WithLock(scheduler.NewRedisLocker(a.redis), reconcileLockKey, a.cfg.Booking.Reconcile.LockTTL)
			if err := periodic.RunOnce(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reconciliation finished")
			return nil
		},
	}
}

func recountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recount",
		Short: "Recompute pending request counters of every unit and host from the requests table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.openDB(); err != nil {
				return err
			}
			n, err := a.units.RecountPending(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("Pending counters recomputed", zap.Int64("rows", n))
			fmt.Fprintf(cmd.OutOrStdout(), "recounted %d rows\n", n)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the booking tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.openDB(); err != nil {
				return err
			}
			if err := repository.Migrate(ctx, a.db); err != nil {
				return err
			}
			a.logger.Info("Schema is up to date")
			return nil
		},
	}
}

func exportRequestsCmd() *cobra.Command {
	var unitID string
	var status string
	var out string
	var limit int

	cmd := &cobra.Command{
		Use:   "export-requests",
		Short: "Write the reservation requests of a unit to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unitID == "" {
				return fmt.Errorf("--unit is required")
			}
			st := models.RequestStatus(status)
			if status != "" && !st.Valid() {
				return fmt.Errorf("invalid --status %q", status)
			}
			if out == "" {
				out = fmt.Sprintf("requests-%s.xlsx", unitID)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.openDB(); err != nil {
				return err
			}
			unit, err := a.units.GetUnit(ctx, unitID, "")
			if err != nil {
				return fmt.Errorf("failed to load unit %s: %w", unitID, err)
			}
			requests, err := a.requests.ListRequests(ctx, repository.RequestFilter{UnitID: unitID, Status: st}, limit, 0)
			if err != nil {
				return err
			}

			data, err := report.GenerateRequestsExport(unit, requests)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d requests to %s\n", len(requests), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&unitID, "unit", "", "Unit id")
	cmd.Flags().StringVar(&status, "status", "", "Only requests in this status (WAIT, APPROVED, DENIED)")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default requests-<unit>.xlsx)")
	cmd.Flags().IntVar(&limit, "limit", 1000, "Maximum number of requests")
	return cmd
}
