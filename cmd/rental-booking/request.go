package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"rental-booking/internal/models"
	"rental-booking/internal/service"

	"github.com/spf13/cobra"
)

var outputJSON bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output JSON")
}

func requestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Create, decide and list reservation requests as a given user",
	}
	cmd.AddCommand(requestCreateCmd())
	cmd.AddCommand(requestDecideCmd())
	cmd.AddCommand(requestMessageCmd())
	cmd.AddCommand(requestListCmd())
	return cmd
}

func requestCreateCmd() *cobra.Command {
	var actor, unitID, message, checkIn, checkOut string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a reservation request",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" || unitID == "" {
				return fmt.Errorf("--as and --unit are required")
			}
			in, err := parseDate(checkIn)
			if err != nil {
				return err
			}
			out, err := parseDate(checkOut)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.bookingService(ctx)
			if err != nil {
				return err
			}

			req, err := svc.CreateRequest(ctx, actor, service.CreateRequestInput{
				UnitID:   unitID,
				Message:  message,
				CheckIn:  in,
				CheckOut: out,
			})
			if err != nil {
				return err
			}
			return printRequests(cmd.OutOrStdout(), []models.Request{*req})
		},
	}

	cmd.Flags().StringVar(&actor, "as", "", "Requesting user id")
	cmd.Flags().StringVar(&unitID, "unit", "", "Unit id")
	cmd.Flags().StringVar(&message, "message", "", "Message to the host")
	cmd.Flags().StringVar(&checkIn, "check-in", "", "Check-in date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&checkOut, "check-out", "", "Check-out date (YYYY-MM-DD)")
	return cmd
}

func requestDecideCmd() *cobra.Command {
	var actor, status string

	cmd := &cobra.Command{
		Use:   "decide <request-id>",
		Short: "Approve or deny a waiting request as the unit's owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := models.RequestStatus(strings.ToUpper(status))
			if actor == "" {
				return fmt.Errorf("--as is required")
			}
			if !st.Terminal() {
				return fmt.Errorf("--status must be APPROVED or DENIED")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.bookingService(ctx)
			if err != nil {
				return err
			}

			req, err := svc.DecideRequest(ctx, actor, args[0], st)
			if err != nil {
				return err
			}
			return printRequests(cmd.OutOrStdout(), []models.Request{*req})
		},
	}

	cmd.Flags().StringVar(&actor, "as", "", "Host user id")
	cmd.Flags().StringVar(&status, "status", "", "APPROVED or DENIED")
	return cmd
}

func requestMessageCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "message <request-id> <text>",
		Short: "Replace the message of your own request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--as is required")
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.bookingService(ctx)
			if err != nil {
				return err
			}

			text := args[1]
			req, err := svc.EditRequest(ctx, actor, args[0], models.RequestUpdate{Message: &text})
			if err != nil {
				return err
			}
			return printRequests(cmd.OutOrStdout(), []models.Request{*req})
		},
	}

	cmd.Flags().StringVar(&actor, "as", "", "Requesting user id")
	return cmd
}

func requestListCmd() *cobra.Command {
	var actor, unitID, status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your requests, or a unit's requests with --unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--as is required")
			}
			st := models.RequestStatus(strings.ToUpper(status))

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.bookingService(ctx)
			if err != nil {
				return err
			}

			var requests []models.Request
			if unitID != "" {
				requests, err = svc.ListUnitRequests(ctx, actor, unitID, st, limit, offset)
			} else {
				requests, err = svc.ListMyRequests(ctx, actor, st, limit, offset)
			}
			if err != nil {
				return err
			}
			return printRequests(cmd.OutOrStdout(), requests)
		},
	}

	cmd.Flags().StringVar(&actor, "as", "", "User id")
	cmd.Flags().StringVar(&unitID, "unit", "", "List requests of this unit (owner only)")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func unavailableCmd() *cobra.Command {
	var unitID, from, to string

	cmd := &cobra.Command{
		Use:   "unavailable",
		Short: "List the days of a unit taken by approved stays",
		RunE: func(cmd *cobra.Command, args []string) error {
			if unitID == "" {
				return fmt.Errorf("--unit is required")
			}
			start, err := parseDate(from)
			if err != nil {
				return err
			}
			var end time.Time
			if to == "" {
				end = start.AddDate(0, 0, 90)
			} else if end, err = parseDate(to); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			svc, err := a.bookingService(ctx)
			if err != nil {
				return err
			}

			days, err := svc.UnavailableDays(ctx, unitID, start, end)
			if err != nil {
				return err
			}
			labels := make([]string, 0, len(days))
			for _, d := range days {
				labels = append(labels, d.Format(time.DateOnly))
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), labels)
			}
			if len(labels) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No unavailable days.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(labels, "\n"))
			return nil
		},
	}

	cmd.Flags().StringVar(&unitID, "unit", "", "Unit id")
	cmd.Flags().StringVar(&from, "from", "today", "First day (YYYY-MM-DD, today)")
	cmd.Flags().StringVar(&to, "to", "", "Day after the last one (default from + 90 days)")
	return cmd
}

// parseDate accepts YYYY-MM-DD, "today" or "tomorrow" and returns a UTC midnight date
func parseDate(input string) (time.Time, error) {
	if input == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	now := time.Now()
	switch strings.ToLower(input) {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	case "tomorrow":
		t := now.AddDate(0, 0, 1)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	parsed, err := time.Parse(time.DateOnly, input)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", input)
	}
	return parsed, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printRequests(w io.Writer, requests []models.Request) error {
	if outputJSON {
		return writeJSON(w, requests)
	}
	if len(requests) == 0 {
		fmt.Fprintln(w, "No requests found.")
		return nil
	}

	writer := tabwriter.NewWriter(w, 2, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tUNIT\tCHECK-IN\tCHECK-OUT\tSTATUS\tREQUESTER")
	for _, r := range requests {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.UnitID,
			r.CheckIn.Format(time.DateOnly), r.CheckOut.Format(time.DateOnly),
			r.Status, r.CreatedBy,
		)
	}
	return writer.Flush()
}
