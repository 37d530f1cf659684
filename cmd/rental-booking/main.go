package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "rental-booking",
	Short:        "Reservation request lifecycle and booking reconciliation for rental units",
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(recountCmd())
	rootCmd.AddCommand(exportRequestsCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(unavailableCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
