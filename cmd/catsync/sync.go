package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the pending sync queue now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Drainer.Drain(cmd.Context()); err != nil {
			status := app.Drainer.Status(cmd.Context())
			color.Yellow("Sync incomplete: %v (%d pending)", err, status.Pending)
			return nil
		}

		status := app.Drainer.Status(cmd.Context())
		if status.Pending == 0 {
			color.Green("Sync queue empty")
		} else {
			color.Yellow("%d item(s) still pending", status.Pending)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := app.Drainer.Status(cmd.Context())

		if status.Degraded {
			color.Red("Sync degraded: retries exhausted; local data remains authoritative")
		} else if status.Pending == 0 {
			color.Green("In sync")
		} else {
			color.Yellow("%d mutation(s) awaiting sync", status.Pending)
		}

		if status.LastError != "" {
			color.Red("Last error: %s", status.LastError)
		}
		if !status.LastDrain.IsZero() {
			color.New(color.Faint).Printf("Last drain: %s\n", status.LastDrain.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, statusCmd)
}
