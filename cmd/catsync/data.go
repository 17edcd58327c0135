package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mdelaney/catsync/internal/models"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export categories and assignments as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap := app.Manager.Export()

		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}

		if len(args) == 0 {
			fmt.Println(string(data))
			return nil
		}

		if err := os.WriteFile(args[0], data, 0644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		color.Green("Exported %d categories to %s", len(snap.Categories), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace all category data from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}

		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("parse snapshot: %w", err)
		}

		if err := app.Manager.Import(cmd.Context(), &snap); err != nil {
			return err
		}

		color.Green("Imported %d categories", len(snap.Categories))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate <file>",
	Short: "Import categories from a pre-v1 export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		migrated, err := app.Manager.Migrate(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		color.Green("Migrated %d categor(ies)", migrated)
		return nil
	},
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all category data and reseed defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("refusing to reset without --yes")
		}

		if err := app.Manager.Reset(cmd.Context()); err != nil {
			return err
		}

		color.Green("Reset complete; defaults reseeded")
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show category statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := app.Manager.Stats()

		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm the reset")

	rootCmd.AddCommand(exportCmd, importCmd, migrateCmd, resetCmd, statsCmd)
}
