package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mdelaney/catsync/internal/manager"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		bold := color.New(color.Bold)
		dim := color.New(color.Faint)
		stats := app.Manager.Stats()

		for _, cat := range app.Manager.All() {
			marker := " "
			if cat.IsDefault {
				marker = "*"
			}
			_, _ = bold.Printf("%s %-20s", marker, cat.Name)
			_, _ = dim.Printf(" %s  %s  %d file(s)\n", cat.ID, cat.Color, stats.FilesByCategory[cat.ID])
		}

		_, _ = dim.Printf("\n%d total (%d default, %d custom)\n", stats.Total, stats.Default, stats.Custom)
		return nil
	},
}

var (
	createColor string
	createIcon  string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := app.Manager.CreateCategory(cmd.Context(), manager.CategoryInput{
			Name:  args[0],
			Color: createColor,
			Icon:  createIcon,
		})
		if err != nil {
			return err
		}

		color.Green("Created %q (%s)", cat.Name, cat.ID)
		return nil
	},
}

var (
	updateName  string
	updateColor string
	updateIcon  string
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var updates manager.CategoryUpdate
		if cmd.Flags().Changed("name") {
			updates.Name = &updateName
		}
		if cmd.Flags().Changed("color") {
			updates.Color = &updateColor
		}
		if cmd.Flags().Changed("icon") {
			updates.Icon = &updateIcon
		}

		cat, err := app.Manager.UpdateCategory(cmd.Context(), args[0], updates)
		if err != nil {
			return err
		}

		color.Green("Updated %q", cat.Name)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a category (fails if files still use it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Manager.DeleteCategory(cmd.Context(), args[0]); err != nil {
			return err
		}

		color.Green("Deleted %s", args[0])
		return nil
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign <file-id> <category-id>...",
	Short: "Assign categories to a file",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Manager.AssignToFile(cmd.Context(), args[0], args[1:]); err != nil {
			return err
		}

		color.Green("Assigned %d categor(ies) to %s", len(args)-1, args[0])
		return nil
	},
}

var unassignCmd = &cobra.Command{
	Use:   "unassign <file-id> <category-id>",
	Short: "Remove a category from a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Manager.RemoveFromFile(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}

		color.Green("Removed %s from %s", args[1], args[0])
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files <category-id>",
	Short: "List files assigned to a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := app.Manager.ByID(args[0]); err != nil {
			return err
		}

		for _, fileID := range app.Manager.FilesByCategory(args[0]) {
			fmt.Println(fileID)
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&createColor, "color", "", "Hex color")
	createCmd.Flags().StringVar(&createIcon, "icon", "", "Icon name")

	updateCmd.Flags().StringVar(&updateName, "name", "", "New name")
	updateCmd.Flags().StringVar(&updateColor, "color", "", "New color")
	updateCmd.Flags().StringVar(&updateIcon, "icon", "", "New icon")

	rootCmd.AddCommand(listCmd, createCmd, updateCmd, deleteCmd,
		assignCmd, unassignCmd, filesCmd)
}
