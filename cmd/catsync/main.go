package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mdelaney/catsync/internal/client"
	"github.com/mdelaney/catsync/internal/config"
	"github.com/mdelaney/catsync/internal/events"
)

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *events.Logger
	app    *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "catsync",
	Short: "Offline-first category manager for local documents",
	Long: `Catsync keeps category definitions and file assignments in a local
database, mirrors every change to the category service when it is
reachable, and queues changes for later sync when it is not.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			_ = app.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Config file path (default: catsync.json, ~/.config/catsync)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func setup(ctx context.Context) error {
	var err error

	cfg, err = config.NewLoader(cfgPath).Load()
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return err
	}

	app, err = client.New(cfg, logger)
	if err != nil {
		return err
	}

	return app.Start(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
