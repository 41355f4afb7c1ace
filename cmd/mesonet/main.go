package main

import (
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/i474232898/mesonet-data-aggregation/internal/config"
	"github.com/i474232898/mesonet-data-aggregation/internal/logging"
)

const appName = "mesonet"

// cli carries state shared by every subcommand.
type cli struct {
	token   string
	verbose bool

	cfg *config.AppConfig
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	app := &cli{}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Query the Mesonet weather API",
		Long: `mesonet requests station data from the Mesonet API and writes the
normalized observations as CSV, JSON, influx line protocol or MET ASCII.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if app.verbose {
				cfg.Verbose = true
				cfg.LogLevel = slog.LevelDebug
			}
			app.cfg = cfg
			app.log = logging.New(cfg, appName)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&app.token, "token", "", "API token (overrides MESONET_TOKEN and the config file)")
	pf.BoolVarP(&app.verbose, "verbose", "v", false, "debug logging")

	for _, service := range queryServices {
		rootCmd.AddCommand(newQueryCmd(app, service))
	}
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
