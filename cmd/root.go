package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/penwyp/ScreenCat/config"
	"github.com/penwyp/ScreenCat/internal"
	"github.com/penwyp/ScreenCat/logging"
)

var (
	cfgFile  string
	logLevel string
	logFile  string
	dataDir  string
	timezone string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:   "screencat",
	Short: "Screen time tracker",
	Long: `screencat turns foreground/background usage events into per-application
sessions and keeps hourly, daily, weekly and monthly usage totals per category.

Without a subcommand it runs as a daemon: it collects events on a fixed cadence,
reacts to changes of the event log and the category catalog, and flushes active
sessions when it receives SIGINT or SIGTERM.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, file, err := loadConfiguration(cmd)
		if err != nil {
			return err
		}

		opts := []internal.Option{internal.WithLogger(logging.GetGlobalLogger())}
		if file != "" {
			flags := cmd.Flags()
			opts = append(opts, internal.WithConfigReload(file, func() (*config.Config, error) {
				return config.Load(file, flags)
			}))
		}

		app, err := internal.NewApplication(cfg, opts...)
		if err != nil {
			return fmt.Errorf("failed to create application: %w", err)
		}
		return app.Run(ctx)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.screencat.yaml or $HOME/.screencat.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default is $HOME/.screencat)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "", "IANA timezone dates are evaluated in (default is the system zone)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug mode")
}

// loadConfiguration layers defaults, the config file, SCREENCAT_* environment
// variables and explicitly set flags, then configures the global logger. It
// returns the config file that was used, if any.
func loadConfiguration(cmd *cobra.Command) (*config.Config, string, error) {
	file := cfgFile
	if file == "" {
		file = config.FindConfigFile()
	}

	cfg, err := config.Load(file, cmd.Flags())
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration: %w", err)
	}

	// Debug implies debug-level logging
	if cfg.Debug.Enabled {
		cfg.App.LogLevel = "debug"
	}
	if err := logging.InitLogger(cfg.App.LogLevel, cfg.App.LogFile, cfg.Debug.Enabled); err != nil {
		return nil, "", err
	}
	if file != "" {
		logging.LogDebugf("using config file %s", file)
	}
	return cfg, file, nil
}

// openApplication builds an application for one-shot commands. File watching
// is only useful to the daemon.
func openApplication(cmd *cobra.Command) (*internal.Application, error) {
	cfg, _, err := loadConfiguration(cmd)
	if err != nil {
		return nil, err
	}
	cfg.Data.Watch = false

	app, err := internal.NewApplication(cfg, internal.WithLogger(logging.GetGlobalLogger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return app, nil
}
