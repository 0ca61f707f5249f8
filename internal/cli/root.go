// Package cli provides the command-line interface for cloudfm.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/cloudfm/internal/config"
	"github.com/rescale/cloudfm/internal/logging"
	"github.com/rescale/cloudfm/internal/version"
)

var (
	// Global flags
	cfgFile  string
	envFiles []string
	verbose  bool

	// Loaded in PersistentPreRunE
	appConfig *config.Config
	logger    *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cloudfm",
		Short: "cloudfm - folder uploads to S3, Azure Blob or a local directory",
		Long: `cloudfm ` + version.Version + ` - Built: ` + version.BuildTime + `
Uploads folders to cloud storage with live progress.

Configuration is read from ` + "`cloudfm.conf`" + ` (see 'cloudfm config path'),
then .env files, then CLOUDFM_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, envFiles...)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			appConfig = cfg

			l, err := newLogger(cfg.Logging, verbose)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv files to load (default: .env when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"
	return rootCmd
}

// newLogger builds the CLI logger from the logging section of the config.
func newLogger(cfg config.LoggingConfig, verbose bool) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Level)
	if verbose {
		level = zerolog.DebugLevel
	}
	logging.SetGlobalLevel(level)

	opts := logging.Options{}
	if cfg.File != "" {
		path, err := config.ResolveLogFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare log file: %w", err)
		}
		opts.File = path
	}
	return logging.NewLogger(opts), nil
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// First signal cancels gracefully; a second one exits immediately
	go func() {
		received := 0
		for sig := range sigChan {
			received++
			if received > 1 {
				fmt.Fprintf(os.Stderr, "\nReceived %v again, exiting\n", sig)
				os.Exit(130)
			}
			fmt.Fprintf(os.Stderr, "\nReceived %v, cancelling... (press Ctrl+C again to force)\n", sig)
			cancelFunc()
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	// Clean up signal handler
	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetConfig returns the loaded configuration, or defaults before loading.
func GetConfig() *config.Config {
	if appConfig == nil {
		appConfig = config.DefaultConfig()
	}
	return appConfig
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		// Fallback to background context if called before Execute()
		return context.Background()
	}
	return rootContext
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cloudfm %s (built %s)\n", version.Version, version.BuildTime)
		},
	}
}
