package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rescale/cloudfm/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cloudfm configuration",
		Long: `Configuration management commands for cloudfm.

Commands:
  init  - Write a configuration file
  show  - Display current configuration
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default path.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var (
		force     bool
		backend   string
		localRoot string
		s3Bucket  string
		s3Region  string
		azureURL  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file",
		Long: `Write a configuration file with defaults plus the given settings.

Secrets (S3 secret key, proxy password) are never written; set them with
CLOUDFM_S3_SECRET_KEY and CLOUDFM_PROXY_PASSWORD or in a .env file.

Use --force to overwrite an existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
			}

			cfg := config.DefaultConfig()
			if backend != "" {
				cfg.Upload.Backend = backend
			}
			if localRoot != "" {
				cfg.Local.Root = localRoot
			}
			cfg.S3.Bucket = s3Bucket
			cfg.S3.Region = s3Region
			cfg.Azure.ContainerURL = azureURL

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if err := cfg.Save(path); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			GetLogger().Info().Str("path", path).Msg("Configuration saved")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&backend, "backend", "", "Backend: local, s3 or azure")
	cmd.Flags().StringVar(&localRoot, "local-root", "", "Destination directory for the local backend")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket")
	cmd.Flags().StringVar(&s3Region, "s3-region", "", "S3 region")
	cmd.Flags().StringVar(&azureURL, "azure-container-url", "", "Azure container URL (may include a SAS token)")

	return cmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (see 'cloudfm config path')
  2. .env files
  3. CLOUDFM_* environment variables

Priority: environment > .env > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), GetConfig(), path)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Style:           %s\n", cfg.UI.Style)
	fmt.Fprintf(w, "  Coalesce Window: %s\n", cfg.CoalesceWindow())
	fmt.Fprintf(w, "  Linger:          %s\n", cfg.LingerDelay())
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Upload:")
	fmt.Fprintf(w, "  Backend:          %s\n", cfg.Upload.Backend)
	fmt.Fprintf(w, "  Max Concurrent:   %d\n", cfg.Upload.MaxConcurrent)
	fmt.Fprintf(w, "  Max Retries:      %d\n", cfg.Upload.MaxRetries)
	fmt.Fprintf(w, "  Include Hidden:   %t\n", cfg.Upload.IncludeHidden)
	if cfg.Upload.FilesPerSecond > 0 {
		fmt.Fprintf(w, "  Files per Second: %d\n", cfg.Upload.FilesPerSecond)
	}
	fmt.Fprintln(w)

	switch cfg.Upload.Backend {
	case config.BackendS3:
		fmt.Fprintln(w, "S3:")
		fmt.Fprintf(w, "  Bucket:   %s\n", cfg.S3.Bucket)
		fmt.Fprintf(w, "  Region:   %s\n", cfg.S3.Region)
		if cfg.S3.Prefix != "" {
			fmt.Fprintf(w, "  Prefix:   %s\n", cfg.S3.Prefix)
		}
		if cfg.S3.Endpoint != "" {
			fmt.Fprintf(w, "  Endpoint: %s\n", cfg.S3.Endpoint)
		}
		fmt.Fprintf(w, "  Keys:     %s\n", secretState(cfg.S3.AccessKey != "" && cfg.S3.SecretKey != ""))
	case config.BackendAzure:
		fmt.Fprintln(w, "Azure:")
		if cfg.Azure.ContainerURL != "" {
			// The URL may carry a SAS token
			fmt.Fprintf(w, "  Container URL: %s\n", secretState(true))
		} else {
			fmt.Fprintf(w, "  Account URL:   %s\n", cfg.Azure.AccountURL)
			fmt.Fprintf(w, "  Container:     %s\n", cfg.Azure.Container)
		}
	default:
		fmt.Fprintln(w, "Local:")
		fmt.Fprintf(w, "  Root: %s\n", cfg.Local.Root)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.Network.ProxyMode)
	if cfg.Network.ProxyHost != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.Network.ProxyHost)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.Network.ProxyPort)
	}
	if cfg.NeedsProxyPassword() {
		fmt.Fprintln(w, "  Warning: proxy user set without CLOUDFM_PROXY_PASSWORD")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Configuration file: %s\n", path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintln(w, "  (file does not exist - using defaults)")
	}
}

func secretState(set bool) string {
	if set {
		return "<set>"
	}
	return "<not set>"
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, path)

			if _, err := os.Stat(path); err != nil {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out, "Create a configuration file with: cloudfm config init")
			} else {
				fmt.Fprintln(out, "Status: ✓ File exists")
			}
			return nil
		},
	}
}
