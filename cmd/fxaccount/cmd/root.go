package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmcleod/fxaccount/config"
)

var (
	configFile    string
	dataDirFlag   string
	authServerURL string
	logLevel      string
	profile       string
)

var rootCmd = &cobra.Command{
	Use:   "fxaccount",
	Short: "fxaccount signs in to Firefox Accounts and manages push registrations",
	Long: `A command line client for the Firefox Accounts sign-in flow.
It keeps each profile's login state and push registration on disk and
advances them against the accounts and push servers.
Complete documentation is available at https://github.com/jmcleod/fxaccount`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("FXACCOUNT_CONFIG"), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Directory for persistent data (overrides config)")
	rootCmd.PersistentFlags().StringVar(&authServerURL, "auth-server", "", "Accounts auth server URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "default", "Profile name")
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if authServerURL != "" {
		cfg.AuthServerURL = authServerURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}
