package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-server/internal/app"
	"github.com/vovakirdan/wirechat-server/internal/auth"
	"github.com/vovakirdan/wirechat-server/internal/config"
	"github.com/vovakirdan/wirechat-server/internal/log"
)

var (
	configPath string
	overrides  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "wirechat",
	Short: "WireChat real-time messaging server",
	Long:  "WireChat real-time messaging server. Without a subcommand it runs serve.",
	RunE:  runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed token for an identity",
	Long: `Issue a signed token for an identity using the configured JWT secret.
Useful for local testing and for the scripts under scripts/.

Example usage:
  wirechat token --identity alice`,
	RunE: runToken,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&overrides.LogFormat, "log-format", "", "log format: console or json")

	addServeFlags(rootCmd)
	addServeFlags(serveCmd)

	tokenCmd.Flags().String("identity", "", "identity to issue the token for")
	tokenCmd.Flags().String("name", "", "optional display name")
	_ = tokenCmd.MarkFlagRequired("identity")

	rootCmd.AddCommand(serveCmd, tokenCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "path to the SQLite database")
}

func loadConfig() (config.Config, error) {
	bootstrap := log.New(overrides.LogLevel, overrides.LogFormat)

	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	bootstrap.Debug().Str("path", path).Msg("config loaded")
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting wirechat server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	identity, _ := cmd.Flags().GetString("identity")
	name, _ := cmd.Flags().GetString("name")

	svc := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	token, err := svc.IssueToken(identity, name)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
