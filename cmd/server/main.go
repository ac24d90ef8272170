package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/connectus-realtime/internal/app"
	"github.com/vovakirdan/connectus-realtime/internal/auth"
	"github.com/vovakirdan/connectus-realtime/internal/config"
	applog "github.com/vovakirdan/connectus-realtime/internal/log"
)

type rootFlags struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "connectus",
		Short:         "Realtime presence, delivery and call signaling server",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to config.yaml")
	pf.StringVar(&flags.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.overrides.LogFormat, "log-format", "", "log format (console, json)")
	pf.StringVar(&flags.overrides.DatabasePath, "db", "", "sqlite database path")
	pf.StringVar(&flags.overrides.JWTSecret, "jwt-secret", "", "JWT signing secret")
	// The bare root command serves too, so server flags live here.
	pf.StringVar(&flags.overrides.Addr, "addr", "", "HTTP listen address")
	pf.DurationVar(&flags.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	pf.DurationVar(&flags.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	pf.StringVar(&flags.overrides.Presence.PersistMode, "presence-mode", "", "presence persistence mode (sync, async)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	root.AddCommand(serve, newTokenCmd(flags))
	return root
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	var (
		userID   int64
		username string
		service  string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed access token for a user or a backend service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			var token string
			if service != "" {
				token, err = auth.GenerateServiceToken(app.JWTConfig(&cfg), service)
			} else {
				token, err = auth.GenerateToken(app.JWTConfig(&cfg), userID, username)
			}
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user-id", 0, "user id to embed in the token")
	cmd.Flags().StringVar(&username, "username", "", "username to embed in the token")
	cmd.Flags().StringVar(&service, "service", "", "issue a service token for the named backend instead")
	cmd.MarkFlagsOneRequired("user-id", "service")
	cmd.MarkFlagsMutuallyExclusive("user-id", "service")
	return cmd
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	bootstrap := applog.New("info", "console")
	cfg, path, err := config.Load(bootstrap, flags.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.UpdateFrom(flags.overrides)
	return cfg, nil
}

func runServe(parent context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	logger := applog.New(cfg.LogLevel, cfg.LogFormat)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(&cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Str("presence_mode", cfg.Presence.PersistMode).Msg("starting connectus realtime server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
