package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/vovakirdan/connectus-realtime/internal/auth"
	"github.com/vovakirdan/connectus-realtime/internal/config"
	"github.com/vovakirdan/connectus-realtime/internal/core"
	"github.com/vovakirdan/connectus-realtime/internal/service/calls"
	"github.com/vovakirdan/connectus-realtime/internal/store"
	"github.com/vovakirdan/connectus-realtime/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/connectus-realtime/internal/transport/http"
)

const shutdownReason = "server shutting down"

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, JWTConfig(cfg))

	hub := core.NewHub(core.Deps{
		Authenticator: authService,
		Presence:      st,
		Users:         st,
		Memberships:   st,
		Messages:      st,
		Policy:        PresencePolicy(cfg),
		Logger:        logger,
	})
	callsService := calls.New(st, st, hub.Signaling(), logger)

	server := transporthttp.NewServer(hub, authService, callsService, st, cfg, logger)
	// Shutdown does not track hijacked websocket connections.
	server.RegisterOnShutdown(func() {
		hub.CloseAll(shutdownReason)
	})

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// JWTConfig derives token settings from the server config.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
}

// PresencePolicy maps the presence section of the config onto the core policy.
func PresencePolicy(cfg *config.Config) core.PresencePolicy {
	return core.PresencePolicy{
		Mode:            core.PersistMode(cfg.Presence.PersistMode),
		Retries:         cfg.Presence.PersistRetries,
		Timeout:         cfg.Presence.PersistTimeout,
		QueueSize:       cfg.Presence.QueueSize,
		CloseSuperseded: cfg.CloseSuperseded,
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	var workers conc.WaitGroup
	workers.Go(func() { a.hub.Run(hubCtx) })

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	a.awaitDisconnects(a.shutdownTimeout)
	// Let the presence worker flush queued writes before the store goes away.
	stopHub()
	workers.Wait()
	a.cleanup()
	return runErr
}

// awaitDisconnects gives closed websocket handlers time to run their
// disconnect path so offline presence is queued before the worker stops.
func (a *App) awaitDisconnects(limit time.Duration) {
	deadline := time.Now().Add(limit)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for a.hub.OnlineCount() > 0 && time.Now().Before(deadline) {
		<-ticker.C
	}
	if n := a.hub.OnlineCount(); n > 0 {
		a.log.Warn().Int("connections", n).Msg("connections still open at shutdown")
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
