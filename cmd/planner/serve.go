package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/study-planner/planner-core/config"
	httpapi "github.com/study-planner/planner-core/internal/interface/http"
)

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured timeout.
func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting planner",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
	)

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing backends...")
		app.Close()
	}()

	if app.db != nil {
		if err := migrateUp(ctx, app, log); err != nil {
			return err
		}
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.Version = cfg.App.Version

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		UseCases:   app.useCases,
		Dispatcher: app.dispatcher,
		Health:     app.health,
		Logger:     log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}
