package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"imagejob/internal/http/handlers"
	httpapi "imagejob/internal/http/httpapi"
	"imagejob/internal/imagegen"
	"imagejob/internal/infra"
	"imagejob/internal/providers/remote"
	"imagejob/internal/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err := imagegen.CheckRoutes(cfg); err != nil {
		logger.Fatal().Err(err).Msg("api: config")
	}

	client, err := remote.NewClient(remote.Options{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: remote client")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: result store")
	}

	app := handlers.NewApp(client, imagegen.NewStyleCatalog(client, &logger), store, cfg, &logger)
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, cfg))

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("upstream", cfg.BaseURL).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown")
	}
	logger.Info().Msg("api: stopped")
}
