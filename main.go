package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"github.com/chaos-io/rembg-relay/batch"
	"github.com/chaos-io/rembg-relay/config"
	"github.com/chaos-io/rembg-relay/forward"
	"github.com/chaos-io/rembg-relay/health"
	"github.com/chaos-io/rembg-relay/logger"
	"github.com/chaos-io/rembg-relay/rembg"
	"github.com/chaos-io/rembg-relay/server"
	nhttp "github.com/chaos-io/rembg-relay/util/http"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.Log, cfg.Primary.Env)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	cli := nhttp.NewHTTPClient()

	remover, err := rembg.New(cfg.Remover, cli)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create remover")
	}

	forwarder, err := forward.New(cfg.Webhook, cli)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create forwarder")
	}

	processor := batch.NewProcessor(
		batch.NewHTTPFetcher(cli, cfg.Fetch.Timeout, cfg.Fetch.MaxImageBytes),
		remover,
		cfg.Remover.Timeout,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := health.NewMonitor(cfg.Health.Schedule, log)
	if pinger, ok := remover.(rembg.Pinger); ok {
		monitor.Register("remover", pinger.Ping)
	}
	if err := monitor.Start(log.WithContext(ctx)); err != nil {
		log.Fatal().Err(err).Msg("failed to start health monitor")
	}
	defer monitor.Stop()

	srv := server.New(cfg.Server, log, processor, forwarder, monitor).HTTPServer()

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("backend", cfg.Remover.Backend).
			Str("webhook_mode", cfg.Webhook.Mode).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
