package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/dunapp/water-level-alert/internal/adapter/api"
	"github.com/dunapp/water-level-alert/internal/adapter/dispatchclient"
	opshttp "github.com/dunapp/water-level-alert/internal/adapter/http"
	kafkaadapter "github.com/dunapp/water-level-alert/internal/adapter/kafka"
	"github.com/dunapp/water-level-alert/internal/adapter/postgres"
	redisadapter "github.com/dunapp/water-level-alert/internal/adapter/redis"
	"github.com/dunapp/water-level-alert/internal/adapter/webpush"
	"github.com/dunapp/water-level-alert/internal/alert"
	"github.com/dunapp/water-level-alert/internal/config"
	"github.com/dunapp/water-level-alert/internal/dispatch"
	"github.com/dunapp/water-level-alert/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.StoreTimeout)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	checks := []opshttp.Check{{Name: "database", Checker: store}}

	// Push delivery is feature-flagged on the VAPID keys; without them the
	// dispatcher reports a configuration error per request.
	var pusher dispatch.Pusher
	if cfg.PushConfigured() {
		sender, err := webpush.NewSender(webpush.Config{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
			TTL:        cfg.PushTTL,
		})
		if err != nil {
			logger.Error("invalid push configuration", "error", err)
			os.Exit(1)
		}
		pusher = sender
		logger.Info("web push enabled")
	} else {
		logger.Warn("web push disabled, VAPID keys not configured")
	}

	dispatcher := dispatch.New(store, pusher, clock, logger, metrics, dispatch.Options{
		Concurrency: cfg.DispatchConcurrency,
		PushTimeout: cfg.PushTimeout,
	})

	var alertDispatcher alert.Dispatcher = dispatcher
	if cfg.DispatchURL != "" {
		alertDispatcher = dispatchclient.New(cfg.DispatchURL, cfg.DispatchToken, cfg.DispatchTimeout)
		logger.Info("remote dispatch enabled", "url", cfg.DispatchURL)
	}

	opts := alert.Options{
		DefaultStation: cfg.AlertStation,
		RunTimeout:     cfg.AlertRunTimeout,
	}

	var writer *kafkaadapter.Writer
	if len(cfg.KafkaBrokers) > 0 {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic, logger)
		opts.Events = writer
		logger.Info("alert events enabled", "topic", cfg.KafkaAlertTopic)
	}

	var reserver *redisadapter.Reserver
	if cfg.RedisAddr != "" {
		reserver = redisadapter.NewReserver(redisadapter.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
		opts.Reserver = reserver
		checks = append(checks, opshttp.Check{Name: "redis", Checker: reserver})
		logger.Info("cooldown reservation enabled", "addr", cfg.RedisAddr)
	}

	orchestrator := alert.NewOrchestrator(
		alert.NewEvaluator(store, cfg.AlertThreshold),
		alert.NewGate(store, cfg.AlertCooldown),
		alertDispatcher,
		clock,
		logger,
		metrics,
		opts,
	)

	apiSrv := api.New(api.Config{
		Addr:             cfg.APIAddr,
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowEmptyOrigin: cfg.AllowEmptyOrigin,
		DispatchToken:    cfg.DispatchToken,
		VAPIDPublicKey:   cfg.VAPIDPublicKey,
	}, orchestrator, dispatcher, store, logger)
	opsSrv := opshttp.NewServer(cfg.OpsAddr, checks, logger)

	go func() {
		if err := apiSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := opsSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if reserver != nil {
		if err := reserver.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
}
