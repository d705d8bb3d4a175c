package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"snackloader/internal/bot"
	"snackloader/internal/config"
	"snackloader/internal/feeding"
	"snackloader/internal/httpapi"
	"snackloader/internal/ledger"
	"snackloader/internal/livedata"
	"snackloader/internal/metrics"
	"snackloader/internal/mqttbus"
	"snackloader/internal/scheduler"
	"snackloader/internal/settings"
	"snackloader/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("feeder stopped", "error", err)
		os.Exit(1)
	}
	log.Info("feeder stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	var ledgerStore ledger.Store = store
	if cfg.LedgerBackend == config.LedgerRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		r := storage.NewRedis(rdb, "snackloader:")
		defer func() { _ = r.Close() }()
		ledgerStore = r
		log.Info("using redis ledger", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	}

	m := metrics.New()
	loc := cfg.Location()
	state := livedata.NewState()

	bus, err := mqttbus.Connect(ctx, mqttbus.Options{
		Broker:      cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
	}, log)
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer func() { _ = bus.Close() }()

	session, err := livedata.Bind(bus, state, log)
	if err != nil {
		return fmt.Errorf("bind live data: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("close live session", "error", err)
		}
	}()

	settingsSvc := settings.New(store, log)
	if err := session.FollowSettings(ctx, settingsSvc, cfg.UserID); err != nil {
		return fmt.Errorf("follow settings: %w", err)
	}

	intake := ledger.New(ledgerStore, state, loc, log)
	intake.SetMetrics(m)

	executor := feeding.NewExecutor(state, bus, intake, log)
	executor.SetHistory(store)
	executor.SetMetrics(m)

	sched := scheduler.New(state, executor, intake, loc, log)
	sched.SetMetrics(m)

	// Workers stop before the stores and the bus are closed.
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	api := httpapi.New(httpapi.Services{
		Feeder:   executor,
		Settings: settingsSvc,
		Live:     state,
		Intake:   intake,
		History:  store,
	}, cfg.DeviceID, cfg.UserID, log, m)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if cfg.TelegramEnabled() {
		b, err := bot.New(cfg.TelegramBotToken, bot.Services{
			Feeder:   executor,
			Settings: settingsSvc,
			Live:     state,
			Intake:   intake,
			History:  store,
		}, cfg, log)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		sched.SetNotifier(b)
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Run(ctx)
		}()
	} else {
		log.Info("telegram bot disabled")
	}

	log.Info("starting feeder", "device_id", cfg.DeviceID, "user_id", cfg.UserID, "timezone", loc.String())
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		cancel()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
