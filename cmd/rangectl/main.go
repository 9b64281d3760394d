package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"range-remote/internal/indicator"
	"range-remote/internal/link"
	"range-remote/internal/platform/config"
	"range-remote/internal/platform/logger"
	"range-remote/internal/platform/metrics"
	"range-remote/internal/protocol"
	"range-remote/internal/remote"
	"range-remote/internal/sequencer"
	"range-remote/internal/settings"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	store := settings.NewFileStore(cfg.SettingsFile)
	svc, err := settings.NewService(store)
	if err != nil {
		log.Error("load settings", "file", cfg.SettingsFile, "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	lnk := link.New(link.Options{
		WriteTimeout: cfg.WriteTimeout,
		BaudRate:     cfg.SerialBaud,
		Logger:       log,
		Metrics:      met,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var display remote.Display
	switch {
	case cfg.Simulate:
		lane, err := protocol.ParseDetail(cfg.SimulateLane)
		if err != nil {
			log.Error("invalid SIMULATE_LANE", "value", cfg.SimulateLane, "error", err)
			os.Exit(1)
		}
		unit := indicator.New(indicator.Options{
			Lane:   lane,
			Buzzer: indicator.NewBuzzer(cfg.WAVDir, log),
			Logger: log,
		})
		go unit.Run(ctx, sequencer.TickInterval)
		lnk.Attach("simulator", unit)
		display = unit
	case cfg.SerialDevice != "":
		// the operator can retry through /link/connect
		if err := lnk.Connect(cfg.SerialDevice); err != nil {
			log.Warn("serial device unavailable", "device", cfg.SerialDevice, "error", err)
		}
	default:
		log.Warn("no transport configured; states will not be sent until /link/connect")
	}

	seq := sequencer.New(sequencer.Options{
		Sender:       lnk,
		Settings:     svc,
		ResendOnTick: cfg.ResendOnTick,
		Logger:       log,
		Metrics:      met,
	})
	runner := sequencer.NewRunner(seq, sequencer.TickInterval, log)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		_ = runner.Run(ctx)
	}()

	h := remote.NewHandler(runner, lnk, svc, display, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log, "/session", "/health", "/indicator"))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			met.SetLinkConnected(lnk.Status().Connected)
			met.SetPhaseRemaining(runner.Snapshot().Remaining)
		}).ServeHTTP(w, r)
	})
	h.Mount(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"serial_device", cfg.SerialDevice,
		"simulate", cfg.Simulate,
		"log_level", cfg.LogLevel,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	<-runnerDone
	if err := lnk.Disconnect(); err != nil {
		log.Warn("disconnect", "error", err)
	}

	log.Info("server stopped")
}
