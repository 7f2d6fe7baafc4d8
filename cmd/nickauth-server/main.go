// Command nickauth-server serves the nickauth HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/nickauth"
	"github.com/MrEthical07/nickauth/httpapi"
	"github.com/MrEthical07/nickauth/internal/bootstrap"
	"github.com/MrEthical07/nickauth/internal/config"
	"github.com/MrEthical07/nickauth/internal/logging"
	promexport "github.com/MrEthical07/nickauth/metrics/export/prometheus"
)

const shutdownTimeout = 30 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file to load before the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "nickauth-server: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, "nickauth")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	verifier, err := bootstrap.NewCaptcha(cfg, logger)
	if err != nil {
		return err
	}
	mailer, err := bootstrap.NewMailer(cfg, logger)
	if err != nil {
		return err
	}
	defer mailer.Close()

	builder := nickauth.New().
		WithConfig(cfg.EngineConfig()).
		WithStore(backend.Store).
		WithLogger(logger).
		WithCaptcha(verifier).
		WithMailer(mailer)
	if backend.Redis != nil {
		builder = builder.WithRedis(backend.Redis)
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	apiCfg := httpapi.Config{
		BasePath:    cfg.BasePath,
		Environment: cfg.Environment,
		TrustProxy:  cfg.TrustProxy,
		Logger:      logger,
	}
	if cfg.MetricsEnabled {
		apiCfg.MetricsHandler = promexport.NewExporter(engine).Handler()
	}

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           httpapi.New(engine, apiCfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("store", backend.Kind),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped",
		zap.Uint64("mail_delivered", mailer.Delivered()),
		zap.Uint64("mail_failed", mailer.Failed()),
		zap.Uint64("audit_dropped", engine.AuditDropped()),
	)
	return nil
}
