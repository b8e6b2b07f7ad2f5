// Command findmybuddy serves the Record API: the user directory, registration,
// administrator decisions and sign-in over one pooled store connection.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/findmybuddy/api"
	"github.com/Skryldev/findmybuddy/config"
	"github.com/Skryldev/findmybuddy/db"
	"github.com/Skryldev/findmybuddy/obs"
	"github.com/Skryldev/findmybuddy/service"

	// SQLite is optional; the db package stays cgo-free without it.
	_ "github.com/mattn/go-sqlite3"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fatalf("findmybuddy: %v", err)
	}
}

func run(ctx context.Context) error {
	// ── Configuration ─────────────────────────────────────────────────────
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	logger := obs.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	slog.SetDefault(logger)

	// Missing connection parameters are fatal before anything listens.
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// ── Telemetry ─────────────────────────────────────────────────────────
	shutdownTracer, err := obs.InitTracer(ctx, cfg.OTLPEndpoint, cfg.Env, version)
	if err != nil {
		return err
	}
	defer flush(logger, "tracer", shutdownTracer)

	shutdownMeter, err := obs.InitMeter(ctx, cfg.OTLPEndpoint, cfg.Env, version)
	if err != nil {
		return err
	}
	defer flush(logger, "meter", shutdownMeter)

	// ── Store ─────────────────────────────────────────────────────────────
	database, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()
	logger.Info("database connected", "driver", cfg.Driver, "max_open_conns", cfg.MaxOpenConns)

	// ── Service ───────────────────────────────────────────────────────────
	users, err := service.NewUsers(database, service.Options{
		SeedAdminEmail:    cfg.SeedAdminEmail,
		SeedAdminPassword: cfg.SeedAdminPassword,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	if cfg.BootstrapAdmin {
		created, err := users.Bootstrap(ctx)
		if err != nil {
			return err
		}
		logger.Info("admin bootstrap", "created", created)
	}

	// ── HTTP ──────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(api.NewHandler(users, logger), logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// openStore opens the pool with logging, metrics and tracing hooks. The first
// connection is retried while the store reports a transient failure.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.DB, error) {
	metrics, err := obs.NewDBMetrics(nil)
	if err != nil {
		return nil, err
	}
	dbCfg := cfg.DBConfig(
		db.NewLogHook(db.LogHookConfig{
			Logger:             logger,
			SlowQueryThreshold: cfg.SlowQuery,
			LogArgs:            false,
			ContextAttrs:       obs.ContextAttrs,
		}),
		db.NewMetricsHook(metrics),
		db.NewTracingHook(obs.NewDBTracer(cfg.Driver)),
	)

	var database *db.DB
	err = db.WithRetry(ctx, db.RetryConfig{MaxAttempts: 5, Delay: time.Second}, func() error {
		var err error
		if cfg.DatabaseURL != "" {
			database, err = db.OpenDSN(cfg.Driver, dbCfg)
		} else {
			database, err = db.OpenWithDriver(cfg.Driver, cfg.DriverOptions(), dbCfg)
		}
		if err != nil {
			logger.Warn("database not reachable", "err", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return database, nil
}

// flush stops a telemetry pipeline with a bounded deadline.
func flush(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn(name+" shutdown failed", "err", err)
	}
}

func fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
