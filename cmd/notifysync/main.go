// Command notifysync keeps a notification session alive for one user: it
// holds the backend connection, turns events into stored notifications,
// logs alerts and serves prometheus metrics.
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

	"github.com/blicence/notifysync/pkg/config"
	"github.com/blicence/notifysync/pkg/connection"
	"github.com/blicence/notifysync/pkg/logger"
	"github.com/blicence/notifysync/pkg/metrics"
	"github.com/blicence/notifysync/pkg/notifications"
	"github.com/blicence/notifysync/pkg/realtime"
	"github.com/blicence/notifysync/pkg/storage"
)

func main() {
	cfg, err := config.Load[AppConfig](config.WithEnvFiles(".env"))
	if err != nil {
		slog.Error("load configuration", logger.Error(err))
		os.Exit(1)
	}

	log := logger.New(
		logger.WithLevel(logger.ParseLevel(cfg.LogLevel)),
		logger.WithFormat(logger.ParseFormat(cfg.LogFormat)),
		logger.WithAttr(slog.String("service", "notifysync")),
		logger.WithContextValue("user_id", realtime.ContextKeyUserID),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("notifysync stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg AppConfig, log *slog.Logger) error {
	kv, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Warn("close storage", logger.Error(err))
		}
	}()

	collector := metrics.New()
	writer := storage.NewWriter(kv,
		storage.WithWriterLogger(log),
		storage.WithErrorHook(func(key string, _ error) { collector.PersistFailed(key) }),
	)

	catalog, err := notifications.NewCatalog(cfg.Language)
	if err != nil {
		return err
	}

	mgr := connection.NewManager(cfg.Connection,
		&connection.WebSocketDialer{HandshakeTimeout: cfg.Connection.DialTimeout},
		connection.WithLogger(log),
		connection.WithMetrics(collector),
		connection.WithPersister(writer),
	)

	presenters := []notifications.Presenter{notifications.NewLogPresenter(log)}
	if cfg.AlertFile != "" {
		f, err := os.OpenFile(cfg.AlertFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open alert file: %w", err)
		}
		defer f.Close()
		presenters = append(presenters, notifications.NewJSONPresenter(f))
	}
	presenter := notifications.NewThrottledPresenter(
		notifications.NewMultiPresenter(presenters, notifications.WithMultiPresenterLogger(log)),
		cfg.alertLimit(), cfg.AlertBurst)

	svc := realtime.New(mgr, kv,
		realtime.WithLogger(log),
		realtime.WithMetrics(collector),
		realtime.WithPresenter(presenter),
		realtime.WithPersister(writer),
		realtime.WithPolicy(notifications.NewPolicy(catalog)),
	)

	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics server listening", slog.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", logger.Error(err))
			}
		}()
	}

	if err := svc.Initialize(ctx, cfg.UserID); err != nil {
		return err
	}
	log.Info("notifysync running",
		slog.String("url", cfg.Connection.URL),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("language", catalog.Language()),
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	errs = append(errs, svc.Shutdown(shutdownCtx), writer.Close(shutdownCtx))
	return errors.Join(errs...)
}
