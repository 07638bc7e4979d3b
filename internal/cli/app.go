package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	alertapp "signalwatch/internal/alerts/application"
	alerts "signalwatch/internal/alerts/domain"
	alertmemory "signalwatch/internal/alerts/infrastructure/memory"
	alertpostgres "signalwatch/internal/alerts/infrastructure/postgres"
	alerthttp "signalwatch/internal/alerts/interfaces/http"
	"signalwatch/internal/alerts/notify"
	"signalwatch/internal/cache"
	"signalwatch/internal/capture"
	"signalwatch/internal/capture/filesource"
	"signalwatch/internal/capture/httpsnap"
	"signalwatch/internal/classifier"
	"signalwatch/internal/config"
	monitorapp "signalwatch/internal/monitor/application"
	"signalwatch/internal/monitor/infrastructure/snapshot"
	monitorhttp "signalwatch/internal/monitor/interfaces/http"
	"signalwatch/internal/observability/metrics"
	observations "signalwatch/internal/observations/domain"
	obsmemory "signalwatch/internal/observations/infrastructure/memory"
	obspostgres "signalwatch/internal/observations/infrastructure/postgres"
	obssqlite "signalwatch/internal/observations/infrastructure/sqlite"
	obshttp "signalwatch/internal/observations/interfaces/http"
)

// App holds the wired components of one signalwatch process.
type App struct {
	Config     config.Config
	Log        observations.Log
	Records    alerts.RecordStore
	Dispatcher *alertapp.Dispatcher
	Monitor    *monitorapp.Monitor
	Feed       *obshttp.Feed

	logger  *log.Logger
	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewApp wires storage, transport, dispatcher, classifier, frame source and monitor from cfg.
func NewApp(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Default()
	}
	app := &App{Config: cfg, logger: logger, Feed: obshttp.NewFeed()}
	app.closers = append(app.closers, closerFunc(func() error {
		app.Feed.Close()
		return nil
	}))
	if err := app.openStorage(ctx); err != nil {
		app.Close()
		return nil, err
	}

	transport, err := newTransport(cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	tpl, err := notify.NewTemplate(cfg.Alerts.Template)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("alert template: %w", err)
	}
	dispatcher, err := alertapp.NewDispatcher(transport, app.Records, cfg.DispatchConfig(),
		alertapp.WithLogger(logger),
		alertapp.WithTemplate(tpl),
	)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Dispatcher = dispatcher
	app.closers = append(app.closers, closerFunc(func() error {
		dispatcher.Close()
		return nil
	}))

	cls, err := classifier.NewColorClassifier(cfg.Classifier)
	if err != nil {
		app.Close()
		return nil, err
	}
	source, err := newSource(cfg.Camera)
	if err != nil {
		app.Close()
		return nil, err
	}

	opts := []monitorapp.Option{
		monitorapp.WithLogger(logger),
		monitorapp.WithInterval(cfg.Monitor.CycleInterval),
		monitorapp.WithAlertHandler(dispatcher),
		monitorapp.WithAlertState(dispatcher.State),
		monitorapp.WithSink(app.Feed),
	}
	if cfg.Monitor.SnapshotDir != "" {
		archiver, err := snapshot.NewDirArchiver(cfg.Monitor.SnapshotDir)
		if err != nil {
			logger.Printf("snapshot archiver disabled: %v", err)
		} else {
			opts = append(opts, monitorapp.WithArchiver(archiver))
		}
	}
	if cfg.Redis.Addr != "" {
		statusCache, err := cache.NewStatusCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Printf("status cache disabled: %v", err)
		} else {
			app.closers = append(app.closers, statusCache)
			opts = append(opts, monitorapp.WithSink(statusCache))
		}
	}
	monitor, err := monitorapp.NewMonitor(source, cls, app.Log, opts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Monitor = monitor
	return app, nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case config.StorageMemory:
		a.Log = obsmemory.NewLog()
		a.Records = alertmemory.NewRecordStore()
		metrics.Init(nil, "", a.logger)
	case config.StorageSQLite:
		sqliteLog, err := obssqlite.Open(cfg.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sqliteLog)
		a.Log = sqliteLog
		a.Records = alertmemory.NewRecordStore()
		metrics.Init(sqliteLog.DB(), obssqlite.Table, a.logger)
	case config.StoragePostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return fmt.Errorf("db open error: %w", err)
		}
		a.closers = append(a.closers, db)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("db ping error: %w", err)
		}
		pgLog := obspostgres.NewLog(db)
		if err := pgLog.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("observation schema: %w", err)
		}
		records := alertpostgres.NewRecordStore(db)
		if err := records.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("alert record schema: %w", err)
		}
		a.Log = pgLog
		a.Records = records
		metrics.Init(db, pgLog.Table(), a.logger)
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	return nil
}

func newTransport(cfg config.Config, logger *log.Logger) (notify.Transport, error) {
	switch cfg.Alerts.Transport {
	case config.TransportWebhook:
		return notify.NewWebhookTransport(cfg.Alerts.WebhookURL)
	case config.TransportTwilio:
		return notify.NewTwilioTransport(cfg.Alerts.Twilio.AccountSID, cfg.Alerts.Twilio.AuthToken, cfg.Alerts.Twilio.From,
			notify.WithRequestTimeout(notify.RequestTimeoutFor(cfg.Alerts.SendTimeout)),
		)
	case config.TransportLog:
		return notify.NewLoggingTransport(logger), nil
	default:
		return nil, fmt.Errorf("unknown alert transport %q", cfg.Alerts.Transport)
	}
}

func newSource(cfg config.CameraConfig) (capture.Source, error) {
	switch cfg.Kind {
	case config.CameraHTTP:
		return httpsnap.NewSource(cfg.URL, httpsnap.WithTimeout(cfg.Timeout))
	case config.CameraFile:
		return filesource.NewSource(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown camera kind %q", cfg.Kind)
	}
}

// Handler builds the HTTP surface.
func (a *App) Handler() (http.Handler, error) {
	statusHandler, err := monitorhttp.NewHandler(a.Monitor, a.Config.Monitor.TriggerOnRequest, a.logger,
		monitorhttp.WithDefaultLimit(a.Config.Monitor.HistoryLimit),
	)
	if err != nil {
		return nil, err
	}
	historyHandler, err := obshttp.NewHandler(a.Log, a.Config.SignalName, a.logger)
	if err != nil {
		return nil, err
	}
	alertHandler, err := alerthttp.NewHandler(a.Records, a.logger)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/status", statusHandler)
	mux.Handle("/api/v1/status/refresh", statusHandler)
	mux.Handle("/api/v1/observations", historyHandler)
	mux.Handle("/api/v1/observations/stream", obshttp.NewStreamHandler(a.Feed))
	mux.Handle("/api/v1/exports/", historyHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return loggingMiddleware(mux, a.logger), nil
}

// Close stops the dispatcher and releases storage, in reverse wiring order.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the SSE stream working behind the middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
