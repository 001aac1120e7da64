package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mailrun/mailrun/config"
	"github.com/mailrun/mailrun/internal/adapters/dispatcher"
	"github.com/mailrun/mailrun/internal/data"
	httpx "github.com/mailrun/mailrun/internal/http"
	"github.com/mailrun/mailrun/internal/observability/statsd"
	"github.com/mailrun/mailrun/internal/ratelimit"
	"github.com/mailrun/mailrun/internal/recipient"
	"github.com/mailrun/mailrun/internal/service"
	"github.com/mailrun/mailrun/internal/smtp"
	"github.com/mailrun/mailrun/internal/storage"
	"github.com/mailrun/mailrun/internal/template"
)

// App holds the wired application with its long-running services.
type App struct {
	cfg    config.AppConfig
	logger *slog.Logger

	db      *sql.DB
	redis   redis.UniversalClient
	metrics *statsd.Client
	runner  *dispatcher.Runner
	server  *http.Server
}

// NewApp wires every service from configuration. Connections are opened and
// verified here so startup fails fast.
func NewApp(cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	if err := ValidateServiceConfig(&cfg); err != nil {
		return nil, err
	}

	db, err := ConnectDB(cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	redisClient, err := ConnectRedis(cfg.Redis, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.StatsdEnabled,
		Address: cfg.Observability.StatsdAddress,
		Prefix:  cfg.Observability.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("statsd: %w", err)
	}

	artifacts, err := storage.NewStore(storage.Options{Dir: cfg.Uploads.Dir, Logger: logger})
	if err != nil {
		return nil, err
	}

	repo := data.NewJobRepo(db, data.RepoConfig{Logger: logger})
	statsCache := data.NewStatsCache(redisClient, cfg.Cache.StatsTTL, logger)

	dispatchSvc, err := service.NewDispatcherService(service.DispatcherOptions{
		Store:     repo,
		Artifacts: artifacts,
		Source:    recipient.NewCSVSource(logger),
		Renderer:  template.NewRenderer(),
		Dialer:    smtp.NewDialer(logger),
		Limiter:   ratelimit.NewHourlyLimiter(cfg.Dispatch.HourlyLimit),
		Config:    cfg.Dispatch,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher service: %w", err)
	}

	runner, err := dispatcher.NewRunner(dispatcher.RunnerOptions{
		Runner:            dispatchSvc,
		MaxConcurrentJobs: cfg.Dispatch.MaxConcurrentJobs,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatcher runner: %w", err)
	}

	jobSvc, err := service.NewJobService(service.JobServiceOptions{
		Store:  repo,
		Cache:  statsCache,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("job service: %w", err)
	}

	router, err := httpx.NewRouter(httpx.RouterServices{
		Jobs:           jobSvc,
		Dispatcher:     runner,
		Artifacts:      artifacts,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		redis:   redisClient,
		metrics: metrics,
		runner:  runner,
		server:  server,
	}, nil
}

// Run starts the enabled services and blocks until a signal arrives or a
// service fails. In-flight jobs get to finalize before the process exits.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.IsDispatcherEnabled() {
		g.Go(func() error {
			return a.runner.Run(gctx)
		})
	}

	if a.cfg.IsHTTPServerEnabled() {
		g.Go(func() error {
			a.logger.Info("http server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	a.close()
	return err
}

// close releases connections. Errors are logged, not returned; the process
// is exiting anyway.
func (a *App) close() {
	if err := a.metrics.Close(); err != nil {
		a.logger.Warn("closing statsd failed", "error", err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis failed", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database failed", "error", err)
	}
}
