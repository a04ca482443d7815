package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/LeventeLantos/sos-dispatch/internal/api"
	"github.com/LeventeLantos/sos-dispatch/internal/cache"
	"github.com/LeventeLantos/sos-dispatch/internal/config"
	"github.com/LeventeLantos/sos-dispatch/internal/contacts"
	"github.com/LeventeLantos/sos-dispatch/internal/gateway"
	"github.com/LeventeLantos/sos-dispatch/internal/history"
	"github.com/LeventeLantos/sos-dispatch/internal/logger"
	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
	"github.com/LeventeLantos/sos-dispatch/internal/notify"
	"github.com/LeventeLantos/sos-dispatch/internal/queue"
	"github.com/LeventeLantos/sos-dispatch/internal/repo"
	"github.com/LeventeLantos/sos-dispatch/internal/scheduler"
	"github.com/LeventeLantos/sos-dispatch/internal/sos"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("sosd exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	db, err := repo.Open(repo.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		PostGIS:      cfg.Database.PostGIS,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close(db) }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, zl, db, rdb, reg)
	if err != nil {
		return err
	}
	return a.serve(ctx)
}

// app is the wired process: HTTP surface, notification worker and queue
// maintenance.
type app struct {
	server *http.Server
	worker *notify.Worker
	maint  *scheduler.Scheduler
	cron   *scheduler.Cron
	log    *zap.Logger
}

func newApp(cfg *config.Config, zl *zap.Logger, db *gorm.DB, rdb *redis.Client, reg *prometheus.Registry) (*app, error) {
	m := metrics.New(reg)
	q := queue.New(rdb, cfg.Queue.Name, cfg.Queue.Lease)

	resolver := contacts.NewResolver(repo.NewDirectory(db), cfg.Directory.CacheSize, cfg.Directory.CacheTTL, zl)
	producer := notify.NewProducer(q)
	svc := sos.NewService(
		repo.NewAlertStore(db),
		resolver,
		producer,
		sos.WithLocationCache(cache.NewRedisLocationCache(rdb, cfg.Redis.LocationTTL)),
		sos.WithLogger(zl),
		sos.WithMetrics(m),
	)

	dispatcher := notify.NewDispatcher(
		repo.NewNotificationRepo(db),
		resolver,
		notify.Gateways{
			SMS:  gateway.NewSMSWebhook(cfg.Gateways.SMSWebhookURL),
			Push: gateway.NewPushWebhook(cfg.Gateways.PushWebhookURL),
			Email: gateway.NewSMTPMailer(gateway.SMTPConfig{
				Host:     cfg.Gateways.SMTPHost,
				Port:     cfg.Gateways.SMTPPort,
				Username: cfg.Gateways.SMTPUsername,
				Password: cfg.Gateways.SMTPPassword,
				From:     cfg.Gateways.SMTPFrom,
				TLS:      cfg.Gateways.SMTPTLS,
			}),
		},
		gateway.NewTemplates(cfg.Gateways.MapsBaseURL),
		zl,
		m,
	)
	worker := notify.NewWorker(q, dispatcher, cfg.Queue.WorkerConcurrency, cfg.Queue.PollInterval, zl, m)

	maintenance := notify.NewMaintenance(q, cfg.Queue.CleanGrace, zl, m)
	maint, err := scheduler.New("queue-maintenance", cfg.Queue.MaintenanceInterval, maintenance.Tick, zl)
	if err != nil {
		return nil, err
	}
	crons := scheduler.NewCron(time.UTC, zl)
	if _, err := crons.AddWithCtx(cfg.Queue.CleanSchedule, maintenance.Clean); err != nil {
		return nil, errors.Wrap(err, "schedule queue clean")
	}

	rl, err := newLimiter(cfg.Server.RateLimit)
	if err != nil {
		return nil, err
	}

	h := api.NewHandler(
		svc,
		history.NewAggregator(repo.NewAlertStore(db)),
		api.NewAdminHandler(q, maint, cfg.Queue.CleanGrace, zl),
		api.NewNotificationsHandler(producer, resolver, zl),
		zl,
	)
	router := api.Router(h, api.RouterOptions{Limiter: rl, Metrics: m, Gatherer: reg})

	return &app{
		server: newServer(cfg.Server, router),
		worker: worker,
		maint:  maint,
		cron:   crons,
		log:    zl,
	}, nil
}

func (a *app) serve(ctx context.Context) error {
	a.maint.Start()
	a.cron.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.worker.Run(gctx) })
	g.Go(func() error {
		a.log.Info("http server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := a.server.Shutdown(shutdownCtx)

		a.maint.Stop()
		a.cron.Stop()
		return err
	})

	return g.Wait()
}

func newServer(cfg config.ServerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           h,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

func newLimiter(rate string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, errors.Wrapf(err, "rate limit %q", rate)
	}
	return limiter.New(memory.NewStore(), r), nil
}
