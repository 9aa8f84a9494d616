package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduler/internal/api/router"
	"github.com/wolfman30/clinic-scheduler/internal/appointments"
	appconfig "github.com/wolfman30/clinic-scheduler/internal/config"
	"github.com/wolfman30/clinic-scheduler/internal/events"
	"github.com/wolfman30/clinic-scheduler/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduler/internal/schedule"
	"github.com/wolfman30/clinic-scheduler/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting clinic-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bookingMetrics *metrics.BookingMetrics
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		bookingMetrics = metrics.NewBookingMetrics(nil)
		metricsHandler = promhttp.Handler()
	}

	// Persistence. Without DATABASE_URL the service runs entirely in
	// memory for local development.
	var (
		templates schedule.Source
		writer    *schedule.Cache
		repo      appointments.Repository
		sink      events.Sink
		deliverer *events.Deliverer
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}

		store := schedule.NewStore(pool)
		writer = schedule.NewCache(store, newRedisClient(cfg, logger))
		templates = writer
		repo = appointments.NewPostgresRepository(pool)

		outbox := events.NewOutboxStore(pool)
		sink = outbox
		deliverer = events.NewDeliverer(outbox, newDeliveryHandler(ctx, cfg, logger), logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxInterval)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		repo = appointments.NewMemoryRepository()
		memSink := events.NewMemorySink()
		sink = memSink
		templates = fixedTemplateSource{cfg: cfg}
	}

	policy := appointments.CancellationPolicy{
		MinNotice: time.Duration(cfg.CancelNoticeHours) * time.Hour,
		BypassNotice: map[appointments.Role]bool{
			appointments.RoleProvider: true,
			appointments.RoleAdmin:    true,
		},
	}
	service := appointments.NewService(templates, repo, sink, logger,
		appointments.WithCancellationPolicy(policy),
		appointments.WithRetryMax(cfg.BookingRetryMax),
		appointments.WithMetrics(bookingMetrics),
	)

	sweeper := appointments.NewSweeper(service, repo, logger,
		appointments.WithSweepInterval(cfg.SweepInterval),
		appointments.WithNoShowGrace(cfg.NoShowGrace),
		appointments.WithReminderLeadTime(cfg.ReminderLeadTime),
		appointments.WithSweeperMetrics(bookingMetrics),
	)
	go sweeper.Start(ctx)
	if deliverer != nil {
		go deliverer.Start(ctx)
	}

	var scheduleHandler *schedule.Handler
	if writer != nil {
		scheduleHandler = schedule.NewHandler(writer, logger)
	}
	r := router.New(&router.Config{
		Logger:              logger,
		ScheduleHandler:     scheduleHandler,
		AppointmentsHandler: appointments.NewHandler(service, logger),
		MetricsHandler:      metricsHandler,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newRedisClient(cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("redis unreachable, caching disabled", "error", err)
		return nil
	}
	return client
}

// newDeliveryHandler selects the outbox destination: SQS when a queue
// URL is configured, structured logs otherwise.
func newDeliveryHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) events.DeliveryHandler {
	if cfg.EventQueueURL == "" {
		return events.NewLogHandler(logger)
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Error("failed to load AWS config, falling back to log delivery", "error", err)
		return events.NewLogHandler(logger)
	}
	client := awssqs.NewFromConfig(awsCfg, func(o *awssqs.Options) {
		if cfg.AWSEndpointOverride != "" {
			o.BaseEndpoint = &cfg.AWSEndpointOverride
		}
	})
	return events.NewSQSPublisher(client, cfg.EventQueueURL)
}

// fixedTemplateSource serves the default weekday template for every
// provider in the in-memory development mode.
type fixedTemplateSource struct {
	cfg *appconfig.Config
}

func (f fixedTemplateSource) Get(_ context.Context, providerID string) (*schedule.Template, error) {
	t := schedule.DefaultTemplate(providerID)
	if f.cfg.DefaultTimezone != "" {
		t.Timezone = f.cfg.DefaultTimezone
	}
	if f.cfg.DefaultSlotDuration > 0 {
		t.SlotDurationMinutes = f.cfg.DefaultSlotDuration
	}
	return t, nil
}
