package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/facturacr/einvoice-engine/internal/certs"
	"github.com/facturacr/einvoice-engine/internal/clave"
	"github.com/facturacr/einvoice-engine/internal/config"
	"github.com/facturacr/einvoice-engine/internal/hacienda"
	"github.com/facturacr/einvoice-engine/internal/handler"
	"github.com/facturacr/einvoice-engine/internal/infra/postgresql"
	"github.com/facturacr/einvoice-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/facturacr/einvoice-engine/internal/infra/redis"
	"github.com/facturacr/einvoice-engine/internal/observability"
	"github.com/facturacr/einvoice-engine/internal/queue"
	"github.com/facturacr/einvoice-engine/internal/repository"
	"github.com/facturacr/einvoice-engine/internal/service"
	"github.com/facturacr/einvoice-engine/internal/signer"
	"github.com/facturacr/einvoice-engine/internal/transport"
	"github.com/facturacr/einvoice-engine/internal/xmlgen"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	lease, err := infraredis.NewRedisLease(rdb)
	if err != nil {
		logger.Fatal("redis lease initialization failed", zap.Error(err))
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer broker.Close()
	alerts := queue.NewRabbitMQPublisher(broker)

	credentials, err := certs.NewProvider(cfg.SigningCertPath, cfg.SigningKeyPath, logger)
	if err != nil {
		logger.Fatal("signing credential setup failed", zap.Error(err))
	}
	handle, err := credentials.Resolve()
	if err != nil {
		logger.Fatal("signing credential resolution failed", zap.Error(err))
	}
	docSigner, err := signer.NewSigner(handle)
	if err != nil {
		logger.Fatal("signer initialization failed", zap.Error(err))
	}

	haciendaClient, err := hacienda.NewClient(hacienda.Options{
		BaseURL:  cfg.HaciendaBaseURL,
		Username: cfg.HaciendaUsername,
		Password: cfg.HaciendaPassword,
	}, logger)
	if err != nil {
		logger.Fatal("hacienda client initialization failed", zap.Error(err))
	}

	documents := repository.NewGormDocumentRepo(db)
	entries := repository.NewGormRetryRepo(db)

	retryQueue, err := service.NewRetryQueueService(entries, logger)
	if err != nil {
		logger.Fatal("retry queue service initialization failed", zap.Error(err))
	}

	lifecycle, err := service.NewLifecycleService(
		documents,
		retryQueue,
		clave.New(),
		xmlgen.NewBuilder(),
		docSigner,
		haciendaClient,
		alerts,
		logger,
	)
	if err != nil {
		logger.Fatal("lifecycle service initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewRetryScheduler(
		entries,
		lifecycle,
		lease,
		cfg.SchedulerInterval(),
		cfg.SchedulerBatchSize,
		logger,
	)
	if err != nil {
		logger.Fatal("retry scheduler initialization failed", zap.Error(err))
	}

	poller, err := service.NewStatusPoller(
		documents,
		lifecycle,
		lease,
		cfg.PollInterval(),
		cfg.PollBatchSize,
		logger,
	)
	if err != nil {
		logger.Fatal("status poller initialization failed", zap.Error(err))
	}

	janitor, err := service.NewQueueJanitor(entries, lease, 0, cfg.RetentionPeriod(), logger)
	if err != nil {
		logger.Fatal("queue janitor initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	lifecycle.SetMetrics(metrics)
	retryQueue.SetMetrics(metrics)
	scheduler.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterDocumentRoutes(app, lifecycle); err != nil {
		logger.Fatal("document route registration failed", zap.Error(err))
	}
	if err := handler.RegisterRetryRoutes(app, retryQueue); err != nil {
		logger.Fatal("retry route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("einvoice-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-groupCtx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})
	g.Go(func() error { return scheduler.Start(groupCtx) })
	g.Go(func() error { return poller.Start(groupCtx) })
	g.Go(func() error { return janitor.Start(groupCtx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("einvoice-engine terminated", zap.Error(err))
	}

	logger.Info("einvoice-engine stopped")
}
