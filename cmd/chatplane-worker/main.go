// Chatplane Worker — выполняет job'ы всех очередей.
//
// Worker:
//   - Получает уведомления из RabbitMQ и добирает пропущенное polling'ом
//   - Выполняет tenant-provisioning, attachment-cleanup, channel-sync, cross-org-logo-sync
//   - Реализует retry с exponential backoff по preset'у очереди
//   - Ходит в WhatsApp-gateway через общий circuit breaker
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Chatplane/internal/api"
	"github.com/shaiso/Chatplane/internal/breaker"
	"github.com/shaiso/Chatplane/internal/config"
	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/events"
	"github.com/shaiso/Chatplane/internal/gateway"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/mq"
	"github.com/shaiso/Chatplane/internal/provision"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/storage"
	"github.com/shaiso/Chatplane/internal/telemetry"
	"github.com/shaiso/Chatplane/internal/tenantdb"
	"github.com/shaiso/Chatplane/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("chatplane-worker")
	logger.Info("starting chatplane-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Каталог
	pool, err := repo.NewPool(ctx, cfg.Catalog.DSN, cfg.Catalog.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	tenantRepo := repo.NewTenantRepo(pool)
	hostRepo := repo.NewHostRepo(pool)
	logRepo := repo.NewLogRepo(pool)
	jobRepo := repo.NewJobRepo(pool)

	// Redis: события для dashboard'а
	redisClient, err := events.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	publisher := events.NewPublisher(redisClient, logger)

	// Базы tenant'ов
	creds := tenantdb.Credentials{
		HostOverride: cfg.Tenant.HostOverride,
		User:         cfg.Tenant.User,
		Password:     cfg.Tenant.Password,
		SSLMode:      cfg.Tenant.SSLMode,
	}
	manager := tenantdb.NewManager(tenantdb.Config{
		Tenants: tenantRepo,
		Hosts:   hostRepo,
		Profile: tenantdb.PoolProfile{
			MaxConns:       cfg.Tenant.MaxConns,
			IdleTimeout:    cfg.Tenant.IdleTimeout,
			ConnectTimeout: cfg.Tenant.ConnectTimeout,
		},
		Credentials: creds,
		Logger:      logger,
	})
	defer manager.CloseAll()
	stores := tenantdb.NewStores(manager)

	// Provisioning
	migrator, err := provision.NewMigrator(logRepo, logger)
	if err != nil {
		logger.Error("failed to load tenant migrations", "error", err)
		os.Exit(1)
	}
	pipeline := provision.NewPipeline(provision.Config{
		Tenants:     tenantRepo,
		Hosts:       hostRepo,
		Logs:        logRepo,
		Admin:       provision.NewPgAdmin(creds, cfg.Admin.Database, cfg.Tenant.ConnectTimeout),
		Migrator:    migrator,
		Converter:   provision.NewConverter(logger),
		Pools:       manager,
		Credentials: creds,
		Progress:    events.NewProgressReporter(publisher),
		Logger:      logger,
	})

	// WhatsApp-gateway за breaker'ом
	breakers := breaker.NewRegistry(breaker.Config{
		Threshold:    cfg.Breaker.Threshold,
		OpenTimeout:  cfg.Breaker.OpenTimeout,
		ResetTimeout: cfg.Breaker.ResetTimeout,
		Logger:       logger,
	})
	gw := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: cfg.Gateway.Timeout,
		Breaker: breakers.Get(gateway.BreakerName),
		Logger:  logger,
	})

	// Правила хранения медиа в бакете
	if cfg.Storage.EnsureLifecycle && cfg.Storage.Bucket != "" {
		ensureLifecycle(ctx, cfg.Storage, logger)
	}

	// Handlers
	registry := worker.NewRegistry()
	registry.Register(domain.JobKindTenantProvisioning, worker.NewProvisionHandler(pipeline))
	registry.Register(domain.JobKindAttachmentCleanup,
		worker.NewCleanupHandler(tenantRepo, worker.FromStores(stores), time.Now, logger))
	registry.Register(domain.JobKindChannelSync,
		worker.NewChannelSyncHandler(worker.FromStores(stores), gw, publisher, logger))
	registry.Register(domain.JobKindCrossOrgLogoSync,
		worker.NewLogoSyncHandler(tenantRepo, worker.FromStores(stores), publisher, logger))

	logger.Info("handlers registered", "kinds", registry.Kinds())

	// RabbitMQ
	presets := jobs.Presets()
	queues := make([]domain.QueueName, len(presets))
	for i, p := range presets {
		queues[i] = p.Queue
	}

	var mqConn *mq.Connection
	mqConn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn, queues); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("topology ready\n" + mq.TopologyInfo(queues))
		}
	}

	// Worker на каждую очередь
	workers := make([]*worker.Worker, 0, len(queues))
	for _, q := range queues {
		w := worker.New(worker.Config{
			Queue:       q,
			Jobs:        jobRepo,
			Registry:    registry,
			Conn:        mqConn,
			Concurrency: cfg.Worker.Concurrency,
			Logger:      logger,
		})
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start worker", "queue", q, "error", err)
			os.Exit(1)
		}
		workers = append(workers, w)
	}

	// HTTP mux: /healthz + /metrics + состояние breaker'ов
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{Breakers: breakers, Logger: logger}).RegisterBreakerRoutes(mux)

	port := ":" + cfg.Ports.Worker
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	for _, w := range workers {
		w.Stop()
	}
	logger.Info("chatplane-worker stopped")
}

// ensureLifecycle приводит lifecycle-правила бакета к окнам хранения.
// Ошибка не фатальна: cleanup в базе работает и без правил бакета.
func ensureLifecycle(ctx context.Context, sc config.StorageConfig, logger *slog.Logger) {
	client, err := storage.NewS3Client(ctx, storage.Options{
		Region:    sc.Region,
		Endpoint:  sc.Endpoint,
		AccessKey: sc.AccessKey,
		SecretKey: sc.SecretKey,
	})
	if err != nil {
		logger.Warn("failed to create s3 client", "error", err)
		return
	}

	updated, err := storage.NewLifecycle(client, sc.Bucket, logger).Ensure(ctx)
	if err != nil {
		logger.Warn("failed to ensure bucket lifecycle", "bucket", sc.Bucket, "error", err)
		return
	}
	logger.Info("bucket lifecycle checked", "bucket", sc.Bucket, "updated", updated)
}
