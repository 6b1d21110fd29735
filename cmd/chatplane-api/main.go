// Chatplane API — административный HTTP API.
//
// API:
//   - Ставит provisioning, cleanup, channel-sync и logo-sync в очереди
//   - Отдаёт состояние job'ов и health баз tenant'ов
//
// Сам ничего не выполняет: работа уходит в chatplane-worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Chatplane/internal/api"
	"github.com/shaiso/Chatplane/internal/config"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/mq"
	"github.com/shaiso/Chatplane/internal/provision"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/telemetry"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatplane_api_http_requests_total",
		Help: "Total HTTP requests handled by chatplane-api",
	})
)

func main() {
	logger := telemetry.SetupLogger("chatplane-api")
	logger.Info("starting chatplane-api")

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

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to migrate catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	tenantRepo := repo.NewTenantRepo(pool)
	hostRepo := repo.NewHostRepo(pool)
	logRepo := repo.NewLogRepo(pool)
	jobRepo := repo.NewJobRepo(pool)

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

	// Pipeline нужен API только для health-check.
	pipeline := provision.NewPipeline(provision.Config{
		Tenants:     tenantRepo,
		Hosts:       hostRepo,
		Logs:        logRepo,
		Admin:       provision.NewPgAdmin(creds, cfg.Admin.Database, cfg.Tenant.ConnectTimeout),
		Pools:       manager,
		Credentials: creds,
		Logger:      logger,
	})

	// RabbitMQ: без него job'ы подхватит polling worker'а
	var notifier jobs.Notifier
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, jobs will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		notifier = mq.NewPublisher(mqConn, logger)
		logger.Info("RabbitMQ connected")
	}

	queue := jobs.NewQueue(jobs.Config{
		Store:    jobRepo,
		Notifier: notifier,
		Logger:   logger,
	})

	handler := api.NewHandler(api.Config{
		Queue:  queue,
		Jobs:   jobRepo,
		Health: pipeline,
		Hosts:  hostRepo,
		Logger: logger,
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":" + cfg.Ports.API
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
