// Chatplane Gateway — realtime-доставка событий в dashboard.
//
// Gateway:
//   - Слушает топики Redis (чаты, сообщения, typing, синхронизация каналов)
//   - Находит комнату получателя, в том числе в чужой организации
//   - Отдаёт комнаты клиентам как Server-Sent Events (GET /events)
//
// Состояние комнат живёт в памяти процесса.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Chatplane/internal/config"
	"github.com/shaiso/Chatplane/internal/domain"
	"github.com/shaiso/Chatplane/internal/events"
	"github.com/shaiso/Chatplane/internal/realtime"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/routing"
	"github.com/shaiso/Chatplane/internal/telemetry"
	"github.com/shaiso/Chatplane/internal/tenantdb"
)

// clientBuffer — кадров в очереди одного SSE-клиента.
const clientBuffer = 64

func main() {
	logger := telemetry.SetupLogger("chatplane-gateway")
	logger.Info("starting chatplane-gateway")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.Catalog.DSN, cfg.Catalog.MaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	manager := tenantdb.NewManager(tenantdb.Config{
		Tenants: repo.NewTenantRepo(pool),
		Hosts:   repo.NewHostRepo(pool),
		Profile: tenantdb.PoolProfile{
			MaxConns:       cfg.Tenant.MaxConns,
			IdleTimeout:    cfg.Tenant.IdleTimeout,
			ConnectTimeout: cfg.Tenant.ConnectTimeout,
		},
		Credentials: tenantdb.Credentials{
			HostOverride: cfg.Tenant.HostOverride,
			User:         cfg.Tenant.User,
			Password:     cfg.Tenant.Password,
			SSLMode:      cfg.Tenant.SSLMode,
		},
		Logger: logger,
	})
	defer manager.CloseAll()

	redisClient, err := events.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	envelopes, err := events.NewSubscriber(redisClient, logger).Subscribe(ctx, domain.Topics()...)
	if err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(clientBuffer, logger)
	router := routing.NewRouter(
		routing.NewResolver(routing.FromStores(tenantdb.NewStores(manager))),
		hub,
		logger,
	)
	go router.Run(ctx, envelopes)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/events", hub.Handler())

	addr := ":" + cfg.Ports.Gateway
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

	// SSE-соединения бесконечны: ждём недолго и закрываем.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
		server.Close()
	}

	logger.Info("stopped")
}
