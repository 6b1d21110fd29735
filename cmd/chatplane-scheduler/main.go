// Chatplane Scheduler — периодические задачи.
//
// Scheduler:
//   - Раз в сутки ставит attachment-cleanup для всех tenant'ов
//   - Раз в час удаляет завершённые job'ы по retention preset'ов
//
// Можно запускать несколько экземпляров: задачи выполняет только
// держатель advisory lock'а.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Chatplane/internal/config"
	"github.com/shaiso/Chatplane/internal/jobs"
	"github.com/shaiso/Chatplane/internal/mq"
	"github.com/shaiso/Chatplane/internal/repo"
	"github.com/shaiso/Chatplane/internal/scheduler"
	"github.com/shaiso/Chatplane/internal/telemetry"
	"github.com/shaiso/Chatplane/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("chatplane-scheduler")
	logger.Info("starting chatplane-scheduler")

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
	logger.Info("database connected")

	jobRepo := repo.NewJobRepo(pool)

	var notifier jobs.Notifier
	mqConn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, jobs will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		notifier = mq.NewPublisher(mqConn, logger)
	}

	leader := scheduler.NewAdvisoryLeader(pool, scheduler.LockKey)
	defer leader.Release(context.Background())

	sched, err := scheduler.New(scheduler.Config{
		Jobs:   jobs.NewQueue(jobs.Config{Store: jobRepo, Notifier: notifier, Logger: logger}),
		Pruner: worker.NewPruner(jobRepo, logger),
		Leader: leader,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.Ports.Scheduler
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sched.Stop()
	logger.Info("chatplane-scheduler stopped")
}
