package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rerankd/rerankd/internal/analytics"
	"github.com/rerankd/rerankd/internal/reranker/bench"
	"github.com/rerankd/rerankd/internal/reranker/handler"
	"github.com/rerankd/rerankd/internal/reranker/ranker"
	"github.com/rerankd/rerankd/internal/reranker/service"
	"github.com/rerankd/rerankd/pkg/config"
	"github.com/rerankd/rerankd/pkg/health"
	"github.com/rerankd/rerankd/pkg/kafka"
	"github.com/rerankd/rerankd/pkg/logger"
	"github.com/rerankd/rerankd/pkg/metrics"
	"github.com/rerankd/rerankd/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := ranker.New(cfg.Rerank.Workers)
	svc := service.New(r, service.Limits{
		MaxDocs:        cfg.Rerank.MaxDocs,
		MaxQueryTokens: cfg.Rerank.MaxQueryTokens,
	})
	harness := bench.New(svc, r.Workers())
	slog.Info("starting rerank service",
		"port", cfg.Server.Port,
		"workers", r.Workers(),
		"max_docs", cfg.Rerank.MaxDocs,
	)

	var m *metrics.Metrics
	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	var collector *analytics.Collector
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka)
		collector = analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		defer producer.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topic)
	}

	checker := health.NewChecker()
	checker.Register("worker_pool", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d workers", r.Workers()),
		}
	})
	checker.Register("analytics", func(ctx context.Context) health.ComponentHealth {
		if producer == nil {
			return health.ComponentHealth{Status: health.StatusUp, Message: "not configured"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "publishing"}
	})

	h := handler.New(svc, harness, collector, m, cfg.Bench, cfg.Rerank.RequestTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/rerank", h.Rerank)
	mux.HandleFunc("GET /api/v1/bench", h.Bench)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("rerank service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("rerank service stopped")
}
