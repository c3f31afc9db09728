// askd is the StudyFlow query service: it indexes study material, retrieves
// context for questions, and routes answer generation across AI providers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyflow-ai/studyflow/internal/assembler"
	"github.com/studyflow-ai/studyflow/internal/history"
	"github.com/studyflow-ai/studyflow/internal/ingest"
	"github.com/studyflow-ai/studyflow/internal/orchestrator"
	"github.com/studyflow-ai/studyflow/internal/provider"
	"github.com/studyflow-ai/studyflow/internal/router"
	"github.com/studyflow-ai/studyflow/internal/server"
	"github.com/studyflow-ai/studyflow/pkg/cache"
	"github.com/studyflow-ai/studyflow/pkg/config"
	"github.com/studyflow-ai/studyflow/pkg/health"
	"github.com/studyflow-ai/studyflow/pkg/kafka"
	"github.com/studyflow-ai/studyflow/pkg/logger"
	"github.com/studyflow-ai/studyflow/pkg/metrics"
	"github.com/studyflow-ai/studyflow/pkg/middleware"
	"github.com/studyflow-ai/studyflow/pkg/postgres"
	"github.com/studyflow-ai/studyflow/pkg/redis"
	"github.com/studyflow-ai/studyflow/pkg/resilience"
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
	log := slog.Default()
	log.Info("starting askd", slog.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// cache backend: Redis when reachable, in-process fallback otherwise
	var store cache.Store
	checker := health.NewChecker(5 * time.Second)

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, using in-memory cache", slog.String("error", err.Error()))
		store = cache.NewMemoryStore()
	} else {
		defer redisClient.Close()
		store = cache.NewRedisStore(redisClient)
		checker.Register("redis", redisClient.Ping)
	}
	sharedCache := cache.New(store, log)

	rt := router.New(sharedCache, cfg.Router.CacheTTL, routerBuckets(cfg.Router.Buckets), log, m)
	for _, pc := range cfg.Providers {
		p, err := buildProvider(pc, m, log)
		if err != nil {
			log.Warn("skipping provider", slog.String("provider", pc.Name), slog.String("error", err.Error()))
			continue
		}
		rt.Register(p)
	}

	orch := orchestrator.New(sharedCache, rt, assembler.Config{
		BaseTTL:       cfg.Router.CacheTTL,
		ResultLimit:   cfg.Retrieval.DefaultLimit,
		ExcerptBudget: cfg.Retrieval.ExcerptBudget,
	}, log, m)

	checker.Register("providers", func(context.Context) error {
		if len(rt.GetStats().AvailableProviders) == 0 {
			return fmt.Errorf("no providers registered")
		}
		return nil
	})

	var hist *history.Store
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			log.Warn("postgres unavailable, history disabled", slog.String("error", err.Error()))
		} else {
			defer pg.Close()
			hist, err = history.NewStore(ctx, pg, log)
			if err != nil {
				log.Warn("history store init failed", slog.String("error", err.Error()))
				hist = nil
			} else {
				checker.Register("postgres", func(ctx context.Context) error {
					return pg.DB.PingContext(ctx)
				})
			}
		}
	}

	var publisher *ingest.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DocumentTopic, log)
		defer producer.Close()
		publisher = ingest.NewPublisher(producer)

		consumer := ingest.NewConsumer(
			kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.DocumentTopic, cfg.Kafka.ConsumerGroup, log),
			orch, log,
		)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("ingest consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	mux := http.NewServeMux()
	handler := server.New(orch, publisher, hist, cfg.Retrieval, log)
	handler.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LivenessHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadinessHandler())

	chain := middleware.RequestID(
		middleware.Metrics(m)(
			middleware.Timeout(cfg.Server.WriteTimeout)(mux),
		),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	go func() {
		log.Info("http server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if metricsShutdown != nil {
		if err := metricsShutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	log.Info("stopped")
}

// buildProvider instantiates the adapter named by cfg.Kind.
func buildProvider(cfg config.ProviderConfig, m *metrics.Metrics, log *slog.Logger) (provider.Provider, error) {
	switch cfg.Kind {
	case "openai-compat":
		p := provider.NewHTTP(provider.HTTPConfig{
			Name:      cfg.Name,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKeyEnv: cfg.APIKeyEnv,
			Timeout:   cfg.Timeout,
			MaxTokens: cfg.MaxTokens,
		}, log)
		p.Breaker().OnStateChange(func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		})
		return p, nil
	case "local":
		return provider.NewLocal(cfg.Name), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}

func routerBuckets(buckets []config.ClassifierBucket) []router.Bucket {
	out := make([]router.Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, router.Bucket{
			Name:      b.Name,
			Keywords:  b.Keywords,
			Providers: b.Providers,
		})
	}
	return out
}
