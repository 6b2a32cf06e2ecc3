// Command articled serves raw articles from a multistream corpus over HTTP.
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/article"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/events"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/index/sqltable"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/server/cache"
	"github.com/Adithya-Monish-Kumar-K/wikidump/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/wikidump/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/tracing"
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
	tracing.Configure(cfg.Tracing)
	slog.Info("starting article service",
		"port", cfg.Server.Port,
		"corpus", cfg.Corpus.Path,
		"driver", cfg.Store.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	table, closer, err := sqltable.Open(cfg)
	if err != nil {
		slog.Error("failed to open index store", "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	checker := health.NewChecker()

	var decoder article.BlockDecoder = corpus.NewDecoder(cfg.Corpus.Path)
	var blockCache *corpus.CachedDecoder
	if cfg.Corpus.BlockCacheSize > 0 {
		blockCache, err = corpus.NewCachedDecoder(decoder, cfg.Corpus.BlockCacheSize)
		if err != nil {
			slog.Error("failed to create block cache", "error", err)
			os.Exit(1)
		}
		decoder = blockCache
		slog.Info("block cache enabled", "blocks", cfg.Corpus.BlockCacheSize)
	}
	svc := article.NewService(table, decoder, article.WithMetrics(m))

	var articleCache *cache.ArticleCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, article caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				OnStateChange: func(name string, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			articleCache = cache.New(redisClient, cfg.Redis.CacheTTL,
				cache.WithBreaker(breaker),
				cache.WithMetrics(m),
			)
			slog.Info("article cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	opts := []handler.Option{handler.WithArticleCache(articleCache)}
	if blockCache != nil {
		opts = append(opts, handler.WithBlockCache(blockCache))
	}

	aggregator := events.NewAggregator()
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ArticleLookups)
		defer producer.Close()
		collector := events.NewCollector(producer, 100, 5*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		opts = append(opts, handler.WithTracker(collector))

		lookups := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ArticleLookups,
			cfg.Kafka.ConsumerGroup+"-analytics", events.HandleLookups(aggregator))
		go func() {
			if err := lookups.Start(ctx); err != nil {
				slog.Error("lookup consumer error", "error", err)
			}
		}()
		defer lookups.Close()
	}
	h := handler.New(svc, opts...)

	if cfg.Kafka.Enabled {
		// Each replica owns its caches, so each needs its own group to see
		// every build announcement.
		group := cfg.Kafka.ConsumerGroup + "-invalidate-" + instanceName()
		builds := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, group,
			events.HandleIndexBuilt(func(ctx context.Context, ev events.IndexBuiltEvent) error {
				if ev.Corpus != cfg.Corpus.Path {
					return nil
				}
				_, err := h.Invalidate(ctx)
				return err
			}))
		go func() {
			if err := builds.Start(ctx); err != nil {
				slog.Error("index event consumer error", "error", err)
			}
		}()
		defer builds.Close()
	}

	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		info, err := os.Stat(cfg.Corpus.Path)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d bytes", info.Size())}
	})
	checker.Register("index", health.Ping(func(ctx context.Context) error {
		_, _, err := table.NextOffset(ctx, 0)
		return err
	}, health.StatusDown))
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.Ping(redisClient.Ping, health.StatusDegraded)(ctx)
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", aggregator.StatsHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go sweepLimiter(ctx, limiter)
		chain = middleware.RateLimit(limiter, m)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	// The memory store starts empty; probes stay unready until it is built.
	go func() {
		if cfg.Store.Driver == config.DriverMemory {
			if err := loadMemoryIndex(ctx, table, cfg.Corpus.IndexDumpPath, m); err != nil {
				slog.Error("failed to build in-memory index", "error", err)
				stop()
				return
			}
		}
		checker.MarkStarted()
	}()

	slog.Info("article service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("article service stopped")
}

func loadMemoryIndex(ctx context.Context, table index.Table, dumpPath string, m *metrics.Metrics) error {
	dump, err := index.OpenDump(dumpPath)
	if err != nil {
		return err
	}
	defer dump.Close()
	stats, err := index.Build(ctx, table, dump)
	if err != nil {
		return err
	}
	m.IndexBuildRows.WithLabelValues("inserted").Add(float64(stats.Inserted))
	m.IndexBuildRows.WithLabelValues("skipped").Add(float64(stats.Skipped))
	m.IndexBuildDuration.Observe(stats.Duration.Seconds())
	return nil
}

func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func instanceName() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return fmt.Sprintf("pid%d", os.Getpid())
}
