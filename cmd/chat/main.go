// Command chat serves the grounded chat API.
//
// Each turn retrieves the most relevant excerpts of the knowledge document,
// builds a prompt around them and the session's history, and asks the
// configured chat-completion model for an answer. Chat events are published
// to Kafka and aggregated for GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/chat [-config configs/development.yaml] [-env .env]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/llm"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/memory"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/prompt"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/internal/retrieval/cache"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/grounded-chat/pkg/resilience"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting chat service",
		"port", cfg.Server.Port,
		"corpus_source", cfg.Corpus.Source,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("chat service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("chat service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker()

	// PostgreSQL holds the corpus when it is the configured source, the API
	// keys when auth is on, and the analytics snapshots.
	var db *postgres.Client
	needDB := cfg.Corpus.Source == config.SourcePostgres || cfg.Auth.Enabled
	if needDB || cfg.Analytics.SnapshotInterval > 0 {
		conn, err := postgres.New(cfg.Postgres)
		switch {
		case err == nil:
			db = conn
			defer db.Close()
			checker.Register("postgres", health.Ping(db.Ping, health.StatusDown))
		case needDB:
			return fmt.Errorf("connecting to postgres: %w", err)
		default:
			slog.Warn("postgres unavailable, analytics snapshots disabled", "error", err)
		}
	}

	var source corpus.Source = corpus.FileSource{Path: cfg.Corpus.Path}
	sourceID := cfg.Corpus.Path
	if cfg.Corpus.Source == config.SourcePostgres {
		source = corpus.NewPostgresSource(db)
		sourceID = cfg.Corpus.SourceID
	}
	loader := corpus.NewLoader(source, sourceID, cfg.Corpus.ChunkSize)
	loader.OnLoad(func(c *corpus.Corpus) {
		m.CorpusChunks.Set(float64(len(c.Chunks)))
	})
	if _, err := loader.Load(ctx); err != nil {
		slog.Warn("corpus not loaded at startup, answering without excerpts until it is", "error", err)
	}
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		if c, ok := loader.Loaded(); ok {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d chunks", len(c.Chunks))}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "corpus unavailable"}
	})

	var resultCache *cache.ResultCache
	var retrievalCache retrieval.ResultCache
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, retrieval cache disabled", "error", err)
		} else {
			defer rc.Close()
			resultCache = cache.New(rc, cfg.Redis.CacheTTL, m)
			retrievalCache = resultCache
			checker.Register("redis", health.Ping(rc.Ping, health.StatusDegraded))
		}
	}

	index := retrieval.NewIndex(loader, retrievalCache, cfg.Corpus.TopK, m)
	store := memory.NewStore()
	assembler := prompt.NewAssembler(index, store)

	openai, err := llm.NewOpenAI(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}
	model := llm.NewGuarded(openai, cfg.LLM, m)
	slog.Info("model client ready", "model", openai.Model(), "max_attempts", cfg.LLM.MaxAttempts)
	checker.Register("llm", func(ctx context.Context) health.ComponentHealth {
		state := model.Breaker().GetState()
		if state == resilience.StateOpen {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit open"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "circuit " + state.String()}
	})

	throttle := ratelimit.New(cfg.Chat.RateLimitPerMinute, cfg.Chat.RateLimitBurst)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		throttle.Run(gctx, time.Minute)
		return nil
	})

	agg := analytics.NewAggregator()
	opts := chat.Options{
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		Throttle:         throttle,
		Metrics:          m,
	}
	var snapshots analytics.SnapshotLister
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ChatEvents)
		defer producer.Close()
		checker.Register("kafka", health.Ping(producer.Ping, health.StatusDegraded))

		collector := analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(gctx)
		defer collector.Close()
		opts.Tracker = collector

		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ChatEvents, analytics.HandleEvent(agg))
		g.Go(func() error {
			if err := consumer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("analytics consumer stopped", "error", err)
			}
			return nil
		})

		if db != nil && cfg.Analytics.SnapshotInterval > 0 {
			snapshotStore := aggregator.NewStore(db)
			snapshotStore.StartPeriodicSave(gctx, agg, cfg.Analytics.SnapshotInterval)
			snapshots = snapshotStore
		}
	} else {
		opts.Tracker = trackerFunc(agg.Record)
	}

	service := chat.NewService(assembler, store, model, opts)
	var invalidator chat.CacheInvalidator
	if resultCache != nil {
		invalidator = resultCache
	}
	chatHandler := chat.NewHandler(service, loader, invalidator, chat.HandlerConfig{
		DefaultSessionID: cfg.Chat.DefaultSessionID,
		RAGByDefault:     cfg.Chat.RAGByDefault,
	})
	analyticsHandler := analytics.NewHandler(agg, snapshots)

	mux := http.NewServeMux()
	chatHandler.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", analyticsHandler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Auth.Enabled {
		clients := ratelimit.New(cfg.Auth.RequestsPerMinute, cfg.Auth.Burst)
		g.Go(func() error {
			clients.Run(gctx, time.Minute)
			return nil
		})
		chain = ratelimit.Middleware(clients, clientKey)(chain)
		chain = auth.Middleware(auth.NewKeyStore(db))(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
	}

	g.Go(func() error {
		slog.Info("chat service listening", "addr", server.Addr, "components", checker.Names())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// clientKey charges requests to the authenticated key, using the key's own
// limit when it has one.
func clientKey(r *http.Request) (string, int) {
	if info := auth.KeyFromContext(r.Context()); info != nil {
		return "key:" + info.ID, info.RateLimit
	}
	return "ip:" + ratelimit.ClientIP(r), 0
}

// trackerFunc feeds chat events straight into the local aggregator when
// Kafka publishing is disabled.
type trackerFunc func(analytics.ChatEvent)

func (f trackerFunc) Track(e analytics.ChatEvent) { f(e) }
