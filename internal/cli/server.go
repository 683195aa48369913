package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"singbirds-quiz-service/internal/app"
	"singbirds-quiz-service/internal/catalog"
	"singbirds-quiz-service/internal/config"
	"singbirds-quiz-service/internal/infra/memory"
	"singbirds-quiz-service/internal/infra/postgres"
	redisstore "singbirds-quiz-service/internal/infra/redis"
	"singbirds-quiz-service/internal/metrics"
	transport "singbirds-quiz-service/internal/transport/http"
	"singbirds-quiz-service/internal/wiki"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, cfg, logLevel)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	catalogClient := newCatalogClient(cfg, logger)

	// The Postgres mirror, when configured, replaces live catalog listings.
	var loader memory.PoolLoader = catalogClient
	var hotspots transport.HotspotLister = catalogClient
	if pool != nil {
		mirror := postgres.NewPoolLoader(pool)
		loader = mirror
		hotspots = mirror
	}

	poolTTL := config.TTLDuration(cfg.Catalog.PoolTTL, 10*time.Minute)
	var pools app.PoolRepository
	if redisClient != nil {
		pools = redisstore.NewPoolRepository(redisClient, loader, poolTTL)
	} else {
		pools = memory.NewPoolRepository(loader, poolTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	quizMetrics, err := metrics.NewQuizMetrics(registry)
	if err != nil {
		return err
	}

	describer := wiki.NewClient(wiki.Config{
		BaseURL:       cfg.Wiki.BaseURL,
		Timeout:       config.TTLDuration(cfg.Wiki.Timeout, 5*time.Second),
		CacheTTL:      config.TTLDuration(cfg.Wiki.CacheTTL, time.Hour),
		RatePerSecond: cfg.Wiki.RatePerSecond,
		ThumbnailSize: cfg.Wiki.ThumbnailSize,
	}, wiki.WithLogger(logger))

	loadBudget := config.TTLDuration(cfg.Quiz.LoadBudget, 30*time.Second)
	service := app.NewQuizService(store, pools, catalogClient,
		app.WithRetryPolicy(app.RetryPolicy{
			MaxRetries:     cfg.MaxRetries(),
			AttemptTimeout: config.TTLDuration(cfg.Quiz.AttemptTimeout, 8*time.Second),
		}),
		app.WithLoadBudget(loadBudget),
		app.WithCountLimits(app.CountLimits{
			Default: cfg.Quiz.DefaultQuestions,
			Min:     cfg.Quiz.MinQuestions,
			Max:     cfg.Quiz.MaxQuestions,
		}),
		app.WithDescriber(describer),
		app.WithObserver(quizMetrics),
		app.WithLogger(logger),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	transport.NewAPI(service, hotspots, logger).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(service, logger).ServeWS)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout(loadBudget),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("starting quiz service", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	sessionTTL := config.TTLDuration(cfg.Quiz.SessionTTL, 30*time.Minute)
	group.Go(func() error {
		sweepIdleSessions(groupCtx, service, sessionTTL, logger)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

// writeTimeout leaves room to encode a response after a full load budget.
// Without a budget, session calls are unbounded and so is the write.
func writeTimeout(loadBudget time.Duration) time.Duration {
	if loadBudget <= 0 {
		return 0
	}
	return loadBudget + 15*time.Second
}

func newCatalogClient(cfg config.Config, logger *slog.Logger) *catalog.Client {
	return catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithOrigin(cfg.Catalog.Origin),
		catalog.WithHTTPClient(&http.Client{Timeout: config.TTLDuration(cfg.Catalog.Timeout, 10*time.Second)}),
		catalog.WithLogger(logger),
	)
}

// sweepIdleSessions discards sessions idle for longer than ttl until ctx ends.
func sweepIdleSessions(ctx context.Context, service *app.QuizService, ttl time.Duration, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := service.ExpireIdle(ttl); n > 0 {
				logger.Info("expired idle sessions", "count", n)
			}
		}
	}
}
