package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	sharedcache "github.com/radieske/friendsbet/internal/shared/cache"
	"github.com/radieske/friendsbet/internal/shared/config"
	"github.com/radieske/friendsbet/internal/shared/db"
	"github.com/radieske/friendsbet/internal/shared/kafka"
	"github.com/radieske/friendsbet/internal/shared/logger"
	"github.com/radieske/friendsbet/internal/shared/metrics"
	"github.com/radieske/friendsbet/internal/wager-service/cache"
	httpapi "github.com/radieske/friendsbet/internal/wager-service/http"
	"github.com/radieske/friendsbet/internal/wager-service/producer"
	"github.com/radieske/friendsbet/internal/wager-service/repo"
	"github.com/radieske/friendsbet/internal/wager-service/ws"
	"github.com/radieske/friendsbet/internal/wagering/betbook"
	"github.com/radieske/friendsbet/internal/wagering/ledger"
	"github.com/radieske/friendsbet/internal/wagering/registry"
	"github.com/radieske/friendsbet/internal/wagering/settlement"
	"github.com/radieske/friendsbet/internal/wagering/storage/postgres"
	"github.com/radieske/friendsbet/internal/wagering/storage/sqlite"
	"github.com/radieske/friendsbet/internal/wagering/storage/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting service",
		zap.String("storage", cfg.Storage),
		zap.Bool("standalone", cfg.Standalone))

	// storage
	var (
		store *sqlstore.Store
		pg    *sql.DB
	)
	switch cfg.Storage {
	case "postgres":
		pg, err = db.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		store, err = postgres.New(ctx, pg)
	case "sqlite":
		store, err = sqlite.Open(cfg.SQLitePath)
	}
	if err != nil {
		log.Fatal("failed to open wagering store", zap.Error(err))
	}
	defer store.Close()
	log.Info("wagering store ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewWager(reg)

	l := ledger.New(store, log)
	events := registry.New(store, log)
	bets := betbook.New(store, events, l, log)
	engine := settlement.New(store, events, bets, l, log)

	deps := httpapi.Deps{
		Log:             log,
		Metrics:         m,
		Ledger:          l,
		Events:          events,
		Bets:            bets,
		Settlement:      engine,
		StartingBalance: cfg.StartingBalance,
	}
	if pg != nil {
		deps.Activity = &repo.ActivityReadRepo{DB: pg}
	}

	var redisClient *redis.Client
	if !cfg.Standalone {
		redisClient, err = sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("redis connected")

		writer := kafka.NewWriter(cfg.KafkaBrokers, "")
		defer writer.Close()

		hub := ws.NewHub(log, allowOrigins(cfg.WSAllowedOrigins))
		ws.StartRedisSubscriber(ctx, log, redisClient, cfg.RedisPubSubChannel, hub)

		deps.Cache = cache.New(redisClient, cfg.EventCacheTTL)
		deps.Publisher = producer.NewKafkaPublisher(writer, producer.Topics{
			EventCreated:  cfg.TopicEventCreated,
			EventApproved: cfg.TopicEventApproved,
			BetPlaced:     cfg.TopicBetPlaced,
			EventResolved: cfg.TopicEventResolved,
		})
		deps.WS = hub.HandleWS
		log.Info("kafka writer ready", zap.Strings("brokers", cfg.KafkaBrokers))
	}

	health := func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, health, func(err error) {
		log.Error("metrics server failed", zap.Error(err))
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	api := httpapi.NewServer(deps)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("wager-service stopped")
}

func allowOrigins(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		return len(origins) == 0 || slices.Contains(origins, r.Header.Get("Origin"))
	}
}
