package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/friendsbet/internal/activity-worker/consumer"
	"github.com/radieske/friendsbet/internal/activity-worker/pubsub"
	"github.com/radieske/friendsbet/internal/activity-worker/repository"
	sharedcache "github.com/radieske/friendsbet/internal/shared/cache"
	"github.com/radieske/friendsbet/internal/shared/config"
	"github.com/radieske/friendsbet/internal/shared/db"
	"github.com/radieske/friendsbet/internal/shared/kafka"
	"github.com/radieske/friendsbet/internal/shared/logger"
	"github.com/radieske/friendsbet/internal/shared/metrics"
	"github.com/radieske/friendsbet/internal/wagering/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := postgres.Migrate(ctx, pg); err != nil {
		log.Fatal("postgres migrate", zap.Error(err))
	}

	redisClient, err := sharedcache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	reader := kafka.NewGroupReader(cfg.KafkaBrokers, cfg.ActivityGroupID, cfg.Topics())
	defer reader.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewWorker(reg)

	proc := &consumer.Processor{
		Log:    log,
		Reader: reader,
		Repo:   repository.NewPostgresRepo(pg),
		Pub:    pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		Topics: consumer.Topics{
			EventCreated:  cfg.TopicEventCreated,
			EventApproved: cfg.TopicEventApproved,
			BetPlaced:     cfg.TopicBetPlaced,
			EventResolved: cfg.TopicEventResolved,
		},
		OnConsumed:  m.Consumed.Inc,
		OnPersist:   m.Persisted.Inc,
		OnBroadcast: m.Broadcast.Inc,
		OnError:     func(stage string) { m.Errors.WithLabelValues(stage).Inc() },
	}

	health := func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("pg: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, reg, health, func(err error) {
		log.Error("metrics server failed", zap.Error(err))
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	log.Info("activity-worker started", zap.Strings("topics", cfg.Topics()))
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("activity-worker stopped")
}
