package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/postpilot/postpilot-backend/internal/adapter"
	"github.com/postpilot/postpilot-backend/internal/channel"
	"github.com/postpilot/postpilot-backend/internal/db"
	"github.com/postpilot/postpilot-backend/internal/events"
	"github.com/postpilot/postpilot-backend/internal/repository"
	"github.com/postpilot/postpilot-backend/internal/runner"
	"github.com/postpilot/postpilot-backend/internal/scheduler"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("init logger:", err)
	}
	defer logger.Sync()

	db.Init(logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}
	logger.Info("✅ connected to redis")

	// Campaign events are mirrored to the broker when one is configured.
	var sink events.Sink = events.Nop{}
	if url := os.Getenv("AMQP_URL"); url != "" {
		pub, err := events.NewAMQPPublisher(url, envOr("AMQP_EXCHANGE", "campaign_events"), logger)
		if err != nil {
			logger.Fatal("connect to broker", zap.Error(err))
		}
		defer pub.Close()
		sink = pub
		logger.Info("✅ connected to broker")
	}

	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	itemRepo := &repository.ContentItemRepository{DB: db.DB}
	connectionRepo := &repository.ConnectionRepository{DB: db.DB}
	logRepo := &repository.CampaignLogRepository{DB: db.DB}

	adapters := adapter.NewRegistry(
		adapter.NewInstagram(envOr("INSTAGRAM_API_BASE", "https://graph.instagram.com"), logger),
		adapter.NewMastodon(logger),
	)

	run := &runner.Runner{
		Campaigns:      campaignRepo,
		Items:          itemRepo,
		Connections:    connectionRepo,
		Logs:           logRepo,
		Registry:       channel.NewRegistry(connectionRepo),
		Adapters:       adapters,
		Events:         sink,
		Now:            time.Now,
		PublishTimeout: envDuration("PUBLISH_TIMEOUT", 2*time.Minute),
		Log:            logger,
	}

	sched := &scheduler.Scheduler{
		Campaigns:     campaignRepo,
		Runner:        run,
		Locker:        scheduler.NewLocker(rdb, envDuration("LOCK_TTL", 5*time.Minute)),
		Interval:      envDuration("SCHEDULER_INTERVAL", time.Minute),
		MaxConcurrent: envInt("MAX_CONCURRENT_CAMPAIGNS", 8),
		Log:           logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("🚀 Scheduler running")
	sched.Start(ctx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
