package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/edevardHvide/golf-availability-bot/internal/catalog"
	"github.com/edevardHvide/golf-availability-bot/internal/config"
	"github.com/edevardHvide/golf-availability-bot/internal/digest"
	"github.com/edevardHvide/golf-availability-bot/internal/events"
	"github.com/edevardHvide/golf-availability-bot/internal/logging"
	"github.com/edevardHvide/golf-availability-bot/internal/notifier"
	"github.com/edevardHvide/golf-availability-bot/internal/store"
)

func main() {
	log := logging.New("digest-worker")

	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, using process environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", map[string]interface{}{"error": err.Error()})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, client, err := store.Connect(ctx, cfg.Store.URI, cfg.Store.Database)
	if err != nil {
		log.Fatal("failed to connect to store", map[string]interface{}{"error": err.Error()})
	}
	defer client.Disconnect(context.Background())

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		log.Fatal("failed to load club catalog", map[string]interface{}{"error": err.Error()})
	}

	sender := notifier.NewEmailSender(cfg.Email)
	notify := notifier.New(sender, db, cat, log)

	var subscriber *events.Subscriber
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, the digest worker will rely on its minute ticker alone", map[string]interface{}{"error": err.Error()})
	} else {
		subscriber = events.NewSubscriber(ctx, redisClient)
		defer subscriber.Close()
	}

	worker := digest.New(db, notify, subscriber, log)

	log.Info("digest worker starting")

	if err := worker.Run(ctx); err != nil {
		log.Error("digest worker exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	log.Info("digest worker stopped gracefully")
}
