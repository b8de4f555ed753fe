package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snaplink/chatsync/internal/api"
	"github.com/snaplink/chatsync/internal/auth"
	"github.com/snaplink/chatsync/internal/config"
	"github.com/snaplink/chatsync/internal/events"
	"github.com/snaplink/chatsync/internal/logger"
	"github.com/snaplink/chatsync/internal/realtime"
	"github.com/snaplink/chatsync/internal/repository"
	"github.com/snaplink/chatsync/internal/service"
	"github.com/snaplink/chatsync/internal/timeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	lg, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer lg.Sync()

	var jv *auth.JWTValidator
	if cfg.JWT.Alg == "RS256" {
		jv, err = auth.NewJWTValidatorRS256(cfg.JWT.PublicKeyPath)
	} else {
		jv, err = auth.NewJWTValidatorHS256(cfg.JWT.HSSecret)
	}
	if err != nil {
		lg.Fatalw("jwt validator init", "err", err)
	}

	mongoClient, err := repository.NewMongoClient(cfg)
	if err != nil {
		lg.Fatalw("mongo connect", "err", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(ctx)
	}()

	convColl, msgColl := repository.Collections(mongoClient, cfg)
	convRepo := repository.NewConversationRepository(convColl)
	msgRepo := repository.NewMessageRepository(msgColl, lg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	channel := realtime.NewChannel(rdb, cfg.Redis.Prefix, lg)

	var prod *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		prod = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageCreated, lg)
		defer prod.Close()
	}

	svc := service.NewChatService(convRepo, msgRepo, channel, prod, lg)
	deps := &api.SyncDeps{
		Service: svc,
		Opener:  api.StreamOpener(channel),
		Retry:   timeline.NewScheduler(cfg.Sync.MaxAttempts, cfg.RetryBase, lg),
		Cfg:     cfg,
		Log:     lg,
	}

	app := api.NewServer(cfg, svc, deps, jv, lg)

	errs := make(chan error, 1)
	go func() {
		addr := ":" + cfg.App.PortString()
		lg.Infow("starting chatsync", "addr", addr, "env", cfg.App.Env)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		lg.Fatalw("server error", "err", e)
	case s := <-sig:
		lg.Infow("signal received", "signal", s.String())
	}

	if err := app.Shutdown(); err != nil {
		lg.Warnw("fiber shutdown", "err", err)
	}
	lg.Info("shutting down")
}
