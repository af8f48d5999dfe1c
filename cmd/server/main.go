package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jafarshop/settlement/internal/api"
	"github.com/jafarshop/settlement/internal/config"
	"github.com/jafarshop/settlement/internal/events"
	"github.com/jafarshop/settlement/internal/gateway"
	"github.com/jafarshop/settlement/internal/repository/postgres"
	"github.com/jafarshop/settlement/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	err = postgres.Migrate(migrateCtx, db)
	cancelMigrate()
	if err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	repos := postgres.NewRepositories(db, logger)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	} else {
		logger.Warn("KAFKA_BROKERS not set, domain events are dropped")
	}
	defer publisher.Close()

	var deduper gateway.Deduper = gateway.NopDeduper{}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		deduper = gateway.NewRedisDeduper(rdb, cfg.Redis.DedupeTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, webhook deliveries rely on database idempotency only")
	}

	// a nil *gateway.Client must not leak into the interface
	var gw service.GatewayClient
	if cfg.Gateway.Enabled() {
		gw = gateway.NewClient(cfg.Gateway, logger)
	}

	promos := service.NewPromoService(repos, logger)
	svc := api.Services{
		Orders:   service.NewOrderService(repos, promos, gw, cfg.Gateway.Currency, publisher, logger),
		Payments: service.NewPaymentService(cfg.Gateway, repos, promos, gw, deduper, publisher, logger),
		Payouts:  service.NewPayoutService(cfg.Settlement, repos, publisher, logger),
		Returns:  service.NewReturnService(repos, publisher, logger),
		Promos:   promos,
	}

	router := api.NewRouter(cfg, repos, svc, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.Bool("gateway_api", gw != nil))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}
