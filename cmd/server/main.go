package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-service/config"
	"pos-service/internal/api"
	"pos-service/internal/auth"
	"pos-service/internal/broker"
	"pos-service/internal/gateway"
	"pos-service/internal/models"
	"pos-service/internal/redisclient"
	"pos-service/internal/repository"
	"pos-service/internal/service"
	"pos-service/internal/store"
	"pos-service/internal/store/memstore"
	"pos-service/internal/util"
	"pos-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("pos-service", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()
	readiness := map[string]api.Pinger{}

	repo, users, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()
	readiness["store"] = repo

	var (
		cache       service.ProductCache
		revocations auth.Revocations
		locker      worker.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))

		cache, revocations, locker = redisClient, redisClient, redisClient
		readiness["redis"] = redisClient
	}

	var (
		events   service.EventPublisher
		relay    api.PaymentRelay
		producer *broker.Producer
	)
	if cfg.Kafka.Enabled {
		producer = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
		defer producer.Close()
		publisher := broker.NewEventPublisher(producer)
		events, relay = publisher, publisher
		logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	registry := gateway.NewRegistry(
		gateway.NewMoMo(gateway.MoMoConfig{
			Endpoint:    cfg.MoMo.Endpoint,
			PartnerCode: cfg.MoMo.PartnerCode,
			AccessKey:   cfg.MoMo.AccessKey,
			SecretKey:   cfg.MoMo.SecretKey,
			IPNURL:      cfg.MoMo.IPNURL,
			RedirectURL: cfg.MoMo.RedirectURL,
		}, &http.Client{Timeout: cfg.PaymentTimeout()}),
		gateway.NewVNPay(gateway.VNPayConfig{
			PayURL:     cfg.VNPay.PayURL,
			TmnCode:    cfg.VNPay.TmnCode,
			HashSecret: cfg.VNPay.HashSecret,
			ReturnURL:  cfg.VNPay.ReturnURL,
		}, nil),
	)

	validator := service.NewPromotionValidator(repo)
	orchestrator := service.NewCheckoutOrchestrator(repo, service.NewPricingEngine(nil), validator, registry, events,
		service.CheckoutOptions{PaymentTimeout: cfg.PaymentTimeout()})
	catalogService := service.NewCatalogService(repo, cache)
	promotionService := service.NewPromotionService(repo, validator, nil)
	orderService := service.NewOrderService(repo, orchestrator)
	authService := auth.NewService(users, auth.NewTokenManager(cfg.Auth.SigningKey, cfg.Auth.TokenTTL, nil), revocations)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var orderWorker *worker.OrderWorker
	if cfg.Kafka.Enabled {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
		orderWorker = worker.NewOrderWorker(consumer, orchestrator, catalogService)
		go func() {
			if err := orderWorker.Start(workerCtx); err != nil {
				logger.Error("Order worker error", zap.Error(err))
			}
		}()
	}

	sweeper := worker.NewPendingOrderSweeper(repo, orchestrator, locker, worker.SweeperConfig{
		Interval:  cfg.SweepInterval(),
		Timeout:   cfg.OrderTimeout(),
		BatchSize: cfg.Business.SweepBatchSize,
	})
	go sweeper.Run(workerCtx)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Auth:       authService,
		Catalog:    catalogService,
		Promotions: promotionService,
		Orders:     orderService,
		Gateways:   registry,
		Relay:      relay,
		Readiness:  readiness,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if orderWorker != nil {
		if err := orderWorker.Stop(); err != nil {
			logger.Warn("Failed to stop order worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// openStore returns the repository selected by STORE_DRIVER and a close func.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Repository, repository.UserRepository, func()) {
	if cfg.Database.Driver == "memory" {
		mem := memstore.New()
		hash, err := auth.HashPassword(cfg.Auth.SeedAdminPassword)
		if err != nil {
			logger.Fatal("Failed to hash seed admin password", zap.Error(err))
		}
		mem.AddUser(models.User{Username: "admin", PasswordHash: hash, Role: models.RoleAdmin, IsActive: true})
		logger.Warn("Using in-memory store; data is lost on restart")
		return mem, mem, func() {}
	}

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	logger.Info("Database connected")

	return db, db, func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
