package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/cart"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/redisclient"
	"storefront/internal/session"
	"storefront/internal/sheets"
	"storefront/internal/sink"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "storefront"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront", cfg.Observ.JaegerEndpoint)
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

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	ctx := context.Background()
	sheetSource, err := sheets.NewSource(ctx, sheets.Config{
		SheetID:         cfg.Sheets.SheetID,
		Range:           cfg.Sheets.Range,
		CredentialsJSON: cfg.Sheets.CredentialsJSON,
		CredentialsFile: cfg.Sheets.CredentialsFile,
		APIKey:          cfg.Sheets.APIKey,
	})
	if err != nil {
		logger.Fatal("Failed to create sheet source", zap.Error(err))
	}

	orderSink, err := sink.NewClient(cfg.Checkout.SinkURL, cfg.Checkout.SinkTimeout)
	if err != nil {
		logger.Fatal("Failed to create order sink client", zap.Error(err))
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	catalogProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog)
	defer catalogProducer.Close()
	logger.Info("Kafka producers initialized")

	cache := catalog.NewCache(sheetSource,
		catalog.WithTTL(cfg.Catalog.CacheTTL),
		catalog.WithSingleflight(cfg.Catalog.Singleflight),
	)
	products := catalog.NewCatalog(cache)

	reducer := cart.NewReducer(cart.CouponRule{
		Code:     cfg.Coupon.Code,
		Discount: cfg.Coupon.Discount,
		Policy:   cart.ParseMismatchPolicy(cfg.Coupon.MismatchPolicy),
	})
	sessions := session.NewStore(redisClient, reducer, cfg.Checkout.SessionTTL)

	checkoutService := checkout.NewService(
		redisClient,
		sessions,
		orderSink,
		db,
		broker.NewEventPublisher(producer),
		checkout.Config{
			Pricing: checkout.Pricing{
				InsideDhakaFee:  cfg.Checkout.InsideDhakaFee,
				OutsideDhakaFee: cfg.Checkout.OutsideDhakaFee,
			},
			SessionTTL: cfg.Checkout.SessionTTL,
			LockTTL:    cfg.Checkout.LockTTL,
		},
	)

	if _, err := cache.GetProducts(ctx); err != nil {
		logger.Warn("Initial catalog load failed", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	// catalog-events is a broadcast topic, every replica must see every refresh
	catalogGroup := broker.InstanceGroupID(cfg.Kafka.ConsumerGroup, cfg.Kafka.InstanceID)
	catalogConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicCatalog, catalogGroup)
	catalogWorker := worker.NewCatalogWorker(catalogConsumer, cache, cfg.Sheets.SheetID)
	go func() {
		if err := catalogWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Catalog worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(products, cache, sessions, checkoutService,
		api.WithCatalogEvents(broker.NewEventPublisher(catalogProducer), cfg.Sheets.SheetID),
		api.WithBaseURL(cfg.Server.BaseURL),
		api.WithAdminToken(cfg.Server.AdminToken),
		api.WithSubmitLimit(rate.Every(time.Minute/time.Duration(max(cfg.Checkout.SubmitPerMinute, 1))), 2),
		api.WithReadinessCheck("redis", redisClient.Ping),
		api.WithReadinessCheck("postgres", db.GetDB().PingContext),
	)
	handler.SetupRoutes(router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", api.SessionHeader},
		ExposedHeaders:   []string{api.SessionHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           corsHandler.Handler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := catalogWorker.Stop(); err != nil {
		logger.Error("Failed to stop catalog worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
