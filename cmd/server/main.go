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

	"resto-platform/config"
	"resto-platform/internal/api"
	"resto-platform/internal/broker"
	"resto-platform/internal/bus"
	"resto-platform/internal/geofence"
	"resto-platform/internal/notify"
	"resto-platform/internal/service"
	"resto-platform/internal/store"
	"resto-platform/internal/tenant"
	"resto-platform/internal/util"
	"resto-platform/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting resto platform")

	tp, err := util.InitTracer("resto-platform", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	master, err := store.NewMaster(cfg.Master.URL)
	if err != nil {
		log.Fatalf("Failed to connect to master database: %v", err)
	}
	defer master.Close()
	log.Println("Master database connected")

	cipher, err := tenant.NewDescriptorCipher(cfg.Tenancy.DescriptorKey)
	if err != nil {
		log.Fatalf("Failed to load descriptor key: %v", err)
	}

	resolver := tenant.NewResolver(master, cipher, cfg.Tenancy.ResolverTTL)

	pools := store.NewPools(nil, cfg.Tenancy.PoolIdleTTL, cfg.Tenancy.RotateGrace)
	defer pools.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PushTopic)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventBus := bus.New(bus.NewRelay(redisClient, cfg.Redis.BusChannel))

	st := store.New()
	notifier := notify.NewNotifier(st, master, eventBus, producer, cfg.Notify.Timeout)

	fenceEngine := geofence.NewEngine(st, notifier, eventBus)

	geocoder := service.NewGeoClient(cfg.Geo.ProviderURL, cfg.Geo.Timeout)
	lifecycle := service.NewLifecycle(st, eventBus, notifier, geocoder)
	dispatch := service.NewDispatch(st, eventBus, notifier, fenceEngine)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go pools.Run(workerCtx)
	go eventBus.Run(workerCtx)
	go fenceEngine.Run(workerCtx)

	pushConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PushTopic, cfg.Kafka.ConsumerGroup)
	pushClient := notify.NewPushClient(cfg.Notify.PushProviderURL, cfg.Notify.Timeout)
	pushWorker := worker.NewPushWorker(pushConsumer, pushClient)
	go func() {
		if err := pushWorker.Start(workerCtx); err != nil {
			log.Printf("Push worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(lifecycle, dispatch, st, eventBus)
	handler.SetupRoutes(router, tenant.Middleware(resolver, pools))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	pushWorker.Stop()

	log.Println("Server exited")
}
