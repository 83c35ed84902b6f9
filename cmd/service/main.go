package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commerce-core/config"
	"commerce-core/internal/cache"
	"commerce-core/internal/expiry"
	"commerce-core/internal/producer"
	"commerce-core/internal/repository"
	"commerce-core/internal/service"
	"commerce-core/pkg/database"
	"commerce-core/pkg/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// app держит собранное ядро; транспортный слой подключается поверх
type app struct {
	Inventory    service.InventoryService
	Reservations service.ReservationService
	Orders       service.OrderService
	Payments     service.PaymentService

	redis  *cache.RedisClient
	events *producer.EventProducer
}

func (a *app) Close() {
	if a.events != nil {
		_ = a.events.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func buildApp(cfg *config.Config, repos *repository.Repository, log *zap.Logger) *app {
	a := &app{}

	var stockCache service.StockCache
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			log.Fatal("failed to create redis client", zap.Error(err))
		}
		a.redis = redisClient
		stockCache = redisClient
		log.Info("Redis cache enabled")
	} else {
		log.Info("Redis cache disabled")
	}

	var events service.EventBus
	if cfg.Kafka.Enabled {
		a.events = producer.NewEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		events = a.events
		log.Info("Kafka producer enabled", zap.Strings("brokers", cfg.Kafka.Brokers))
	} else {
		log.Info("Kafka producer disabled")
	}

	a.Inventory = service.NewInventoryService(repos, stockCache, events)
	a.Reservations = service.NewReservationService(repos, stockCache, service.ReservationPolicy{
		DefaultTTL:   time.Duration(cfg.Reservation.DefaultTTLMinutes) * time.Minute,
		MaxTTL:       time.Duration(cfg.Reservation.MaxTTLMinutes) * time.Minute,
		MaxExtension: time.Duration(cfg.Reservation.MaxExtensionMinutes) * time.Minute,
	})
	a.Orders = service.NewOrderService(repos, stockCache, events)
	a.Payments = service.NewPaymentService(repos)

	return a
}

func main() {
	_ = godotenv.Load()
	isDev := os.Getenv("ENV") == "development"
	if err := logger.Init(isDev); err != nil {
		panic(err)
	}

	defer logger.Sync()

	log := logger.L()

	cfg := config.Load(log)

	db := database.ConnectDB(&cfg.DB.Config, log)
	defer database.CloseDB(db, log)

	repos := repository.New(db)

	core := buildApp(cfg, repos, log)
	defer core.Close()

	sweeper := expiry.NewSweeper(repos, log)
	scheduler := expiry.NewScheduler(sweeper,
		time.Duration(cfg.Reservation.SweepIntervalSeconds)*time.Second, log)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	scheduler.Start(sweepCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("commerce-core started", zap.String("port", cfg.Port))

	<-quit
	log.Info("Shutting down...")

	scheduler.Stop()
	sweepCancel()

	log.Info("commerce-core stopped gracefully")
}
