package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/com2u/Pickup/internal/adapter/handler"
	"github.com/com2u/Pickup/internal/adapter/storage"
	"github.com/com2u/Pickup/internal/core/config"
	"github.com/com2u/Pickup/internal/core/service"
	"github.com/com2u/Pickup/internal/pkg/logger"
	"github.com/com2u/Pickup/internal/port"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		zlog.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		zlog.Fatal("failed to ping mysql", zap.Error(err))
	}
	zlog.Info("connected to mysql")

	if err := storage.EnsureSchema(ctx, db); err != nil {
		zlog.Fatal("failed to ensure schema", zap.Error(err))
	}
	if err := storage.Seed(ctx, db); err != nil {
		zlog.Fatal("failed to seed database", zap.Error(err))
	}

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	zlog.Info("connected to redis")

	// Adapters
	userStore := storage.NewUserStore(db)
	itemStore := storage.NewItemStore(db)
	orderStore := storage.NewOrderStore(db)
	ledgerStore := storage.NewLedgerStore(db)
	settlementStore := storage.NewSettlementStore(db)
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Event fanout: WebSocket clients and the Redis channel.
	events := service.NewEvents()
	hub := handler.NewHub(zlog)
	go hub.Run(ctx)
	events.Register(hub)
	events.Register(&redisSink{cache: redisAdapter, log: zlog})

	// Services
	authService := service.NewAuthService(userStore, []byte(cfg.JWTSecret), zlog)
	catalogService := service.NewCatalogService(itemStore, events)
	orderService := service.NewOrderService(orderStore, events, zlog)
	ledgerService := service.NewLedgerService(ledgerStore, userStore, events, zlog)
	deliveryService := service.NewDeliveryService(settlementStore, userStore, events, zlog)

	httpHandler := handler.NewHTTPHandler(
		authService, catalogService, orderService, ledgerService, deliveryService,
		redisAdapter, hub, zlog,
	)

	corsWrapper := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: corsWrapper.Handler(httpHandler.Router()),
	}

	go func() {
		zlog.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			zlog.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	cancel()
	rdb.Close()
	db.Close()
	zlog.Info("server stopped")
}

// redisSink forwards change events to the Redis channel so other
// processes can observe them.
type redisSink struct {
	cache port.CacheRepository
	log   *zap.Logger
}

func (s *redisSink) Publish(ev service.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.PublishEvent(ctx, payload); err != nil {
		s.log.Warn("failed to publish event", zap.Error(err))
	}
}
