package main

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/painelvendas/ingest-service/internal/api"
	"github.com/painelvendas/ingest-service/internal/config"
	"github.com/painelvendas/ingest-service/internal/handler"
	kafkainfra "github.com/painelvendas/ingest-service/internal/infrastructure/kafka"
	pushinfra "github.com/painelvendas/ingest-service/internal/infrastructure/push"
	redisinfra "github.com/painelvendas/ingest-service/internal/infrastructure/redis"
	"github.com/painelvendas/ingest-service/internal/observability"
	core "github.com/painelvendas/ingest-service/internal/repository/postgres"
	service "github.com/painelvendas/ingest-service/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализируем логи, метрики, трейсы
	shutdown, metricsHandler := observability.Setup("ingest-service")
	defer shutdown(context.Background())

	// Накатываем миграции (уникальный индекс по external_id живёт здесь)
	m, err := migrate.New(cfg.MigrationsURL, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to create migration instance: %v", err)
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	// Подключаемся к Postgres
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	// Инициализируем зависимости
	transactionRepo := core.NewPostgresTransactionRepository(db)
	endpointRepo := core.NewPostgresPushEndpointRepository(db)

	var cache redisinfra.TransactionCache
	if cfg.RedisAddr != "" {
		client := redisinfra.NewClient(cfg.RedisAddr)
		defer client.Close()
		cache = client
	}

	var producer kafkainfra.EventProducer
	if cfg.KafkaBroker != "" {
		p := kafkainfra.NewProducer([]string{cfg.KafkaBroker}, cfg.KafkaTopic)
		defer p.Close()
		producer = p
	}

	var transport pushinfra.Transport
	if cfg.PushEnabled() {
		transport = pushinfra.NewWebPushTransport(cfg.VAPIDSubscriber, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	} else {
		log.Println("VAPID keys not configured, push notifications disabled")
	}

	notifier := service.NewNotifyService(endpointRepo, transport)
	ingest := service.NewIngestService(transactionRepo, cache, producer, notifier)
	h := handler.NewHandler(ingest, endpointRepo)

	// Настраиваем роутер
	router := api.SetupRouter(h, cfg.JWTSecret, metricsHandler)

	// Запускаем сервер
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
