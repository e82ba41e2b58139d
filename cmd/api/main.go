package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hamedsh/walletledger/internal/bank"
	"github.com/hamedsh/walletledger/internal/common/config"
	"github.com/hamedsh/walletledger/internal/common/db"
	"github.com/hamedsh/walletledger/internal/common/kafka"
	"github.com/hamedsh/walletledger/internal/common/logger"
	"github.com/hamedsh/walletledger/internal/common/middleware"
	"github.com/hamedsh/walletledger/internal/common/redis"
	"github.com/hamedsh/walletledger/internal/transaction"
	"github.com/hamedsh/walletledger/internal/wallet"
	"github.com/hamedsh/walletledger/internal/withdrawal"
	"github.com/hamedsh/walletledger/pkg/outbox"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("api")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("walletledger-api")

	// Connect to database
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Connect to Redis
	redisClient, err := redis.Connect(cfg.Redis, log)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Kafka producer for outbox publishing
	producer := kafka.NewProducer(cfg.Kafka, log)
	defer producer.Close()
	if err := producer.Ping(context.Background()); err != nil {
		log.Warnf("Kafka not reachable at startup: %v", err)
	}

	// Initialize repositories, services, and handlers
	walletRepo := wallet.NewRepository(database, log)
	txRepo := transaction.NewRepository(database, log)
	outboxRepo := outbox.NewRepository(database.DB, log)
	bankClient := bank.NewClient(cfg.Bank, log)

	walletService := wallet.NewService(walletRepo, txRepo, outboxRepo, redisClient, database, log)
	txService := transaction.NewService(txRepo, log)
	withdrawalService := withdrawal.NewService(walletRepo, txRepo, outboxRepo, bankClient, redisClient, database, log)

	walletHandler := wallet.NewHandler(walletService, log)
	txHandler := transaction.NewHandler(txService, log)
	withdrawalHandler := withdrawal.NewHandler(withdrawalService, log)

	// Create HTTP server
	mux := http.NewServeMux()

	// Apply middleware
	var httpHandler http.Handler = mux
	httpHandler = middleware.CORS(httpHandler)
	httpHandler = middleware.Metrics(httpHandler)
	httpHandler = middleware.Logging(log)(httpHandler)
	httpHandler = middleware.Recovery(log)(httpHandler)

	// Register routes
	walletHandler.RegisterRoutes(mux)
	txHandler.RegisterRoutes(mux)
	withdrawalHandler.RegisterRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background workers: outbox publisher, withdrawal dispatcher, executor pool.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var background sync.WaitGroup

	publisher := outbox.NewPublisher(outboxRepo, producer, log, cfg.Outbox.PublishInterval)
	background.Add(1)
	go func() {
		defer background.Done()
		publisher.Start(workerCtx)
	}()

	queue := make(chan int64, cfg.Withdrawal.QueueSize)
	dispatcher := withdrawal.NewDispatcher(txRepo, queue, cfg.Withdrawal, log)
	pool := withdrawal.NewPool(withdrawalService, queue, cfg.Withdrawal.Workers, log)

	background.Add(1)
	go func() {
		defer background.Done()
		// Closing the queue after the dispatcher stops lets the pool drain
		// accepted work and exit.
		dispatcher.Start(workerCtx)
		close(queue)
	}()

	// The pool gets its own context so the drain runs with live executions;
	// it is cancelled only after all background work has finished.
	execCtx, stopExec := context.WithCancel(context.Background())
	background.Add(1)
	go func() {
		defer background.Done()
		pool.Start(execCtx)
	}()

	// Start server in goroutine
	go func() {
		log.Infof("Wallet ledger API starting on port %s", cfg.Service.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	stopWorkers()
	background.Wait()
	stopExec()

	log.Info("Server exited")
}
