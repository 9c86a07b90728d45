package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/aswathylr-builds/storefront-payments/activities"
	"github.com/aswathylr-builds/storefront-payments/codec"
	"github.com/aswathylr-builds/storefront-payments/dataservice"
	"github.com/aswathylr-builds/storefront-payments/events"
	"github.com/aswathylr-builds/storefront-payments/gateway"
	"github.com/aswathylr-builds/storefront-payments/health"
	"github.com/aswathylr-builds/storefront-payments/reconcile"
	"github.com/aswathylr-builds/storefront-payments/workflows"
)

const (
	taskQueue = "storefront-payments-queue"
)

func main() {
	// Get configuration from environment variables
	temporalHost := getEnv("TEMPORAL_HOST", "localhost:7233")
	mysqlDSN := getEnv("MYSQL_DSN", "root:password@tcp(localhost:3306)/storefront?parseTime=true")
	gatewayURL := getEnv("GATEWAY_URL", "https://iapi.iplatebnibrana.csob.cz/api/v1.9")
	returnURL := getEnv("GATEWAY_RETURN_URL", "http://localhost:8080/api/gateway/callback")
	merchantID := getEnv("MERCHANT_ID", "")
	privateKeyPath := getEnv("MERCHANT_PRIVATE_KEY", "keys/merchant.key")
	gatewayKeyPath := getEnv("GATEWAY_PUBLIC_KEY", "keys/gateway.pub")
	language := getEnv("GATEWAY_LANGUAGE", "EN")
	orderPrefix := getEnv("ORDER_NO_PREFIX", "SF")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "")
	paymentsTopic := getEnv("PAYMENTS_TOPIC", "payment_events")
	encryptionEnabled := getEnv("ENCRYPTION_ENABLED", "false") == "true"
	healthPort := getEnvAsInt("HEALTH_PORT", 8090)

	if merchantID == "" {
		log.Fatal("MERCHANT_ID is required")
	}

	// Open the order/inventory database
	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("Unable to open MySQL connection: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Unable to reach MySQL: %v", err)
	}
	if err := dataservice.InitDB(context.Background(), db); err != nil {
		log.Fatalf("Unable to initialize schema: %v", err)
	}
	store := dataservice.NewStore(db)

	// Build the signed gateway client
	privateKey, err := gateway.LoadPrivateKey(privateKeyPath)
	if err != nil {
		log.Fatalf("Unable to load merchant private key: %v", err)
	}
	gatewayKey, err := gateway.LoadPublicKey(gatewayKeyPath)
	if err != nil {
		log.Fatalf("Unable to load gateway public key: %v", err)
	}
	gatewayClient, err := gateway.NewClient(gateway.Config{
		MerchantID:       merchantID,
		BaseURL:          gatewayURL,
		ReturnURL:        returnURL,
		Language:         language,
		PrivateKey:       privateKey,
		GatewayPublicKey: gatewayKey,
	})
	if err != nil {
		log.Fatalf("Unable to create gateway client: %v", err)
	}

	engine := reconcile.NewEngine(store, store, gatewayClient, orderPrefix)

	// Kafka publishing is optional; without brokers the engine still runs
	var publisher *events.Publisher
	if kafkaBrokers != "" {
		producer, err := events.NewSyncProducer(strings.Split(kafkaBrokers, ","))
		if err != nil {
			log.Fatalf("Unable to create Kafka producer: %v", err)
		}
		defer producer.Close()
		publisher = events.NewPublisher(producer, paymentsTopic)
		log.Printf("Payment events enabled on topic: %s", paymentsTopic)
	}

	// Create Temporal client options
	clientOptions := client.Options{
		HostPort: temporalHost,
	}

	// Enable encryption if configured
	if encryptionEnabled {
		encryptionKey := generateOrGetEncryptionKey()
		dataConverter, err := codec.NewEncryptionDataConverter(encryptionKey)
		if err != nil {
			log.Fatalf("Failed to create encryption data converter: %v", err)
		}
		clientOptions.DataConverter = dataConverter
		log.Println("Encryption enabled for worker")
	}

	// Create the Temporal client
	c, err := client.Dial(clientOptions)
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	// Create worker
	w := worker.New(c, taskQueue, worker.Options{})

	// Register workflows
	w.RegisterWorkflow(workflows.CheckoutWorkflow)
	w.RegisterWorkflow(workflows.RefundWorkflow)

	// Register activities
	paymentActivities := activities.NewPaymentActivities(engine, publisher)
	w.RegisterActivity(paymentActivities.CheckAvailability)
	w.RegisterActivity(paymentActivities.BeginCheckout)
	w.RegisterActivity(paymentActivities.SyncPaymentStatus)
	w.RegisterActivity(paymentActivities.RefundPayment)

	log.Printf("Worker starting on task queue: %s", taskQueue)
	log.Printf("Gateway URL: %s", gatewayURL)
	log.Printf("Temporal Host: %s", temporalHost)

	// Create and configure health check server
	healthServer := health.NewServer(healthPort)
	healthServer.RegisterChecker(health.NewTemporalChecker(c))
	healthServer.RegisterChecker(health.NewMySQLChecker(db))
	healthServer.RegisterChecker(health.NewHTTPChecker("gateway", gatewayURL+"/echo/"+merchantID))

	// Start health check server
	if err := healthServer.Start(); err != nil {
		log.Fatalf("Failed to start health check server: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Start worker in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Println("Worker started successfully")
		if err := w.Run(worker.InterruptCh()); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigCh:
		log.Println("Received shutdown signal, gracefully stopping...")
	case err := <-errCh:
		log.Printf("Worker error: %v", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	log.Println("Stopping worker...")
	w.Stop()

	log.Println("Stopping health check server...")
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	log.Println("Worker shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func generateOrGetEncryptionKey() []byte {
	// In production, load this from a secure key management system
	keyFile := ".encryption.key"

	// Try to read existing key
	if key, err := os.ReadFile(keyFile); err == nil && len(key) == 32 {
		log.Println("Using existing encryption key")
		return key
	}

	// Generate new key
	key := make([]byte, 32) // AES-256
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("Failed to generate encryption key: %v", err)
	}

	// Save key for future use (development only!)
	if err := os.WriteFile(keyFile, key, 0600); err != nil {
		log.Printf("Warning: Failed to save encryption key: %v", err)
	}

	log.Println("Generated new encryption key")
	return key
}
