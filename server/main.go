package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/aswathylr-builds/storefront-payments/dataservice"
	"github.com/aswathylr-builds/storefront-payments/gateway"
	"github.com/aswathylr-builds/storefront-payments/health"
	"github.com/aswathylr-builds/storefront-payments/ingress"
	"github.com/aswathylr-builds/storefront-payments/reconcile"
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
	apiPort := getEnvAsInt("API_PORT", 8080)
	healthPort := getEnvAsInt("HEALTH_PORT", 8091)

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

	// Create the Temporal client
	c, err := client.Dial(client.Options{HostPort: temporalHost})
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	api := ingress.New(engine, c, taskQueue)
	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", apiPort),
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create and configure health check server
	healthServer := health.NewServer(healthPort)
	healthServer.RegisterChecker(health.NewTemporalChecker(c))
	healthServer.RegisterChecker(health.NewMySQLChecker(db))
	healthServer.RegisterChecker(health.NewHTTPChecker("gateway", gatewayURL+"/echo/"+merchantID))
	if err := healthServer.Start(); err != nil {
		log.Fatalf("Failed to start health check server: %v", err)
	}

	// Handle OS signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API server listening on port %d", apiPort)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		log.Println("Received shutdown signal, gracefully stopping...")
	case err := <-errCh:
		log.Printf("API server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Stopping API server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}

	log.Println("Stopping health check server...")
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
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
