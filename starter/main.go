package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/aswathylr-builds/storefront-payments/activities"
	"github.com/aswathylr-builds/storefront-payments/codec"
	"github.com/aswathylr-builds/storefront-payments/models"
	"github.com/aswathylr-builds/storefront-payments/reconcile"
	"github.com/aswathylr-builds/storefront-payments/workflows"
)

const (
	taskQueue = "storefront-payments-queue"
)

func main() {
	// Command line flags
	action := flag.String("action", "checkout", "Action to perform: checkout, query, refund")
	workflowID := flag.String("workflow-id", "", "Workflow ID for query operations")
	orderID := flag.String("order-id", "", "Order ID for refund operations")
	productID := flag.String("product-id", "SKU-1001", "Product to purchase")
	productName := flag.String("product-name", "Demo product", "Product display name")
	quantity := flag.Int("quantity", 1, "Quantity to purchase")
	price := flag.Float64("price", 189.50, "Unit price in major units")
	currency := flag.String("currency", "CZK", "ISO currency code")
	email := flag.String("email", "shopper@example.com", "Customer email")
	name := flag.String("name", "Demo Shopper", "Customer name")
	amount := flag.Float64("amount", 0, "Refund amount in major units (0 = full refund)")
	flag.Parse()

	// Get configuration from environment variables
	temporalHost := getEnv("TEMPORAL_HOST", "localhost:7233")
	encryptionEnabled := getEnv("ENCRYPTION_ENABLED", "false") == "true"

	// Create Temporal client options
	clientOptions := client.Options{
		HostPort: temporalHost,
	}

	// Enable encryption if configured
	if encryptionEnabled {
		encryptionKey := loadEncryptionKey()
		dataConverter, err := codec.NewEncryptionDataConverter(encryptionKey)
		if err != nil {
			log.Fatalf("Failed to create encryption data converter: %v", err)
		}
		clientOptions.DataConverter = dataConverter
		log.Println("Encryption enabled for starter")
	}

	// Create the Temporal client
	c, err := client.Dial(clientOptions)
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	ctx := context.Background()

	switch *action {
	case "checkout":
		startCheckout(ctx, c, reconcile.CheckoutRequest{
			Cart: []models.CartLine{{
				ProductID: *productID,
				Name:      *productName,
				Quantity:  *quantity,
				UnitPrice: *price,
			}},
			Customer: models.Customer{Email: *email, Name: *name},
			Currency: *currency,
		})
	case "query":
		queryCheckout(ctx, c, *workflowID)
	case "refund":
		startRefund(ctx, c, *orderID, *amount)
	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

func startCheckout(ctx context.Context, c client.Client, req reconcile.CheckoutRequest) {
	workflowOptions := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("checkout-demo-%d", time.Now().Unix()),
		TaskQueue: taskQueue,
	}

	we, err := c.ExecuteWorkflow(ctx, workflowOptions, workflows.CheckoutWorkflow, workflows.CheckoutInput{Request: req})
	if err != nil {
		log.Fatalf("Unable to execute workflow: %v", err)
	}

	log.Printf("Started checkout workflow successfully")
	log.Printf("  Workflow ID: %s", we.GetID())
	log.Printf("  Run ID: %s", we.GetRunID())
	log.Printf("  Cart: %d x %s @ %.2f %s", req.Cart[0].Quantity, req.Cart[0].Name, req.Cart[0].UnitPrice, req.Currency)
	log.Println()
	log.Println("To query the checkout status, run:")
	log.Printf("  go run starter/main.go -action=query -workflow-id=%s", we.GetID())

	// Wait for the final result; a timed-out poll is not a payment failure
	var result workflows.CheckoutResult
	if err := we.Get(ctx, &result); err != nil {
		log.Fatalf("Checkout workflow failed: %v", err)
	}
	if result.TimedOut {
		log.Printf("Checkout pending (order %s, status %s): %v", result.OrderNo, result.Status, models.ErrStatusCheckTimeout)
		return
	}
	log.Printf("Checkout finished: order %s, status %s", result.OrderNo, result.Status)
	for _, warning := range result.Warnings {
		log.Printf("  warning: %s", warning)
	}
}

func queryCheckout(ctx context.Context, c client.Client, workflowID string) {
	if workflowID == "" {
		log.Fatal("workflow-id is required for query operations")
	}

	// Create a context with longer timeout for query
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	response, err := c.QueryWorkflow(queryCtx, workflowID, "", workflows.QueryCheckoutStatus)
	if err != nil {
		log.Fatalf("Unable to query workflow: %v", err)
	}

	var state workflows.CheckoutState
	if err := response.Get(&state); err != nil {
		log.Fatalf("Unable to decode query result: %v", err)
	}

	// Pretty print the status
	stateJSON, _ := json.MarshalIndent(state, "", "  ")
	log.Println("Checkout Status:")
	fmt.Println(string(stateJSON))
}

func startRefund(ctx context.Context, c client.Client, orderID string, amount float64) {
	if orderID == "" {
		log.Fatal("order-id is required for refund operations")
	}

	input := activities.RefundInput{OrderID: orderID}
	if amount > 0 {
		input.Amount = &amount
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        "refund-" + orderID,
		TaskQueue: taskQueue,
	}
	we, err := c.ExecuteWorkflow(ctx, workflowOptions, workflows.RefundWorkflow, input)
	if err != nil {
		log.Fatalf("Unable to execute refund workflow: %v", err)
	}

	var result reconcile.TransitionResult
	if err := we.Get(ctx, &result); err != nil {
		log.Fatalf("Refund workflow failed: %v", err)
	}
	log.Printf("Refund finished: order %s, status %s", result.OrderID, result.Status)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadEncryptionKey() []byte {
	keyFile := ".encryption.key"

	// Try to read existing key
	if key, err := os.ReadFile(keyFile); err == nil && len(key) == 32 {
		log.Println("Using existing encryption key")
		return key
	}

	// Generate new key if not found
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
