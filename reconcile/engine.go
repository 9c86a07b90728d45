package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/aswathylr-builds/storefront-payments/gateway"
	"github.com/aswathylr-builds/storefront-payments/models"
)

// OrderLedger is the narrow interface to the remote order store. The
// ledger is the source of truth for payment outcome; every mutation here
// must be safe under concurrent, possibly-duplicate invocations from
// different processes.
type OrderLedger interface {
	CreateOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	GetOrderByPayID(ctx context.Context, payID string) (models.Order, error)
	SetPaymentID(ctx context.Context, orderID, payID string) error
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, at time.Time) error

	// NextOrderSequence atomically increments and returns the order-number
	// counter for the given YYYYMMDD day.
	NextOrderSequence(ctx context.Context, day string) (int64, error)

	// TryMarkAdjusted records the inventory adjustment marker for an order.
	// It returns false without error when the marker already exists; the
	// compare-and-set lives at the storage layer.
	TryMarkAdjusted(ctx context.Context, orderID string) (bool, error)
}

// InventoryStore is the narrow interface to the remote inventory store.
// Inventory is best effort: its failures never roll back an order status.
type InventoryStore interface {
	Stock(ctx context.Context, productID string) (int, error)

	// DecrementStock reduces stock by qty, clamped at zero, and records the
	// causing order and quantity for audit.
	DecrementStock(ctx context.Context, productID string, qty int, orderID string, at time.Time) error
}

// PaymentGateway is the slice of the gateway client the engine depends on.
type PaymentGateway interface {
	InitializePayment(ctx context.Context, orderNo string, cart []models.CartLine, md models.MerchantData, currency string) (*gateway.InitResult, error)
	PaymentStatus(ctx context.Context, payID string) (*gateway.StatusResult, error)
	RefundPayment(ctx context.Context, payID string, amount *float64) (*gateway.StatusResult, error)
	VerifyNotification(resp *gateway.Response) error
}

// Engine keeps order records and inventory counts consistent with
// asynchronous, possibly out-of-order payment gateway notifications.
type Engine struct {
	ledger        OrderLedger
	inventory     InventoryStore
	gw            PaymentGateway
	orderNoPrefix string
	now           func() time.Time
}

// NewEngine wires the engine to its two stores and the gateway client.
// prefix is prepended to every generated order number.
func NewEngine(ledger OrderLedger, inventory InventoryStore, gw PaymentGateway, prefix string) *Engine {
	return &Engine{
		ledger:        ledger,
		inventory:     inventory,
		gw:            gw,
		orderNoPrefix: prefix,
		now:           time.Now,
	}
}

// TransitionResult reports the primary outcome of a status transition plus
// any soft bookkeeping failures, so callers can distinguish "payment
// failed" from "payment succeeded, bookkeeping degraded".
type TransitionResult struct {
	OrderID          string             `json:"order_id"`
	PayID            string             `json:"pay_id,omitempty"`
	Status           models.OrderStatus `json:"status"`
	Changed          bool               `json:"changed"`
	InventoryApplied bool               `json:"inventory_applied"`
	Warnings         []string           `json:"warnings,omitempty"`
}

// ApplyTransition applies a classified gateway payment state to an order.
//
// It is idempotent and ordering-independent: a repeated or stale state is
// a no-op, and the inventory decrement runs at most once per order,
// guarded solely by the adjustment marker. The order-status write and the
// inventory writes are separate remote calls with no shared transaction;
// inventory failures are surfaced as warnings and left to a later
// reconciliation sweep, never rolled back into the order status.
//
// lines is the merchant-data cart snapshot when the notification carried
// one; the order's own cart is the fallback.
func (e *Engine) ApplyTransition(ctx context.Context, orderID string, state models.PaymentState, lines []models.MerchantDataLine) (*TransitionResult, error) {
	order, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}

	result := &TransitionResult{OrderID: orderID, PayID: order.PayID, Status: order.Status}

	next, ok := state.OrderStatus()
	if !ok {
		// unknown is never terminal and never applied.
		return result, nil
	}
	if next.Rank() > order.Status.Rank() {
		if err := e.ledger.UpdateStatus(ctx, orderID, next, e.now().UTC()); err != nil {
			return nil, fmt.Errorf("failed to update order %s to %s: %w", orderID, next, err)
		}
		result.Status = next
		result.Changed = true
	}

	if state.Successful() {
		applied, warnings := e.adjustInventory(ctx, order, lines)
		result.InventoryApplied = applied
		result.Warnings = warnings
	}
	return result, nil
}

// adjustInventory performs the exactly-once decrement. The marker is
// claimed first so that duplicate notifications racing from different
// processes cannot both decrement; a decrement failure after the claim is
// reported as a warning and repaired by the out-of-band sweep.
func (e *Engine) adjustInventory(ctx context.Context, order models.Order, lines []models.MerchantDataLine) (bool, []string) {
	claimed, err := e.ledger.TryMarkAdjusted(ctx, order.ID)
	if err != nil {
		return false, []string{fmt.Sprintf("adjustment marker for order %s: %v", order.ID, err)}
	}
	if !claimed {
		return false, nil
	}

	if len(lines) == 0 {
		lines = make([]models.MerchantDataLine, len(order.Cart))
		for i, l := range order.Cart {
			lines[i] = models.MerchantDataLine{ProductID: l.ProductID, Quantity: l.Quantity}
		}
	}

	var warnings []string
	at := e.now().UTC()
	for _, line := range lines {
		if err := e.inventory.DecrementStock(ctx, line.ProductID, line.Quantity, order.ID, at); err != nil {
			warnings = append(warnings, fmt.Sprintf("stock decrement for product %s: %v", line.ProductID, err))
		}
	}
	return true, warnings
}

// SyncPaymentStatus polls the gateway for the order's payment and applies
// the resulting transition.
func (e *Engine) SyncPaymentStatus(ctx context.Context, orderID string) (*TransitionResult, error) {
	order, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order.PayID == "" {
		return nil, fmt.Errorf("order %s has no payment id to poll", orderID)
	}
	status, err := e.gw.PaymentStatus(ctx, order.PayID)
	if err != nil {
		return nil, err
	}
	return e.ApplyTransition(ctx, orderID, status.State, merchantDataLines(status.MerchantData))
}

// SyncByPayID resolves the order behind a payment identifier and applies
// the gateway's current status. The merchant data echoed by the gateway
// identifies the order; the ledger index is the fallback.
func (e *Engine) SyncByPayID(ctx context.Context, payID string) (*TransitionResult, error) {
	status, err := e.gw.PaymentStatus(ctx, payID)
	if err != nil {
		return nil, err
	}
	orderID := ""
	lines := []models.MerchantDataLine(nil)
	if status.MerchantData != "" {
		if md, err := models.DecodeMerchantData(status.MerchantData); err == nil {
			orderID = md.OrderID
			lines = md.Lines
		}
	}
	if orderID == "" {
		order, err := e.ledger.GetOrderByPayID(ctx, payID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve order for payment %s: %w", payID, err)
		}
		orderID = order.ID
	}
	return e.ApplyTransition(ctx, orderID, status.State, lines)
}

// ApplyNotification authenticates an asynchronous gateway callback and
// applies its status. An unverifiable callback is rejected before any of
// its content is read.
func (e *Engine) ApplyNotification(ctx context.Context, resp *gateway.Response) (*TransitionResult, error) {
	if err := e.gw.VerifyNotification(resp); err != nil {
		return nil, err
	}
	if resp.MerchantData == "" {
		return e.SyncByPayID(ctx, resp.PayID)
	}
	md, err := models.DecodeMerchantData(resp.MerchantData)
	if err != nil {
		return nil, err
	}
	return e.ApplyTransition(ctx, md.OrderID, gateway.MapStatus(resp.PaymentStatus), md.Lines)
}

// Refund requests a full or partial refund for an order's payment and
// applies the resulting state.
func (e *Engine) Refund(ctx context.Context, orderID string, amount *float64) (*TransitionResult, error) {
	order, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	if order.PayID == "" {
		return nil, fmt.Errorf("order %s has no payment to refund", orderID)
	}
	status, err := e.gw.RefundPayment(ctx, order.PayID, amount)
	if err != nil {
		return nil, err
	}
	return e.ApplyTransition(ctx, orderID, status.State, nil)
}

func merchantDataLines(encoded string) []models.MerchantDataLine {
	if encoded == "" {
		return nil
	}
	md, err := models.DecodeMerchantData(encoded)
	if err != nil {
		return nil
	}
	return md.Lines
}
