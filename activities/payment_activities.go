package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/aswathylr-builds/storefront-payments/events"
	"github.com/aswathylr-builds/storefront-payments/models"
	"github.com/aswathylr-builds/storefront-payments/reconcile"
)

// PaymentActivities wraps the reconciliation engine and the event
// publisher for execution inside Temporal workflows.
type PaymentActivities struct {
	Engine    *reconcile.Engine
	Publisher *events.Publisher
}

// NewPaymentActivities creates the activity set.
func NewPaymentActivities(engine *reconcile.Engine, publisher *events.Publisher) *PaymentActivities {
	return &PaymentActivities{Engine: engine, Publisher: publisher}
}

// RefundInput asks for a refund of an order's payment. A nil Amount is a
// full refund.
type RefundInput struct {
	OrderID string   `json:"order_id"`
	Amount  *float64 `json:"amount,omitempty"`
}

// CheckAvailability fails a checkout before any signed gateway call when
// the cart cannot be fulfilled from current stock.
func (a *PaymentActivities) CheckAvailability(ctx context.Context, cart []models.CartLine) error {
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Info("Checking cart availability", "lines", len(cart))
	}
	return classify(a.Engine.CheckAvailability(ctx, cart))
}

// BeginCheckout creates the order record and initializes the payment at
// the gateway.
func (a *PaymentActivities) BeginCheckout(ctx context.Context, req reconcile.CheckoutRequest) (*reconcile.CheckoutResult, error) {
	result, err := a.Engine.BeginCheckout(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Info("Payment initialized",
			"order_id", result.OrderID, "order_no", result.OrderNo, "pay_id", result.PayID)
	}
	return result, nil
}

// SyncPaymentStatus polls the gateway and applies the transition. An
// applied change is announced on the payments topic; a publish failure is
// a soft warning on the result, never a failure of the reconciliation.
func (a *PaymentActivities) SyncPaymentStatus(ctx context.Context, orderID string) (*reconcile.TransitionResult, error) {
	result, err := a.Engine.SyncPaymentStatus(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	a.publish(ctx, result)
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Info("Payment status synced",
			"order_id", orderID, "status", result.Status, "changed", result.Changed,
			"inventory_applied", result.InventoryApplied, "warnings", len(result.Warnings))
	}
	return result, nil
}

// RefundPayment requests a full or partial refund and applies the
// resulting state.
func (a *PaymentActivities) RefundPayment(ctx context.Context, input RefundInput) (*reconcile.TransitionResult, error) {
	result, err := a.Engine.Refund(ctx, input.OrderID, input.Amount)
	if err != nil {
		return nil, classify(err)
	}
	a.publish(ctx, result)
	return result, nil
}

func (a *PaymentActivities) publish(ctx context.Context, result *reconcile.TransitionResult) {
	if !result.Changed {
		return
	}
	if err := a.Publisher.PublishStatusChange(result.OrderID, result.PayID, result.Status); err != nil {
		result.Warnings = append(result.Warnings, err.Error())
		if activity.IsActivity(ctx) {
			activity.GetLogger(ctx).Warn("Payment event publish failed",
				"order_id", result.OrderID, "error", err)
		}
	}
}

// classify marks protocol and business rejections as non-retryable so
// workflow retry policies only re-run transport failures. Retrying a
// rejected or unverifiable response cannot succeed and must surface
// immediately.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		sigErr   *models.SignatureError
		gwErr    *models.GatewayError
		stockErr *models.InsufficientStockError
	)
	switch {
	case errors.As(err, &sigErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), "SignatureInvalid", err)
	case errors.As(err, &gwErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), "GatewayRejected", err)
	case errors.As(err, &stockErr):
		return temporal.NewNonRetryableApplicationError(err.Error(), "InsufficientStock", err, stockErr.Lines)
	default:
		return err
	}
}
