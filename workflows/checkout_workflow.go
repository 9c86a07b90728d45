package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aswathylr-builds/storefront-payments/models"
	"github.com/aswathylr-builds/storefront-payments/reconcile"
)

// RetryPolicy configuration
type RetryPolicy = temporal.RetryPolicy

const (
	CheckoutWorkflowName = "CheckoutWorkflow"
	RefundWorkflowName   = "RefundWorkflow"

	// QueryCheckoutStatus exposes the live checkout state, including the
	// gateway redirect URL once the payment is initialized.
	QueryCheckoutStatus = "getStatus"
)

// Poll defaults; overridable per checkout.
const (
	defaultPollInterval = 3 * time.Second
	defaultMaxAttempts  = 20
)

// CheckoutInput starts one checkout attempt.
type CheckoutInput struct {
	Request      reconcile.CheckoutRequest `json:"request"`
	PollInterval time.Duration             `json:"poll_interval,omitempty"`
	MaxAttempts  int                       `json:"max_attempts,omitempty"`
}

// CheckoutState is the queryable progress of a checkout.
type CheckoutState struct {
	OrderID     string             `json:"order_id"`
	OrderNo     string             `json:"order_no"`
	PayID       string             `json:"pay_id"`
	RedirectURL string             `json:"redirect_url"`
	Status      models.OrderStatus `json:"status"`
	Attempts    int                `json:"attempts"`
	TimedOut    bool               `json:"timed_out"`
	Warnings    []string           `json:"warnings,omitempty"`
	LastUpdated time.Time          `json:"last_updated"`
}

// CheckoutResult is the final state of the checkout workflow. TimedOut
// means the poll bound was exhausted without a known outcome: the payment
// may still complete and the order is NOT marked failed; a later
// out-of-band status check reconciles it.
type CheckoutResult struct {
	OrderID     string             `json:"order_id"`
	OrderNo     string             `json:"order_no"`
	PayID       string             `json:"pay_id"`
	RedirectURL string             `json:"redirect_url"`
	Status      models.OrderStatus `json:"status"`
	TimedOut    bool               `json:"timed_out"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// CheckoutWorkflow drives one checkout end to end: availability
// pre-check, order creation with gateway init, then a bounded
// fixed-interval poll of the payment status with a reconciliation
// transition applied on every observed change.
func CheckoutWorkflow(ctx workflow.Context, input CheckoutInput) (*CheckoutResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Checkout workflow started", "lines", len(input.Request.Cart))

	interval := input.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxAttempts := input.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	state := &CheckoutState{
		Status:      models.StatusInitiated,
		LastUpdated: workflow.Now(ctx),
	}
	if err := workflow.SetQueryHandler(ctx, QueryCheckoutStatus, func() (*CheckoutState, error) {
		return state, nil
	}); err != nil {
		logger.Error("Failed to register query handler", "error", err)
		return nil, err
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout:    30 * time.Second,
		ScheduleToStartTimeout: 10 * time.Second,
		RetryPolicy: &RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// Fail fast on stock before any signed gateway round trip.
	if err := workflow.ExecuteActivity(ctx, "CheckAvailability", input.Request.Cart).Get(ctx, nil); err != nil {
		logger.Error("Availability pre-check failed", "error", err)
		return nil, err
	}

	var checkout reconcile.CheckoutResult
	if err := workflow.ExecuteActivity(ctx, "BeginCheckout", input.Request).Get(ctx, &checkout); err != nil {
		logger.Error("Checkout initialization failed", "error", err)
		return nil, err
	}

	state.OrderID = checkout.OrderID
	state.OrderNo = checkout.OrderNo
	state.PayID = checkout.PayID
	state.RedirectURL = checkout.RedirectURL
	state.LastUpdated = workflow.Now(ctx)
	logger.Info("Payment initialized",
		"order_id", checkout.OrderID, "order_no", checkout.OrderNo, "pay_id", checkout.PayID)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := workflow.Sleep(ctx, interval); err != nil {
			return nil, err
		}
		state.Attempts = attempt

		var tr reconcile.TransitionResult
		if err := workflow.ExecuteActivity(ctx, "SyncPaymentStatus", checkout.OrderID).Get(ctx, &tr); err != nil {
			// Transport trouble is retried by the activity policy; a still-
			// failing poll is logged and the loop keeps going so that a
			// transient gateway outage does not abandon the checkout.
			logger.Warn("Status poll failed", "order_id", checkout.OrderID, "attempt", attempt, "error", err)
			state.LastUpdated = workflow.Now(ctx)
			continue
		}

		state.Status = tr.Status
		state.Warnings = append(state.Warnings, tr.Warnings...)
		state.LastUpdated = workflow.Now(ctx)

		if tr.Status.Outcome() {
			logger.Info("Checkout reached payment outcome",
				"order_id", checkout.OrderID, "status", tr.Status, "attempts", attempt)
			return &CheckoutResult{
				OrderID:     checkout.OrderID,
				OrderNo:     checkout.OrderNo,
				PayID:       checkout.PayID,
				RedirectURL: checkout.RedirectURL,
				Status:      tr.Status,
				Warnings:    state.Warnings,
			}, nil
		}
	}

	state.TimedOut = true
	state.LastUpdated = workflow.Now(ctx)
	logger.Info("Checkout poll bound exhausted; leaving order for out-of-band reconciliation",
		"order_id", checkout.OrderID, "status", state.Status)
	return &CheckoutResult{
		OrderID:     checkout.OrderID,
		OrderNo:     checkout.OrderNo,
		PayID:       checkout.PayID,
		RedirectURL: checkout.RedirectURL,
		Status:      state.Status,
		TimedOut:    true,
		Warnings:    state.Warnings,
	}, nil
}
