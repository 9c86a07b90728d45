package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/aswathylr-builds/storefront-payments/activities"
	"github.com/aswathylr-builds/storefront-payments/reconcile"
)

// RefundWorkflow refunds an order's payment, fully or partially, and
// applies the resulting order transition.
func RefundWorkflow(ctx workflow.Context, input activities.RefundInput) (*reconcile.TransitionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Refund workflow started", "order_id", input.OrderID)

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

	var result reconcile.TransitionResult
	if err := workflow.ExecuteActivity(ctx, "RefundPayment", input).Get(ctx, &result); err != nil {
		logger.Error("Refund failed", "order_id", input.OrderID, "error", err)
		return nil, err
	}

	logger.Info("Refund workflow completed",
		"order_id", input.OrderID, "status", result.Status)
	return &result, nil
}
