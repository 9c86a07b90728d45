package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/aswathylr-builds/storefront-payments/models"
)

// CheckoutRequest is one checkout attempt for a cart.
type CheckoutRequest struct {
	Cart          []models.CartLine `json:"cart"`
	Customer      models.Customer   `json:"customer"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method,omitempty"`
}

// CheckoutResult identifies the created order and where to send the payer.
type CheckoutResult struct {
	OrderID     string `json:"order_id"`
	OrderNo     string `json:"order_no"`
	PayID       string `json:"pay_id"`
	RedirectURL string `json:"redirect_url"`
}

// CheckAvailability compares each requested quantity against current
// stock. Any shortfall blocks checkout with the full list of insufficient
// lines, before any signed gateway round trip is made.
func (e *Engine) CheckAvailability(ctx context.Context, cart []models.CartLine) error {
	var short []models.ShortfallLine
	for _, line := range cart {
		stock, err := e.inventory.Stock(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to read stock for product %s: %w", line.ProductID, err)
		}
		if stock < line.Quantity {
			short = append(short, models.ShortfallLine{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: stock,
			})
		}
	}
	if len(short) > 0 {
		return &models.InsufficientStockError{Lines: short}
	}
	return nil
}

// BeginCheckout runs the synchronous half of a checkout: availability
// pre-check, order-number generation, order-record creation in the
// initiated state and the signed gateway init. The order record exists
// before the gateway is asked to confirm receipt of the init request.
func (e *Engine) BeginCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Cart) == 0 {
		return nil, fmt.Errorf("checkout requires at least one cart line")
	}
	if err := e.CheckAvailability(ctx, req.Cart); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	orderNo, err := e.NextOrderNumber(ctx, now)
	if err != nil {
		return nil, err
	}

	var total float64
	for _, line := range req.Cart {
		total += line.UnitPrice * float64(line.Quantity)
	}

	order := models.Order{
		ID:              "ord_" + uuid.NewString(),
		OrderNo:         orderNo,
		Customer:        req.Customer,
		TotalAmount:     total,
		Currency:        req.Currency,
		Status:          models.StatusInitiated,
		Cart:            req.Cart,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
	if err := e.ledger.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order record: %w", err)
	}

	init, err := e.gw.InitializePayment(ctx, orderNo, req.Cart, models.NewMerchantData(order), req.Currency)
	if err != nil {
		// The order stays initiated; a later out-of-band sweep reconciles it.
		return nil, err
	}
	if err := e.ledger.SetPaymentID(ctx, order.ID, init.PayID); err != nil {
		return nil, fmt.Errorf("failed to attach payment id to order %s: %w", order.ID, err)
	}

	return &CheckoutResult{
		OrderID:     order.ID,
		OrderNo:     orderNo,
		PayID:       init.PayID,
		RedirectURL: init.RedirectURL,
	}, nil
}
