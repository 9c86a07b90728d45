package models

import "time"

// PaymentState is the domain classification of a gateway payment status code.
type PaymentState string

const (
	PaymentCreated              PaymentState = "created"
	PaymentInProgress           PaymentState = "in_progress"
	PaymentConfirmed            PaymentState = "confirmed"
	PaymentCancelled            PaymentState = "cancelled"
	PaymentDeclined             PaymentState = "declined"
	PaymentWaitingForSettlement PaymentState = "waiting_for_settlement"
	PaymentSettled              PaymentState = "settled"
	PaymentRefunded             PaymentState = "refunded"
	PaymentPartiallyRefunded    PaymentState = "partially_refunded"
	PaymentUnknown              PaymentState = "unknown"
)

// Successful reports whether this state authorizes an inventory decrement.
// Only confirmed and settled do.
func (s PaymentState) Successful() bool {
	return s == PaymentConfirmed || s == PaymentSettled
}

// FailedTerminal reports whether the payment has terminally failed.
func (s PaymentState) FailedTerminal() bool {
	return s == PaymentCancelled || s == PaymentDeclined
}

// OrderStatus is the lifecycle status persisted on an order record.
type OrderStatus string

const (
	StatusInitiated         OrderStatus = "initiated"
	StatusInProgress        OrderStatus = "in_progress"
	StatusConfirmed         OrderStatus = "confirmed"
	StatusCancelled         OrderStatus = "cancelled"
	StatusDeclined          OrderStatus = "declined"
	StatusSettled           OrderStatus = "settled"
	StatusRefunded          OrderStatus = "refunded"
	StatusPartiallyRefunded OrderStatus = "partially_refunded"
)

// statusRank orders the lifecycle so that stale or replayed notifications
// can never move an order backwards. Statuses of equal rank are mutually
// exclusive outcomes of the same step.
var statusRank = map[OrderStatus]int{
	StatusInitiated:         0,
	StatusInProgress:        1,
	StatusConfirmed:         2,
	StatusCancelled:         2,
	StatusDeclined:          2,
	StatusSettled:           3,
	StatusRefunded:          4,
	StatusPartiallyRefunded: 4,
}

// Rank returns the position of the status in the order lifecycle.
func (s OrderStatus) Rank() int {
	return statusRank[s]
}

// Outcome reports whether the payment outcome for the order is known,
// i.e. polling for a result can stop.
func (s OrderStatus) Outcome() bool {
	return s.Rank() >= statusRank[StatusConfirmed]
}

// OrderStatus maps a payment state onto the order lifecycle.
// waiting_for_settlement keeps the order confirmed; an unknown state maps
// to the empty status and must never be applied to an order.
func (s PaymentState) OrderStatus() (OrderStatus, bool) {
	switch s {
	case PaymentCreated:
		return StatusInitiated, true
	case PaymentInProgress:
		return StatusInProgress, true
	case PaymentConfirmed, PaymentWaitingForSettlement:
		return StatusConfirmed, true
	case PaymentCancelled:
		return StatusCancelled, true
	case PaymentDeclined:
		return StatusDeclined, true
	case PaymentSettled:
		return StatusSettled, true
	case PaymentRefunded:
		return StatusRefunded, true
	case PaymentPartiallyRefunded:
		return StatusPartiallyRefunded, true
	default:
		return "", false
	}
}

// CartLine is a single purchased item in a checkout.
type CartLine struct {
	ProductID   string  `json:"product_id"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Description string  `json:"description,omitempty"`
}

// Customer is the contact captured at checkout.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Order is the persisted record of one checkout attempt. It is created once,
// mutated only through the reconciliation transition function and never
// deleted; cancelled orders are retained for audit.
type Order struct {
	ID              string      `json:"id"`
	OrderNo         string      `json:"order_no"`
	PayID           string      `json:"pay_id,omitempty"`
	Customer        Customer    `json:"customer"`
	TotalAmount     float64     `json:"total_amount"`
	Currency        string      `json:"currency"`
	Status          OrderStatus `json:"status"`
	Cart            []CartLine  `json:"cart"`
	PaymentMethod   string      `json:"payment_method,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	StatusChangedAt time.Time   `json:"status_changed_at"`
}
