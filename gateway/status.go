package gateway

import "github.com/aswathylr-builds/storefront-payments/models"

// Gateway payment status codes as documented by the card gateway.
const (
	StatusCodeCreated              = 1
	StatusCodeInProgress           = 2
	StatusCodeConfirmed            = 4
	StatusCodeCancelled            = 5
	StatusCodeDeclined             = 6
	StatusCodeWaitingForSettlement = 7
	StatusCodeSettled              = 8
	StatusCodeRefunded             = 9
	StatusCodePartiallyRefunded    = 10
)

// MapStatus translates a gateway numeric status code into a domain
// payment state. It is total: every input is defined and unmapped codes
// classify as unknown, which callers must never treat as terminal.
func MapStatus(code int) models.PaymentState {
	switch code {
	case StatusCodeCreated:
		return models.PaymentCreated
	case StatusCodeInProgress:
		return models.PaymentInProgress
	case StatusCodeConfirmed:
		return models.PaymentConfirmed
	case StatusCodeCancelled:
		return models.PaymentCancelled
	case StatusCodeDeclined:
		return models.PaymentDeclined
	case StatusCodeWaitingForSettlement:
		return models.PaymentWaitingForSettlement
	case StatusCodeSettled:
		return models.PaymentSettled
	case StatusCodeRefunded:
		return models.PaymentRefunded
	case StatusCodePartiallyRefunded:
		return models.PaymentPartiallyRefunded
	default:
		return models.PaymentUnknown
	}
}
