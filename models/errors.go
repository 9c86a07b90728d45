package models

import (
	"errors"
	"fmt"
)

// SignatureError reports a gateway response whose signature failed
// verification. The business content of such a response must be discarded.
type SignatureError struct {
	Operation string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("%s: response signature verification failed", e.Operation)
}

// GatewayError reports a well-signed response with a non-zero result code.
// It is surfaced with the gateway's own message and is not retried.
type GatewayError struct {
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected request: code %d: %s", e.Code, e.Message)
}

// TransportError reports a network or timeout failure talking to the
// gateway. It is eligible for caller-driven retry and never mutates
// order state.
type TransportError struct {
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: gateway transport failure: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ShortfallLine describes one cart line that cannot be fulfilled.
type ShortfallLine struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError blocks a checkout before any signed gateway
// call is made.
type InsufficientStockError struct {
	Lines []ShortfallLine
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d cart line(s)", len(e.Lines))
}

// ErrStatusCheckTimeout is returned when the bounded status poll is
// exhausted without a known payment outcome. The payment may still
// complete; the order is not marked failed.
var ErrStatusCheckTimeout = errors.New("payment status check timed out; check back later")
