package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// MerchantDataLine is a cart line reference carried inside merchant data.
type MerchantDataLine struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// MerchantData is the opaque payload round-tripped through the payment
// gateway. It carries enough context for a status notification to be
// reconciled without a separate lookup.
type MerchantData struct {
	OrderID       string             `json:"order_id"`
	CustomerEmail string             `json:"customer_email"`
	CustomerName  string             `json:"customer_name"`
	Lines         []MerchantDataLine `json:"lines"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewMerchantData snapshots an order for the gateway round trip.
func NewMerchantData(order Order) MerchantData {
	lines := make([]MerchantDataLine, len(order.Cart))
	for i, l := range order.Cart {
		lines[i] = MerchantDataLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}
	return MerchantData{
		OrderID:       order.ID,
		CustomerEmail: order.Customer.Email,
		CustomerName:  order.Customer.Name,
		Lines:         lines,
		CreatedAt:     order.CreatedAt,
	}
}

// Encode serializes the payload to the base64 form sent to the gateway.
func (m MerchantData) Encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode merchant data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// DecodeMerchantData parses a merchant data payload echoed by the gateway.
func DecodeMerchantData(s string) (MerchantData, error) {
	var m MerchantData
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return m, fmt.Errorf("merchant data is not valid base64: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("failed to decode merchant data: %w", err)
	}
	return m, nil
}
