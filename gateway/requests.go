package gateway

import (
	"math"
	"time"

	"github.com/aswathylr-builds/storefront-payments/codec"
)

// dttmFormat is the numeric YYYYMMDDhhmmss timestamp carried in every
// signed request.
const dttmFormat = "20060102150405"

func dttm(at time.Time) string {
	return at.Format(dttmFormat)
}

// MinorUnits converts a major-unit decimal amount to integer minor units,
// rounding half up. 189.50 becomes 18950.
func MinorUnits(major float64) int64 {
	return int64(math.Floor(major*100 + 0.5))
}

// CartItem is one cart line as transmitted to the gateway: the amount is
// the line total in minor units.
type CartItem struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

// InitRequest opens a new payment at the gateway.
//
// closePayment is transmitted but deliberately excluded from the signable
// field list: boolean fields never participate in the signing base string.
type InitRequest struct {
	MerchantID   string     `json:"merchantId"`
	OrderNo      string     `json:"orderNo"`
	DTTM         string     `json:"dttm"`
	PayOperation string     `json:"payOperation"`
	PayMethod    string     `json:"payMethod"`
	TotalAmount  int64      `json:"totalAmount"`
	Currency     string     `json:"currency"`
	ClosePayment bool       `json:"closePayment"`
	ReturnURL    string     `json:"returnUrl"`
	Cart         []CartItem `json:"cart"`
	MerchantData string     `json:"merchantData"`
	Language     string     `json:"language"`
	Signature    string     `json:"signature"`
}

func (r *InitRequest) signableFields() []codec.Field {
	cart := make([]any, len(r.Cart))
	for i, item := range r.Cart {
		line := map[string]any{
			"name":     item.Name,
			"quantity": item.Quantity,
			"amount":   item.Amount,
		}
		if item.Description != "" {
			line["description"] = item.Description
		}
		cart[i] = line
	}
	return []codec.Field{
		{Name: "merchantId", Value: r.MerchantID},
		{Name: "orderNo", Value: r.OrderNo},
		{Name: "dttm", Value: r.DTTM},
		{Name: "payOperation", Value: r.PayOperation},
		{Name: "payMethod", Value: r.PayMethod},
		{Name: "totalAmount", Value: r.TotalAmount},
		{Name: "currency", Value: r.Currency},
		{Name: "returnUrl", Value: r.ReturnURL},
		{Name: "cart", Value: cart},
		{Name: "merchantData", Value: r.MerchantData},
		{Name: "language", Value: r.Language},
	}
}

// StatusRequest reads the current payment status.
type StatusRequest struct {
	MerchantID string `json:"merchantId"`
	PayID      string `json:"payId"`
	DTTM       string `json:"dttm"`
	Signature  string `json:"signature"`
}

func (r *StatusRequest) signableFields() []codec.Field {
	return []codec.Field{
		{Name: "merchantId", Value: r.MerchantID},
		{Name: "payId", Value: r.PayID},
		{Name: "dttm", Value: r.DTTM},
	}
}

// ProcessRequest continues an authorized payment (explicit capture).
type ProcessRequest struct {
	MerchantID string `json:"merchantId"`
	PayID      string `json:"payId"`
	DTTM       string `json:"dttm"`
	Signature  string `json:"signature"`
}

func (r *ProcessRequest) signableFields() []codec.Field {
	return []codec.Field{
		{Name: "merchantId", Value: r.MerchantID},
		{Name: "payId", Value: r.PayID},
		{Name: "dttm", Value: r.DTTM},
	}
}

// RefundRequest reverses a settled payment. A nil Amount requests a full
// refund; the absent field is then skipped by the signing codec.
type RefundRequest struct {
	MerchantID string `json:"merchantId"`
	PayID      string `json:"payId"`
	DTTM       string `json:"dttm"`
	Amount     *int64 `json:"amount,omitempty"`
	Signature  string `json:"signature"`
}

func (r *RefundRequest) signableFields() []codec.Field {
	var amount any
	if r.Amount != nil {
		amount = *r.Amount
	}
	return []codec.Field{
		{Name: "merchantId", Value: r.MerchantID},
		{Name: "payId", Value: r.PayID},
		{Name: "dttm", Value: r.DTTM},
		{Name: "amount", Value: amount},
	}
}
