package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aswathylr-builds/storefront-payments/codec"
	"github.com/aswathylr-builds/storefront-payments/models"
)

// Client issues signed requests to the card payment gateway and verifies
// the signature on every response before its content is trusted.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates the merchant configuration and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// MerchantID returns the configured merchant identifier.
func (c *Client) MerchantID() string { return c.cfg.MerchantID }

// InitResult is the outcome of a successful payment initialization.
type InitResult struct {
	PayID       string              `json:"pay_id"`
	OrderNo     string              `json:"order_no"`
	RedirectURL string              `json:"redirect_url"`
	State       models.PaymentState `json:"state"`
}

// StatusResult is the verified outcome of a status, process or refund call.
type StatusResult struct {
	PayID        string              `json:"pay_id"`
	State        models.PaymentState `json:"state"`
	StatusCode   int                 `json:"status_code"`
	MerchantData string              `json:"merchant_data,omitempty"`
}

// InitializePayment opens a payment for the given cart. The order number
// must be freshly generated and unique per merchant; the request is never
// signed without one. The merchant data snapshot is base64-encoded and
// round-tripped through the gateway.
func (c *Client) InitializePayment(ctx context.Context, orderNo string, cart []models.CartLine, md models.MerchantData, currency string) (*InitResult, error) {
	if orderNo == "" {
		return nil, errors.New("payment/init: order number is required")
	}
	mdEnc, err := md.Encode()
	if err != nil {
		return nil, err
	}

	var total float64
	items := make([]CartItem, len(cart))
	for i, line := range cart {
		lineTotal := line.UnitPrice * float64(line.Quantity)
		total += lineTotal
		items[i] = CartItem{
			Name:        line.Name,
			Quantity:    line.Quantity,
			Amount:      MinorUnits(lineTotal),
			Description: line.Description,
		}
	}

	req := &InitRequest{
		MerchantID:   c.cfg.MerchantID,
		OrderNo:      orderNo,
		DTTM:         dttm(time.Now().UTC()),
		PayOperation: "payment",
		PayMethod:    "card",
		TotalAmount:  MinorUnits(total),
		Currency:     currency,
		ClosePayment: true,
		ReturnURL:    c.cfg.ReturnURL,
		Cart:         items,
		MerchantData: mdEnc,
		Language:     c.cfg.Language,
	}
	if req.Signature, err = codec.Sign(req.signableFields(), c.cfg.PrivateKey); err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(ctx, "payment/init", req)
	if err != nil {
		return nil, err
	}
	return &InitResult{
		PayID:       resp.PayID,
		OrderNo:     orderNo,
		RedirectURL: fmt.Sprintf("%s/payment/process/%s/%s", c.cfg.BaseURL, c.cfg.MerchantID, resp.PayID),
		State:       MapStatus(resp.PaymentStatus),
	}, nil
}

// PaymentStatus fetches the current payment status. It fails closed: a
// response whose signature does not verify yields a SignatureError and
// the embedded status is never returned.
func (c *Client) PaymentStatus(ctx context.Context, payID string) (*StatusResult, error) {
	req := &StatusRequest{
		MerchantID: c.cfg.MerchantID,
		PayID:      payID,
		DTTM:       dttm(time.Now().UTC()),
	}
	var err error
	if req.Signature, err = codec.Sign(req.signableFields(), c.cfg.PrivateKey); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, "payment/status", req)
	if err != nil {
		return nil, err
	}
	return statusResult(resp), nil
}

// ProcessPayment continues an authorized payment (explicit capture), with
// the same signature-verification gate as PaymentStatus.
func (c *Client) ProcessPayment(ctx context.Context, payID string) (*StatusResult, error) {
	req := &ProcessRequest{
		MerchantID: c.cfg.MerchantID,
		PayID:      payID,
		DTTM:       dttm(time.Now().UTC()),
	}
	var err error
	if req.Signature, err = codec.Sign(req.signableFields(), c.cfg.PrivateKey); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, "payment/process", req)
	if err != nil {
		return nil, err
	}
	return statusResult(resp), nil
}

// RefundPayment reverses a settled payment. A nil amount requests a full
// refund; a set amount is converted to minor units the same way as init.
func (c *Client) RefundPayment(ctx context.Context, payID string, amount *float64) (*StatusResult, error) {
	req := &RefundRequest{
		MerchantID: c.cfg.MerchantID,
		PayID:      payID,
		DTTM:       dttm(time.Now().UTC()),
	}
	if amount != nil {
		minor := MinorUnits(*amount)
		req.Amount = &minor
	}
	var err error
	if req.Signature, err = codec.Sign(req.signableFields(), c.cfg.PrivateKey); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx, "payment/refund", req)
	if err != nil {
		return nil, err
	}
	return statusResult(resp), nil
}

// VerifyNotification authenticates an asynchronous gateway callback. The
// callback carries the same response shape and is signed with the same
// gateway key as a polled response.
func (c *Client) VerifyNotification(resp *Response) error {
	ok, err := resp.VerifyWith(c.cfg.GatewayPublicKey)
	if err != nil {
		return err
	}
	if !ok {
		return &models.SignatureError{Operation: "payment/callback"}
	}
	return nil
}

func statusResult(resp *Response) *StatusResult {
	return &StatusResult{
		PayID:        resp.PayID,
		State:        MapStatus(resp.PaymentStatus),
		StatusCode:   resp.PaymentStatus,
		MerchantData: resp.MerchantData,
	}
}

// roundTrip posts a signed request and returns the response only after
// its signature has verified and its result code is zero.
func (c *Client) roundTrip(ctx context.Context, op string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &models.TransportError{Operation: op, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &models.TransportError{Operation: op, Err: err}
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &models.TransportError{
			Operation: op,
			Err:       fmt.Errorf("gateway returned HTTP %d: %s", httpResp.StatusCode, raw),
		}
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &models.TransportError{Operation: op, Err: fmt.Errorf("malformed response body: %w", err)}
	}

	ok, err := resp.VerifyWith(c.cfg.GatewayPublicKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &models.SignatureError{Operation: op}
	}
	if resp.ResultCode != ResultCodeOK {
		return nil, &models.GatewayError{Code: resp.ResultCode, Message: resp.ResultMessage}
	}
	return &resp, nil
}
