package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"

	"github.com/aswathylr-builds/storefront-payments/activities"
	"github.com/aswathylr-builds/storefront-payments/gateway"
	"github.com/aswathylr-builds/storefront-payments/models"
	"github.com/aswathylr-builds/storefront-payments/reconcile"
	"github.com/aswathylr-builds/storefront-payments/workflows"
)

// Ingress is the storefront-facing HTTP API: it starts checkout and
// refund workflows and receives asynchronous gateway notifications.
type Ingress struct {
	engine    *reconcile.Engine
	temporal  client.Client
	taskQueue string
}

// New wires the ingress to the reconciliation engine and the Temporal
// client.
func New(engine *reconcile.Engine, temporalClient client.Client, taskQueue string) *Ingress {
	return &Ingress{engine: engine, temporal: temporalClient, taskQueue: taskQueue}
}

// Router builds the API routes.
func (i *Ingress) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/checkout", i.handleCheckout)
		r.Get("/checkout/{checkoutID}", i.handleCheckoutStatus)

		// payId is accepted as a query parameter or a body field; the two
		// entry points behave identically.
		r.Get("/payment/status", i.handlePaymentStatus)
		r.Post("/payment/status", i.handlePaymentStatus)

		r.Post("/gateway/callback", i.handleCallback)
		r.Post("/refund", i.handleRefund)
	})
	return r
}

type checkoutAccepted struct {
	CheckoutID string `json:"checkout_id"`
	RunID      string `json:"run_id"`
	StatusURL  string `json:"status_url"`
}

func (i *Ingress) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req reconcile.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Cart) == 0 {
		writeError(w, http.StatusBadRequest, "cart must not be empty")
		return
	}
	if req.Customer.Email == "" {
		writeError(w, http.StatusBadRequest, "customer email is required")
		return
	}
	if req.Currency == "" {
		writeError(w, http.StatusBadRequest, "currency is required")
		return
	}

	workflowID := "checkout-" + uuid.NewString()
	we, err := i.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: i.taskQueue,
	}, workflows.CheckoutWorkflowName, workflows.CheckoutInput{Request: req})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to start checkout: %v", err))
		return
	}

	writeJSON(w, http.StatusAccepted, checkoutAccepted{
		CheckoutID: we.GetID(),
		RunID:      we.GetRunID(),
		StatusURL:  "/api/checkout/" + we.GetID(),
	})
}

func (i *Ingress) handleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")

	resp, err := i.temporal.QueryWorkflow(r.Context(), checkoutID, "", workflows.QueryCheckoutStatus)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("checkout %s not found: %v", checkoutID, err))
		return
	}
	var state workflows.CheckoutState
	if err := resp.Get(&state); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to decode checkout state: %v", err))
		return
	}
	if state.TimedOut {
		// Not a payment failure: surface the timeout to the shopper while
		// the order awaits out-of-band reconciliation.
		writeJSON(w, http.StatusOK, map[string]any{
			"state":   state,
			"message": models.ErrStatusCheckTimeout.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handlePaymentStatus serves both the query-parameter and the body form
// of the status endpoint through the same reconciliation path.
func (i *Ingress) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	payID := r.URL.Query().Get("payId")
	if payID == "" && r.Body != nil {
		var body struct {
			PayID string `json:"payId"`
		}
		// A missing or malformed body is fine as long as the query carried
		// the id; reaching here means it did not.
		_ = json.NewDecoder(r.Body).Decode(&body)
		payID = body.PayID
	}
	if payID == "" {
		writeError(w, http.StatusBadRequest, "payId is required (query parameter or body field)")
		return
	}

	result, err := i.engine.SyncByPayID(r.Context(), payID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (i *Ingress) handleCallback(w http.ResponseWriter, r *http.Request) {
	var resp gateway.Response
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback body")
		return
	}

	result, err := i.engine.ApplyNotification(r.Context(), &resp)
	if err != nil {
		var sigErr *models.SignatureError
		if errors.As(err, &sigErr) {
			// Unverifiable callbacks are discarded without reading their
			// business content.
			writeError(w, http.StatusBadRequest, sigErr.Error())
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (i *Ingress) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string   `json:"order_id"`
		Amount  *float64 `json:"amount,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	we, err := i.temporal.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:        "refund-" + req.OrderID,
		TaskQueue: i.taskQueue,
	}, workflows.RefundWorkflowName, activities.RefundInput{OrderID: req.OrderID, Amount: req.Amount})
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to start refund: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"workflow_id": we.GetID(),
		"run_id":      we.GetRunID(),
	})
}

func writeDomainError(w http.ResponseWriter, err error) {
	var (
		sigErr   *models.SignatureError
		gwErr    *models.GatewayError
		tpErr    *models.TransportError
		stockErr *models.InsufficientStockError
	)
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": stockErr.Error(),
			"lines": stockErr.Lines,
		})
	case errors.As(err, &sigErr):
		writeError(w, http.StatusBadGateway, sigErr.Error())
	case errors.As(err, &gwErr):
		writeError(w, http.StatusBadGateway, gwErr.Error())
	case errors.As(err, &tpErr):
		writeError(w, http.StatusGatewayTimeout, tpErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
