package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aswathylr-builds/storefront-payments/gateway"
	"github.com/aswathylr-builds/storefront-payments/models"
)

type memLedger struct {
	mu        sync.Mutex
	orders    map[string]models.Order
	adjusted  map[string]bool
	seq       map[string]int64
	statusErr error
}

func newMemLedger() *memLedger {
	return &memLedger{
		orders:   make(map[string]models.Order),
		adjusted: make(map[string]bool),
		seq:      make(map[string]int64),
	}
}

func (l *memLedger) CreateOrder(_ context.Context, order models.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	l.orders[order.ID] = order
	return nil
}

func (l *memLedger) GetOrder(_ context.Context, orderID string) (models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s not found", orderID)
	}
	return order, nil
}

func (l *memLedger) GetOrderByPayID(_ context.Context, payID string) (models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, order := range l.orders {
		if order.PayID == payID {
			return order, nil
		}
	}
	return models.Order{}, fmt.Errorf("no order for payment %s", payID)
}

func (l *memLedger) SetPaymentID(_ context.Context, orderID, payID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	order.PayID = payID
	l.orders[orderID] = order
	return nil
}

func (l *memLedger) UpdateStatus(_ context.Context, orderID string, status models.OrderStatus, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.statusErr != nil {
		return l.statusErr
	}
	order, ok := l.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	order.Status = status
	order.StatusChangedAt = at
	l.orders[orderID] = order
	return nil
}

func (l *memLedger) NextOrderSequence(_ context.Context, day string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq[day]++
	return l.seq[day], nil
}

func (l *memLedger) TryMarkAdjusted(_ context.Context, orderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.adjusted[orderID] {
		return false, nil
	}
	l.adjusted[orderID] = true
	return true, nil
}

type memInventory struct {
	mu         sync.Mutex
	stock      map[string]int
	decrements int
	failWith   error
}

func newMemInventory(stock map[string]int) *memInventory {
	return &memInventory{stock: stock}
}

func (inv *memInventory) Stock(_ context.Context, productID string) (int, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.stock[productID], nil
}

func (inv *memInventory) DecrementStock(_ context.Context, productID string, qty int, _ string, _ time.Time) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.failWith != nil {
		return inv.failWith
	}
	inv.decrements++
	remaining := inv.stock[productID] - qty
	if remaining < 0 {
		remaining = 0
	}
	inv.stock[productID] = remaining
	return nil
}

type fakeGateway struct {
	state        models.PaymentState
	merchantData string
	initErr      error
	verifyErr    error
	statusCalls  int
}

func (g *fakeGateway) InitializePayment(_ context.Context, orderNo string, _ []models.CartLine, md models.MerchantData, _ string) (*gateway.InitResult, error) {
	if g.initErr != nil {
		return nil, g.initErr
	}
	encoded, err := md.Encode()
	if err != nil {
		return nil, err
	}
	g.merchantData = encoded
	return &gateway.InitResult{
		PayID:       "pay-fake-1",
		OrderNo:     orderNo,
		RedirectURL: "https://gateway.example.com/payment/process/M001/pay-fake-1",
		State:       models.PaymentCreated,
	}, nil
}

func (g *fakeGateway) PaymentStatus(_ context.Context, payID string) (*gateway.StatusResult, error) {
	g.statusCalls++
	return &gateway.StatusResult{PayID: payID, State: g.state, MerchantData: g.merchantData}, nil
}

func (g *fakeGateway) RefundPayment(_ context.Context, payID string, _ *float64) (*gateway.StatusResult, error) {
	return &gateway.StatusResult{PayID: payID, State: models.PaymentRefunded}, nil
}

func (g *fakeGateway) VerifyNotification(_ *gateway.Response) error {
	return g.verifyErr
}

func testEngine(t *testing.T, stock map[string]int) (*Engine, *memLedger, *memInventory, *fakeGateway) {
	t.Helper()
	ledger := newMemLedger()
	inventory := newMemInventory(stock)
	gw := &fakeGateway{state: models.PaymentInProgress}
	return NewEngine(ledger, inventory, gw, "SF"), ledger, inventory, gw
}

func seedOrder(t *testing.T, ledger *memLedger, status models.OrderStatus) models.Order {
	t.Helper()
	order := models.Order{
		ID:      "ord_1",
		OrderNo: "SF202608280001",
		PayID:   "pay-fake-1",
		Status:  status,
		Cart: []models.CartLine{
			{ProductID: "SKU-1001", Name: "Widget", Quantity: 2, UnitPrice: 94.75},
		},
		Currency:    "CZK",
		TotalAmount: 189.50,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, ledger.CreateOrder(context.Background(), order))
	return order
}

func TestApplyTransition_ConfirmedDecrementsOnce(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)
	ctx := context.Background()

	result, err := engine.ApplyTransition(ctx, order.ID, models.PaymentConfirmed, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.True(t, result.InventoryApplied)
	assert.Equal(t, models.StatusConfirmed, result.Status)
	assert.Equal(t, "pay-fake-1", result.PayID)
	assert.Equal(t, 3, inventory.stock["SKU-1001"])

	// A duplicate notification changes nothing and decrements nothing.
	result, err = engine.ApplyTransition(ctx, order.ID, models.PaymentConfirmed, nil)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.False(t, result.InventoryApplied)
	assert.Equal(t, 3, inventory.stock["SKU-1001"])
	assert.Equal(t, 1, inventory.decrements)
}

func TestApplyTransition_SettledAfterConfirmedAdvancesWithoutDecrement(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)
	ctx := context.Background()

	_, err := engine.ApplyTransition(ctx, order.ID, models.PaymentConfirmed, nil)
	require.NoError(t, err)

	result, err := engine.ApplyTransition(ctx, order.ID, models.PaymentSettled, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusSettled, result.Status)
	assert.False(t, result.InventoryApplied)
	assert.Equal(t, 3, inventory.stock["SKU-1001"])
	assert.Equal(t, 1, inventory.decrements)
}

func TestApplyTransition_DeclinedNeverTouchesInventory(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)

	result, err := engine.ApplyTransition(context.Background(), order.ID, models.PaymentDeclined, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusDeclined, result.Status)
	assert.False(t, result.InventoryApplied)
	assert.Equal(t, 5, inventory.stock["SKU-1001"])
	assert.Equal(t, 0, inventory.decrements)
}

func TestApplyTransition_StaleStateIsNoOp(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusSettled)
	ctx := context.Background()

	// A late in_progress replay must not move the order backwards.
	result, err := engine.ApplyTransition(ctx, order.ID, models.PaymentInProgress, nil)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, models.StatusSettled, result.Status)

	// Unknown is discarded entirely.
	result, err = engine.ApplyTransition(ctx, order.ID, models.PaymentUnknown, nil)
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, models.StatusSettled, result.Status)
	assert.Equal(t, 5, inventory.stock["SKU-1001"])
}

func TestApplyTransition_WaitingForSettlementConfirmsWithoutDecrement(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)

	result, err := engine.ApplyTransition(context.Background(), order.ID, models.PaymentWaitingForSettlement, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusConfirmed, result.Status)
	assert.False(t, result.InventoryApplied)
	assert.Equal(t, 0, inventory.decrements)
}

func TestApplyTransition_InventoryFailureIsSoft(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)
	inventory.failWith = fmt.Errorf("inventory store unreachable")

	result, err := engine.ApplyTransition(context.Background(), order.ID, models.PaymentConfirmed, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusConfirmed, result.Status)
	assert.True(t, result.InventoryApplied)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "SKU-1001")

	stored, err := ledger.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
}

func TestApplyTransition_StatusWriteFailureIsHard(t *testing.T) {
	engine, ledger, _, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)
	ledger.statusErr = fmt.Errorf("ledger unavailable")

	_, err := engine.ApplyTransition(context.Background(), order.ID, models.PaymentConfirmed, nil)
	require.Error(t, err)
}

func TestApplyTransition_ConcurrentDuplicatesDecrementOnce(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 100})
	order := seedOrder(t, ledger, models.StatusInProgress)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ApplyTransition(context.Background(), order.ID, models.PaymentConfirmed, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 98, inventory.stock["SKU-1001"])
	assert.Equal(t, 1, inventory.decrements)
}

func TestCheckAvailability_ReportsEveryShortfall(t *testing.T) {
	engine, _, _, _ := testEngine(t, map[string]int{"SKU-1001": 1, "SKU-2002": 0})

	err := engine.CheckAvailability(context.Background(), []models.CartLine{
		{ProductID: "SKU-1001", Quantity: 2},
		{ProductID: "SKU-2002", Quantity: 1},
		{ProductID: "SKU-1001", Quantity: 1},
	})
	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Lines, 2)
	assert.Equal(t, "SKU-1001", stockErr.Lines[0].ProductID)
	assert.Equal(t, 2, stockErr.Lines[0].Requested)
	assert.Equal(t, 1, stockErr.Lines[0].Available)
}

func TestBeginCheckout_CreatesOrderBeforeGatewayInit(t *testing.T) {
	engine, ledger, _, gw := testEngine(t, map[string]int{"SKU-1001": 5})

	result, err := engine.BeginCheckout(context.Background(), CheckoutRequest{
		Cart: []models.CartLine{
			{ProductID: "SKU-1001", Name: "Widget", Quantity: 2, UnitPrice: 94.75},
		},
		Customer: models.Customer{Email: "shopper@example.com", Name: "Demo Shopper"},
		Currency: "CZK",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-fake-1", result.PayID)
	assert.NotEmpty(t, result.RedirectURL)
	assert.Regexp(t, `^SF\d{8}\d{4}$`, result.OrderNo)

	order, err := ledger.GetOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInitiated, order.Status)
	assert.Equal(t, "pay-fake-1", order.PayID)
	assert.InDelta(t, 189.50, order.TotalAmount, 0.001)

	md, err := models.DecodeMerchantData(gw.merchantData)
	require.NoError(t, err)
	assert.Equal(t, result.OrderID, md.OrderID)
}

func TestBeginCheckout_GatewayFailureLeavesOrderInitiated(t *testing.T) {
	engine, ledger, _, gw := testEngine(t, map[string]int{"SKU-1001": 5})
	gw.initErr = &models.GatewayError{Code: 120, Message: "merchant blocked"}

	_, err := engine.BeginCheckout(context.Background(), CheckoutRequest{
		Cart:     []models.CartLine{{ProductID: "SKU-1001", Quantity: 1, UnitPrice: 10}},
		Currency: "CZK",
	})
	var gwErr *models.GatewayError
	require.ErrorAs(t, err, &gwErr)

	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	require.Len(t, ledger.orders, 1)
	for _, order := range ledger.orders {
		assert.Equal(t, models.StatusInitiated, order.Status)
		assert.Empty(t, order.PayID)
	}
}

func TestBeginCheckout_ShortfallBlocksBeforeGateway(t *testing.T) {
	engine, ledger, _, gw := testEngine(t, map[string]int{"SKU-1001": 1})

	_, err := engine.BeginCheckout(context.Background(), CheckoutRequest{
		Cart:     []models.CartLine{{ProductID: "SKU-1001", Quantity: 2, UnitPrice: 10}},
		Currency: "CZK",
	})
	var stockErr *models.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Empty(t, gw.merchantData, "gateway must not be contacted on shortfall")
	assert.Empty(t, ledger.orders)
}

func TestNextOrderNumber_ConcurrentUniqueness(t *testing.T) {
	engine, _, _, _ := testEngine(t, nil)
	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	const n = 50
	results := make(chan string, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orderNo, err := engine.NextOrderNumber(context.Background(), at)
			assert.NoError(t, err)
			results <- orderNo
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, n)
	for orderNo := range results {
		assert.Regexp(t, `^SF20260828\d{4}$`, orderNo)
		assert.False(t, seen[orderNo], "duplicate order number %s", orderNo)
		seen[orderNo] = true
	}
	assert.Len(t, seen, n)
}

func TestSyncPaymentStatus_UsesMerchantDataLines(t *testing.T) {
	engine, ledger, inventory, gw := testEngine(t, map[string]int{"SKU-1001": 5, "SKU-2002": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)

	md := models.MerchantData{
		OrderID: order.ID,
		Lines: []models.MerchantDataLine{
			{ProductID: "SKU-2002", Quantity: 3},
		},
	}
	encoded, err := md.Encode()
	require.NoError(t, err)
	gw.merchantData = encoded
	gw.state = models.PaymentConfirmed

	result, err := engine.SyncPaymentStatus(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, result.InventoryApplied)
	// The merchant-data snapshot wins over the order's own cart.
	assert.Equal(t, 2, inventory.stock["SKU-2002"])
	assert.Equal(t, 5, inventory.stock["SKU-1001"])
}

func TestSyncByPayID_FallsBackToLedgerIndex(t *testing.T) {
	engine, ledger, _, gw := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInitiated)
	gw.state = models.PaymentInProgress
	gw.merchantData = ""

	result, err := engine.SyncByPayID(context.Background(), order.PayID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, result.OrderID)
	assert.Equal(t, models.StatusInProgress, result.Status)
	assert.True(t, result.Changed)
}

func TestApplyNotification_RejectedSignatureLeavesStateUntouched(t *testing.T) {
	engine, ledger, inventory, gw := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)
	gw.verifyErr = &models.SignatureError{Operation: "payment/callback"}

	md, err := models.NewMerchantData(order).Encode()
	require.NoError(t, err)
	resp := &gateway.Response{
		PayID:         order.PayID,
		PaymentStatus: gateway.StatusCodeConfirmed,
		MerchantData:  md,
	}

	_, err = engine.ApplyNotification(context.Background(), resp)
	var sigErr *models.SignatureError
	require.ErrorAs(t, err, &sigErr)
	assert.Zero(t, gw.statusCalls, "a rejected callback must not trigger a status poll")

	stored, err := ledger.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Equal(t, 5, inventory.stock["SKU-1001"])
}

func TestApplyNotification_VerifiedCallbackApplies(t *testing.T) {
	engine, ledger, inventory, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusInProgress)

	md, err := models.NewMerchantData(order).Encode()
	require.NoError(t, err)
	resp := &gateway.Response{
		PayID:         order.PayID,
		PaymentStatus: gateway.StatusCodeConfirmed,
		MerchantData:  md,
	}

	result, err := engine.ApplyNotification(context.Background(), resp)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusConfirmed, result.Status)
	assert.True(t, result.InventoryApplied)
	assert.Equal(t, 3, inventory.stock["SKU-1001"])
}

func TestRefund_AppliesRefundedState(t *testing.T) {
	engine, ledger, _, _ := testEngine(t, map[string]int{"SKU-1001": 5})
	order := seedOrder(t, ledger, models.StatusSettled)

	result, err := engine.Refund(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusRefunded, result.Status)
}
