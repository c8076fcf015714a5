package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oasismarkets/go-pickup-orders/internal/booking"
	"github.com/oasismarkets/go-pickup-orders/internal/lifecycle"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/payment"
	"github.com/oasismarkets/go-pickup-orders/internal/receipt"
	"github.com/oasismarkets/go-pickup-orders/internal/store"
)

type env struct {
	mux   *chi.Mux
	store *store.Memory
	now   time.Time
	loc   *time.Location
}

func newEnv(t *testing.T) *env {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	now := time.Date(2026, 2, 11, 8, 30, 0, 0, loc)

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.CreateProduct(ctx, &orders.Product{
		ID: "p-apples", Name: "Honeycrisp Apples", Category: "produce",
		Unit: orders.UnitEach, PriceCents: 500, StockQuantity: 10, Active: true,
	}))
	require.NoError(t, st.CreateProduct(ctx, &orders.Product{
		ID: "p-retired", Name: "Seasonal Pie", Category: "bakery",
		Unit: orders.UnitEach, PriceCents: 1800, StockQuantity: 4, Active: false,
	}))

	storage, err := receipt.NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	nowFn := func() time.Time { return now }
	book := &booking.Service{
		Store:    st,
		Payments: payment.Mock{},
		Slots: booking.SlotConfig{
			Location: loc, OpenHour: 9, CloseHour: 20,
			Capacity: 2, LeadTimeMinutes: 60,
		},
		TaxRateBps: 825,
		Currency:   "usd",
		Log:        zerolog.Nop(),
		Now:        nowFn,
	}
	life := &lifecycle.Service{
		Store:      st,
		Payments:   payment.Mock{},
		Receipts:   storage,
		TaxRateBps: 825,
		Log:        zerolog.Nop(),
		Now:        nowFn,
	}

	mux := NewRouter(zerolog.Nop())
	(&ShopperHandler{Booking: book, Store: st, Receipts: storage, Log: zerolog.Nop()}).Register(mux)
	(&AdminHandler{Booking: book, Lifecycle: life, Store: st, Log: zerolog.Nop()}).Register(mux)
	(&WebhookHandler{Payments: payment.Mock{}, Lifecycle: life, Log: zerolog.Nop()}).Register(mux)

	return &env{mux: mux, store: st, now: now, loc: loc}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func (e *env) slot(hour int) string {
	return time.Date(e.now.Year(), e.now.Month(), e.now.Day(), hour, 0, 0, 0, e.loc).Format(time.RFC3339)
}

func (e *env) placeOrder(t *testing.T) booking.CreateOrderResult {
	t.Helper()
	w := e.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_name":     "Dana Whitfield",
		"customer_phone":    "(512) 555-0134",
		"pickup_slot_start": e.slot(10),
		"items": []map[string]any{
			{"product_id": "p-apples", "quantity": 2},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[booking.CreateOrderResult](t, w)
}

func TestCreateOrderEndpoint(t *testing.T) {
	e := newEnv(t)
	res := e.placeOrder(t)
	assert.Regexp(t, `^OM-20260211-\d{4}$`, res.OrderNumber)
	assert.Equal(t, orders.StatusPlaced, res.Status)
	assert.Equal(t, 1083, res.EstimatedTotalCents)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_name":     "Dana",
		"customer_phone":    "5125550134",
		"pickup_slot_start": "10am",
		"items":             []map[string]any{{"product_id": "p-apples", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 9:00 sits inside the 60 minute lead window
	w = e.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_name":     "Dana",
		"customer_phone":    "5125550134",
		"pickup_slot_start": e.slot(9),
		"items":             []map[string]any{{"product_id": "p-apples", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_name":     "Dana",
		"customer_phone":    "5125550134",
		"pickup_slot_start": e.slot(10),
		"items":             []map[string]any{{"product_id": "p-retired", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateOrderSlotFullConflict(t *testing.T) {
	e := newEnv(t)
	e.placeOrder(t)
	e.placeOrder(t)

	w := e.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_name":     "Third",
		"customer_phone":    "5125550135",
		"pickup_slot_start": e.slot(10),
		"items":             []map[string]any{{"product_id": "p-apples", "quantity": 1}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPickupSlotsEndpoint(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/pickup-slots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	date := e.now.Format("2006-01-02")
	w = e.do(t, http.MethodGet, "/pickup-slots?date="+date, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]json.RawMessage](t, w)
	var slots []map[string]any
	require.NoError(t, json.Unmarshal(body["slots"], &slots))
	// 10:00 through 19:00 after the lead-time filter
	assert.Len(t, slots, 10)
}

func TestCatalogHidesInactive(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, "/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]orders.Product](t, w)
	require.Len(t, body["products"], 1)
	assert.Equal(t, "p-apples", body["products"][0].ID)

	w = e.do(t, http.MethodGet, "/products/p-retired", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderLookup(t *testing.T) {
	e := newEnv(t)
	res := e.placeOrder(t)

	w := e.do(t, http.MethodGet,
		fmt.Sprintf("/orders/lookup?orderNumber=%s&phone=%s", res.OrderNumber, "(512)555-0134"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet,
		fmt.Sprintf("/orders/lookup?orderNumber=%s&phone=9999999999", res.OrderNumber), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOrderStatusEndpoint(t *testing.T) {
	e := newEnv(t)
	res := e.placeOrder(t)

	w := e.do(t, http.MethodGet, "/orders/"+res.OrderID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "placed", body["status"])

	w = e.do(t, http.MethodGet, "/orders/missing/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminStatusAndDelay(t *testing.T) {
	e := newEnv(t)
	res := e.placeOrder(t)
	base := "/admin/orders/" + res.OrderID

	w := e.do(t, http.MethodPatch, base+"/status", map[string]any{"status": "preparing"})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPatch, base+"/status", map[string]any{"status": "placed"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, base+"/delay", map[string]any{"delay_minutes": 45})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, base+"/delay", map[string]any{"delay_minutes": 60})
	require.Equal(t, http.StatusOK, w.Code)
	o := decode[orders.Order](t, w)
	assert.Equal(t, orders.StatusDelayed, o.Status)
	assert.Equal(t, 60, o.TotalDelayMinutes)
}

func TestAdminRefundFlow(t *testing.T) {
	e := newEnv(t)
	res := e.placeOrder(t)
	base := "/admin/orders/" + res.OrderID

	w := e.do(t, http.MethodPost, base+"/refund", map[string]any{"amount_cents": 300, "reason": "bruised"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]json.RawMessage](t, w)
	var cents int
	require.NoError(t, json.Unmarshal(body["refunded_cents"], &cents))
	assert.Equal(t, 300, cents)

	// remainder, then nothing left
	w = e.do(t, http.MethodPost, base+"/refund", map[string]any{"reason": "scrapped"})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, base+"/refund", map[string]any{"amount_cents": 100})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminFulfillAndReceipt(t *testing.T) {
	e := newEnv(t)
	res := e.placeOrder(t)
	base := "/admin/orders/" + res.OrderID

	w := e.do(t, http.MethodGet, base+"/receipt/escpos", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, s := range []string{"preparing", "ready"} {
		w = e.do(t, http.MethodPatch, base+"/status", map[string]any{"status": s})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = e.do(t, http.MethodPost, base+"/fulfill", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]json.RawMessage](t, w)
	assert.NotEmpty(t, body["escpos_payload_base64"])

	// the returned receipt_url must serve the artifact through the router
	var receiptURL string
	require.NoError(t, json.Unmarshal(body["receipt_url"], &receiptURL))
	u, err := url.Parse(receiptURL)
	require.NoError(t, err)
	w = e.do(t, http.MethodGet, u.RequestURI(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "OASIS MARKETS")

	w = e.do(t, http.MethodGet, base+"/receipt/escpos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "OASIS MARKETS")
}

func TestAdminAvailability(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/admin/pickup-availability", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string][]booking.AdminDay](t, w)
	require.Len(t, body["days"], 2)

	date := e.now.Format("2006-01-02")
	w = e.do(t, http.MethodPut, "/admin/pickup-availability/day-range", map[string]any{
		"date": date, "open_hour": 12, "close_hour": 15,
	})
	require.Equal(t, http.StatusOK, w.Code)
	day := decode[booking.AdminDay](t, w)
	assert.Len(t, day.Slots, 3)

	w = e.do(t, http.MethodPut, "/admin/pickup-availability/day-range", map[string]any{
		"date": e.now.AddDate(0, 0, 5).Format("2006-01-02"), "open_hour": 9, "close_hour": 17,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPut, "/admin/pickup-availability/slots", map[string]any{
		"slot_start": e.slot(13), "unavailable": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAdminProducts(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/admin/products", map[string]any{
		"name": "Sourdough Loaf", "category": "bakery",
		"unit": "each", "price_cents": 650, "stock_quantity": 12,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	p := decode[orders.Product](t, w)
	assert.True(t, p.Active)

	w = e.do(t, http.MethodPost, "/admin/products", map[string]any{
		"name": "Bad", "unit": "dozen", "price_cents": 100,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPatch, "/admin/products/"+p.ID, map[string]any{"price_cents": 700})
	require.Equal(t, http.StatusOK, w.Code)
	p = decode[orders.Product](t, w)
	assert.Equal(t, 700, p.PriceCents)

	w = e.do(t, http.MethodPatch, "/admin/products/"+p.ID+"/stock", map[string]any{"stock_quantity": 3.0})
	require.Equal(t, http.StatusOK, w.Code)
	p = decode[orders.Product](t, w)
	assert.Equal(t, 3.0, p.StockQuantity)
}

func TestPaymentWebhook(t *testing.T) {
	e := newEnv(t)
	res := e.placeOrder(t)
	ctx := context.Background()

	o, err := e.store.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/payments/webhook", map[string]any{
		"id":   "evt_1",
		"type": "payment_intent.succeeded",
		"data": map[string]any{"object": map[string]any{"id": o.PaymentIntentID}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := e.store.GetOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaidEstimated, got.PaymentStatus)

	// unknown intents acknowledge without failing, providers retry otherwise
	w = e.do(t, http.MethodPost, "/payments/webhook", map[string]any{
		"id":   "evt_2",
		"type": "payment_intent.succeeded",
		"data": map[string]any{"object": map[string]any{"id": "pi_unknown"}},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
