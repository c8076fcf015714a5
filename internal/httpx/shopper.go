package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oasismarkets/go-pickup-orders/internal/booking"
	"github.com/oasismarkets/go-pickup-orders/internal/notifier"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/receipt"
	"github.com/oasismarkets/go-pickup-orders/internal/redisx"
	"github.com/oasismarkets/go-pickup-orders/internal/store"
)

// ShopperHandler serves the customer-facing routes: catalog browsing, slot
// listing, order placement and order lookup.
type ShopperHandler struct {
	Booking  *booking.Service
	Store    store.Store
	Redis    *redis.Client // nil disables the status cache fast path
	Receipts receipt.Storage
	Log      zerolog.Logger
}

func (h *ShopperHandler) Register(r *chi.Mux) {
	r.Get("/catalog", h.catalog)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/pickup-slots", h.pickupSlots)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/lookup", h.lookupOrder)
	r.Get("/orders/{id}/status", h.orderStatus)
	if h.Receipts != nil {
		r.Get("/storage/local/*", h.serveStored)
	}
}

func (h *ShopperHandler) catalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProducts(ctx, store.ProductFilter{
		Query:      r.URL.Query().Get("q"),
		Category:   r.URL.Query().Get("category"),
		ActiveOnly: true,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": ps})
}

func (h *ShopperHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if !p.Active {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ShopperHandler) pickupSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeErr(w, http.StatusBadRequest, "date is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	slots, err := h.Booking.SlotsForDate(ctx, date, false)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "slots": slots})
}

type createOrderReq struct {
	CustomerName  string              `json:"customer_name"`
	CustomerPhone string              `json:"customer_phone"`
	SlotStart     string              `json:"pickup_slot_start"`
	Items         []booking.LineInput `json:"items"`
}

func (h *ShopperHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	slotStart, err := time.Parse(time.RFC3339, req.SlotStart)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "pickup_slot_start must be RFC3339")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Booking.CreateOrder(ctx, booking.CreateOrderInput{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		SlotStart:     slotStart,
		Items:         req.Items,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ShopperHandler) lookupOrder(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("orderNumber")
	phone := r.URL.Query().Get("phone")
	if number == "" || phone == "" {
		writeErr(w, http.StatusBadRequest, "orderNumber and phone are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.GetOrderByLookup(ctx, number, orders.NormalizePhone(phone))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	items, err := h.Store.ListOrderItems(ctx, o.ID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	resp := map[string]any{"order": o, "items": items}
	if h.Receipts != nil {
		if key, err := h.Store.GetReceiptKey(ctx, o.ID); err == nil && key != "" {
			if u, err := h.Receipts.SignedURL(key); err == nil {
				resp["receipt_url"] = u
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// orderStatus is the poll endpoint: redis first, store on a miss, and the
// miss refills the cache.
func (h *ShopperHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	o, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	entry := notifier.StatusCache{
		Status:            o.Status,
		PaymentStatus:     o.PaymentStatus,
		TotalDelayMinutes: o.TotalDelayMinutes,
	}
	b, _ := json.Marshal(entry)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *ShopperHandler) serveStored(w http.ResponseWriter, r *http.Request) {
	// chi hands the wildcard over still path-escaped
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	data, err := h.Receipts.Get(r.Context(), key)
	if err != nil {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}
