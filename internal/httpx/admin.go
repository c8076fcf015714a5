package httpx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/oasismarkets/go-pickup-orders/internal/booking"
	"github.com/oasismarkets/go-pickup-orders/internal/lifecycle"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/store"
)

// AdminHandler serves the operator routes: slot availability management,
// order lifecycle actions and catalog upkeep. Mounted under /admin; auth
// sits in front of the service, not in it.
type AdminHandler struct {
	Booking   *booking.Service
	Lifecycle *lifecycle.Service
	Store     store.Store
	Log       zerolog.Logger
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Route("/admin", func(r chi.Router) {
		r.Get("/pickup-availability", h.pickupAvailability)
		r.Put("/pickup-availability/day-range", h.setDayRange)
		r.Put("/pickup-availability/slots", h.setSlotUnavailable)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}/status", h.changeStatus)
		r.Post("/orders/{id}/delay", h.delay)
		r.Post("/orders/{id}/finalize", h.finalize)
		r.Post("/orders/{id}/refund", h.refund)
		r.Post("/orders/{id}/fulfill", h.fulfill)
		r.Get("/orders/{id}/receipt/escpos", h.receiptEscpos)

		r.Post("/products", h.createProduct)
		r.Patch("/products/{id}", h.patchProduct)
		r.Patch("/products/{id}/stock", h.setStock)
	})
}

func (h *AdminHandler) pickupAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	days, err := h.Booking.AdminDays(ctx)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

func (h *AdminHandler) setDayRange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date      string `json:"date"`
		OpenHour  int    `json:"open_hour"`
		CloseHour int    `json:"close_hour"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Booking.SetDayRange(ctx, req.Date, req.OpenHour, req.CloseHour); err != nil {
		writeDomainErr(w, err)
		return
	}
	slots, err := h.Booking.SlotsForDate(ctx, req.Date, true)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking.AdminDay{
		Date:      req.Date,
		OpenHour:  req.OpenHour,
		CloseHour: req.CloseHour,
		Slots:     slots,
	})
}

func (h *AdminHandler) setSlotUnavailable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SlotStart   string `json:"slot_start"`
		Unavailable bool   `json:"unavailable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	slotStart, err := time.Parse(time.RFC3339, req.SlotStart)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "slot_start must be RFC3339")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Booking.SetSlotUnavailable(ctx, slotStart, req.Unavailable); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot_start": req.SlotStart, "unavailable": req.Unavailable})
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	var filter *orders.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := orders.Status(s)
		if !st.Valid() {
			writeErr(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter = &st
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Store.ListOrders(ctx, filter)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *AdminHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	items, err := h.Store.ListOrderItems(ctx, o.ID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	refunded, err := h.Store.RefundedCents(ctx, o.ID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":          o,
		"items":          items,
		"refunded_cents": refunded,
	})
}

func (h *AdminHandler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status orders.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !req.Status.Valid() {
		writeErr(w, http.StatusBadRequest, "unknown status")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.ChangeStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) delay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DelayMinutes int `json:"delay_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.Delay(ctx, chi.URLParam(r, "id"), req.DelayMinutes)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) finalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []lifecycle.FinalLine `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Lifecycle.Finalize(ctx, chi.URLParam(r, "id"), req.Items)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	items, err := h.Store.ListOrderItems(ctx, o.ID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": o, "items": items})
}

func (h *AdminHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AmountCents int    `json:"amount_cents"`
		Reason      string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	refund, err := h.Lifecycle.Refund(ctx, orderID, req.AmountCents, req.Reason)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	o, err := h.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refunded_cents": refund.AmountCents,
		"order":          o,
	})
}

func (h *AdminHandler) fulfill(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orderID := chi.URLParam(r, "id")
	res, err := h.Lifecycle.Fulfill(ctx, orderID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	doc, err := h.Lifecycle.Receipt(ctx, orderID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order":                 res.Order,
		"receipt_url":           res.ReceiptURL,
		"escpos_payload_base64": base64.StdEncoding.EncodeToString(doc),
	})
}

func (h *AdminHandler) receiptEscpos(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	doc, err := h.Lifecycle.Receipt(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(doc)
}

type productReq struct {
	Name          *string  `json:"name"`
	Category      *string  `json:"category"`
	Unit          *string  `json:"unit"`
	PriceCents    *int     `json:"price_cents"`
	StockQuantity *float64 `json:"stock_quantity"`
	Active        *bool    `json:"active"`
}

func (h *AdminHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == nil || *req.Name == "" || req.Unit == nil || req.PriceCents == nil {
		writeErr(w, http.StatusBadRequest, "name, unit and price_cents are required")
		return
	}
	unit := orders.Unit(*req.Unit)
	if unit != orders.UnitEach && unit != orders.UnitLb {
		writeErr(w, http.StatusBadRequest, "unit must be each or lb")
		return
	}
	if *req.PriceCents <= 0 {
		writeErr(w, http.StatusBadRequest, "price_cents must be positive")
		return
	}

	p := &orders.Product{
		ID:         uuid.NewString(),
		Name:       *req.Name,
		Unit:       unit,
		PriceCents: *req.PriceCents,
		Active:     true,
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.StockQuantity != nil {
		p.StockQuantity = *req.StockQuantity
	}
	if req.Active != nil {
		p.Active = *req.Active
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.CreateProduct(ctx, p); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *AdminHandler) patchProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.Unit != nil {
		unit := orders.Unit(*req.Unit)
		if unit != orders.UnitEach && unit != orders.UnitLb {
			writeErr(w, http.StatusBadRequest, "unit must be each or lb")
			return
		}
		p.Unit = unit
	}
	if req.PriceCents != nil {
		if *req.PriceCents <= 0 {
			writeErr(w, http.StatusBadRequest, "price_cents must be positive")
			return
		}
		p.PriceCents = *req.PriceCents
	}
	if req.StockQuantity != nil {
		p.StockQuantity = *req.StockQuantity
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if err := h.Store.UpdateProduct(ctx, p); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) setStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StockQuantity *float64 `json:"stock_quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StockQuantity == nil || *req.StockQuantity < 0 {
		writeErr(w, http.StatusBadRequest, "stock_quantity must be zero or positive")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.SetProductStock(ctx, chi.URLParam(r, "id"), *req.StockQuantity)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
