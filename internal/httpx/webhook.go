package httpx

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/oasismarkets/go-pickup-orders/internal/lifecycle"
	"github.com/oasismarkets/go-pickup-orders/internal/payment"
	"github.com/oasismarkets/go-pickup-orders/internal/redisx"
)

const webhookBodyLimit = 1 << 20

// WebhookHandler receives provider callbacks. Providers retry aggressively,
// so processing must be idempotent: events are deduplicated by provider
// event id before any state changes.
type WebhookHandler struct {
	Payments  payment.Provider
	Lifecycle *lifecycle.Service
	Redis     *redis.Client // nil disables dedup
	Log       zerolog.Logger
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/payments/webhook", h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "unreadable body")
		return
	}

	res, err := h.Payments.HandleWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Log.Warn().Err(err).Msg("webhook rejected")
		writeErr(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	if res.Type != payment.WebhookPaymentSucceeded {
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
		return
	}

	if h.Redis != nil && res.EventID != "" {
		key := fmt.Sprintf(redisx.KeyDedup, "webhook", res.EventID)
		fresh, err := h.Redis.SetNX(r.Context(), key, 1, redisx.TTLDedup).Result()
		if err == nil && !fresh {
			writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		}
	}

	if err := h.Lifecycle.MarkPaid(r.Context(), res.PaymentIntentID); err != nil {
		h.Log.Error().Err(err).Str("payment_intent_id", res.PaymentIntentID).Msg("mark paid failed")
		writeErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
