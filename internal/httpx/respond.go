package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oasismarkets/go-pickup-orders/internal/booking"
	"github.com/oasismarkets/go-pickup-orders/internal/lifecycle"
	"github.com/oasismarkets/go-pickup-orders/internal/orders"
	"github.com/oasismarkets/go-pickup-orders/internal/store"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainErr maps service errors onto the HTTP taxonomy: bad input 400,
// missing 404, guard rejections 409, collaborator failures 502.
func writeDomainErr(w http.ResponseWriter, err error) {
	var ite *orders.InvalidTransitionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, lifecycle.ErrNoReceipt):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrValidation),
		errors.Is(err, booking.ErrInvalidSlot),
		errors.Is(err, booking.ErrProductUnavailable),
		errors.Is(err, booking.ErrDateNotEditable),
		errors.Is(err, lifecycle.ErrInvalidDelay):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrSlotFull),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, lifecycle.ErrTerminalState),
		errors.Is(err, lifecycle.ErrNothingToRefund),
		errors.Is(err, lifecycle.ErrNoPaymentIntent),
		errors.As(err, &ite):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrPaymentProvider),
		errors.Is(err, lifecycle.ErrPaymentProvider):
		writeErr(w, http.StatusBadGateway, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
