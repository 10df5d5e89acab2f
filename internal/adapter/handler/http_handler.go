package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/hqtran/inventory-core/internal/core/domain"
	"github.com/hqtran/inventory-core/internal/core/service"
)

type HTTPHandler struct {
	reservations *service.ReservationService
	logger       zerolog.Logger
}

func NewHTTPHandler(reservations *service.ReservationService, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{reservations: reservations, logger: logger}
}

type lineItemJSON struct {
	ProductID  string `json:"product_id"`
	VariantKey string `json:"variant_key,omitempty"`
	Quantity   int    `json:"quantity"`
}

type reserveRequest struct {
	OrderID string         `json:"order_id,omitempty"`
	Items   []lineItemJSON `json:"items"`
}

type outcomeJSON struct {
	ProductID    string `json:"product_id"`
	VariantKey   string `json:"variant_key,omitempty"`
	Quantity     int    `json:"quantity"`
	Succeeded    bool   `json:"succeeded"`
	NewAvailable int    `json:"new_available"`
	Reason       string `json:"reason,omitempty"`
}

type reserveResponse struct {
	Success  bool          `json:"success"`
	Message  string        `json:"message"`
	OrderID  string        `json:"order_id,omitempty"`
	Outcomes []outcomeJSON `json:"outcomes,omitempty"`
}

type availabilityResponse struct {
	Available bool `json:"available"`
	Quantity  int  `json:"quantity"`
}

// Reserve handles POST /api/reserve.
func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	h.applyRequest(w, r, h.reservations.Reserve, true)
}

// Restock handles POST /api/restock, the admin/payment-release path.
func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	h.applyRequest(w, r, h.reservations.Restock, false)
}

func (h *HTTPHandler) applyRequest(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, req domain.ReservationRequest) (*domain.ReservationResult, error),
	guarded bool,
) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, reserveResponse{Message: "invalid request body"})
		return
	}

	domainReq := domain.ReservationRequest{OrderID: req.OrderID}
	for _, li := range req.Items {
		domainReq.Items = append(domainReq.Items, domain.LineItem{
			ProductID:  li.ProductID,
			VariantKey: li.VariantKey,
			Quantity:   li.Quantity,
		})
	}

	logger := h.logger.With().Str("order_id", req.OrderID).Logger()
	ctx := logger.WithContext(r.Context())

	// At-most-one reservation attempt per order id; restocks are not
	// guarded, a payment-failure release may retry until it lands.
	if guarded && req.OrderID != "" {
		fresh, err := h.reservations.ClaimOrder(ctx, req.OrderID)
		if err != nil {
			logger.Error().Err(err).Msg("idempotency check failed")
			writeJSON(w, http.StatusInternalServerError, reserveResponse{Message: "internal error"})
			return
		}
		if !fresh {
			writeJSON(w, http.StatusConflict, reserveResponse{
				OrderID: req.OrderID,
				Message: "reservation already attempted for this order",
			})
			return
		}
	}

	result, err := apply(ctx, domainReq)
	if err != nil {
		status, message := statusFor(err)
		if errors.Is(err, domain.ErrCompensationFailed) {
			logger.Error().Err(err).Msg("reservation left inconsistent state")
		}
		writeJSON(w, status, reserveResponse{
			OrderID:  req.OrderID,
			Message:  message,
			Outcomes: outcomesJSON(result),
		})
		return
	}

	writeJSON(w, http.StatusOK, reserveResponse{
		Success:  true,
		Message:  "stock reserved",
		OrderID:  req.OrderID,
		Outcomes: outcomesJSON(result),
	})
}

// Availability handles GET /api/availability. Advisory: the answer may be
// stale by the time a reservation is attempted.
func (h *HTTPHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	productID := r.URL.Query().Get("product_id")
	variantKey := r.URL.Query().Get("variant_key")
	quantity := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		parsed, err := strconv.Atoi(q)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, reserveResponse{Message: "invalid quantity"})
			return
		}
		quantity = parsed
	}

	avail, err := h.reservations.CheckAvailability(r.Context(), productID, variantKey, quantity)
	if err != nil {
		status, message := statusFor(err)
		writeJSON(w, status, reserveResponse{Message: message})
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Available: avail.Available,
		Quantity:  avail.Quantity,
	})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidReservation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrCompensationFailed):
		return http.StatusInternalServerError, "reservation failed and rollback incomplete, manual reconciliation required"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "insufficient stock"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "unknown product or variant"
	case errors.Is(err, domain.ErrContentionExceeded):
		return http.StatusServiceUnavailable, "stock under heavy contention, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func outcomesJSON(result *domain.ReservationResult) []outcomeJSON {
	if result == nil {
		return nil
	}
	out := make([]outcomeJSON, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		oj := outcomeJSON{
			ProductID:    o.ProductID,
			VariantKey:   o.VariantKey,
			Quantity:     o.Quantity,
			Succeeded:    o.Succeeded,
			NewAvailable: o.NewAvailable,
		}
		if o.Reason != nil {
			oj.Reason = o.Reason.Error()
		}
		out = append(out, oj)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
