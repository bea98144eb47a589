package analytics_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/analytics"
	"ms-booking/internal/apperror"
	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
)

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

func NewHandler(service *analytics.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/bookings/analytics", func(r chi.Router) {
		r.Get("/summary", h.GetSummary)
		r.Get("/sales", h.GetSellerSales)
		r.Get("/sales/daily", h.GetSellerDailySales)
	})
}

func sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func sendError(w http.ResponseWriter, err error) {
	sendJSONResponse(w, apperror.HTTPStatusOf(err), map[string]string{"error": err.Error()})
}

// GetSummary returns the platform-wide dashboard figures. Admin only.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.Caller(r.Context())
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	if !caller.IsAdmin() {
		h.Logger.LogSecurity("FORBIDDEN", fmt.Sprintf("caller %s requested the admin summary", caller.ID))
		sendJSONResponse(w, http.StatusForbidden, map[string]string{"error": "admin access required"})
		return
	}

	h.Logger.Info("ANALYTICS", "GetSummary: building platform summary")

	summary, err := h.Service.AdminSummary(r.Context())
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetSummary: %v", err))
		sendError(w, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, summary)
}

// sellerScope resolves whose sales the caller may see: their own, or any
// seller's when the caller is an admin with a seller_id parameter.
func (h *Handler) sellerScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller, ok := auth.Caller(r.Context())
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}

	ownerID := caller.ID
	if requested := r.URL.Query().Get("seller_id"); requested != "" && requested != caller.ID {
		if !caller.IsAdmin() {
			h.Logger.LogSecurity("FORBIDDEN", fmt.Sprintf("caller %s requested sales of seller %s", caller.ID, requested))
			sendJSONResponse(w, http.StatusForbidden, map[string]string{"error": "cannot view another seller's sales"})
			return "", false
		}
		ownerID = requested
	}
	return ownerID, true
}

// GetSellerSales returns the per-product sales report for a seller.
func (h *Handler) GetSellerSales(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.sellerScope(w, r)
	if !ok {
		return
	}

	h.Logger.Info("ANALYTICS", fmt.Sprintf("GetSellerSales: owner=%s", ownerID))

	report, err := h.Service.SellerSales(r.Context(), ownerID)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetSellerSales: %v", err))
		sendError(w, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, report)
}

// GetSellerDailySales returns the day-by-day sales series for a seller.
func (h *Handler) GetSellerDailySales(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.sellerScope(w, r)
	if !ok {
		return
	}

	daily, err := h.Service.SellerDailySales(r.Context(), ownerID)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("GetSellerDailySales: %v", err))
		sendError(w, err)
		return
	}

	sendJSONResponse(w, http.StatusOK, daily)
}
