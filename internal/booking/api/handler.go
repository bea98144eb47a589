package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/apperror"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/recon"
	"ms-booking/internal/settlement"
)

type ReconLister interface {
	ListEntries(limit int) ([]recon.Entry, error)
}

type Handler struct {
	BookingService    *booking.Service
	SettlementService *settlement.Service
	Recon             ReconLister
	Logger            *logger.Logger
}

func NewHandler(bookingService *booking.Service, settlementService *settlement.Service, reconStore ReconLister, log *logger.Logger) *Handler {
	return &Handler{
		BookingService:    bookingService,
		SettlementService: settlementService,
		Recon:             reconStore,
		Logger:            log,
	}
}

// RegisterRoutes mounts the booking endpoints on the router. All routes
// assume the auth middleware has already populated the caller context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListBookings)
		r.Get("/{bookingId}", h.GetBooking)
		r.Patch("/{bookingId}/status", h.UpdateStatus)
		r.Post("/{bookingId}/request-settlement", h.RequestSettlement)
		r.Post("/{bookingId}/settle", h.Settle)
		r.Delete("/{bookingId}", h.DeleteBooking)
		r.Get("/{bookingId}/pass", h.DownloadPass)
	})
	r.Get("/api/reconciliation", h.ListReconEntries)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (auth.CallerContext, bool) {
	caller, ok := auth.Caller(r.Context())
	if !ok {
		h.Logger.LogSecurity("UNAUTHENTICATED", fmt.Sprintf("%s %s reached handler without a caller", r.Method, r.URL.Path))
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return auth.CallerContext{}, false
	}
	return caller, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperror.HTTPStatusOf(err)
	message := "internal server error"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: caller=%s", caller.ID))

	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	resp, err := h.BookingService.CreateBooking(r.Context(), caller, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		h.writeError(w, err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("CreateBooking: booking %s created with status %s", resp.ID, resp.Status))
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("GetBooking: bookingId=%s caller=%s", bookingID, caller.ID))

	view, err := h.BookingService.GetBooking(r.Context(), caller, bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetBooking: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := models.BookingFilter{
		Status:        q.Get("status"),
		PaymentMethod: q.Get("payment_method"),
		Search:        q.Get("search"),
		StartDate:     q.Get("startDate"),
		EndDate:       q.Get("endDate"),
	}
	sellerID := q.Get("seller_id")

	h.Logger.Info("API", fmt.Sprintf("ListBookings: caller=%s seller_id=%s filter=%+v", caller.ID, sellerID, filter))

	views, err := h.BookingService.ListBookings(r.Context(), caller, sellerID, filter)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListBookings: %v", err))
		h.writeError(w, err)
		return
	}

	h.Logger.Info("API", fmt.Sprintf("ListBookings: returning %d bookings", len(views)))
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")

	var req models.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateStatus: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	h.Logger.Info("API", fmt.Sprintf("UpdateStatus: bookingId=%s target=%s caller=%s", bookingID, req.Status, caller.ID))

	view, err := h.BookingService.UpdateStatus(r.Context(), caller, bookingID, req.Status)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateStatus: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) RequestSettlement(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("RequestSettlement: bookingId=%s caller=%s", bookingID, caller.ID))

	view, err := h.SettlementService.RequestSettlement(r.Context(), caller, bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RequestSettlement: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")

	// the body is optional: an empty body settles at the recorded amount,
	// but a body that is present must parse
	var req models.SettleRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			h.writeError(w, apperror.New(apperror.ErrCodeValidation, "invalid request body"))
			return
		}
	}

	h.Logger.Info("API", fmt.Sprintf("Settle: bookingId=%s caller=%s", bookingID, caller.ID))

	view, err := h.SettlementService.Settle(r.Context(), caller, bookingID, req.TotalPrice)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Settle: %v", err))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("DeleteBooking: bookingId=%s caller=%s", bookingID, caller.ID))

	if err := h.BookingService.DeleteBooking(r.Context(), caller, bookingID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteBooking: %v", err))
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DownloadPass(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.caller(w, r); !ok {
		return
	}
	bookingID := chi.URLParam(r, "bookingId")
	token := r.URL.Query().Get("token")
	h.Logger.Info("API", fmt.Sprintf("DownloadPass: bookingId=%s", bookingID))

	png, err := h.BookingService.RedeemPass(r.Context(), bookingID, token)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("DownloadPass: %v", err))
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DownloadPass: failed to write image: %v", err))
	}
}

func (h *Handler) ListReconEntries(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if !caller.IsAdmin() {
		h.Logger.LogSecurity("FORBIDDEN", fmt.Sprintf("caller %s tried to read the reconciliation log", caller.ID))
		h.writeError(w, apperror.ErrForbidden)
		return
	}

	entries, err := h.Recon.ListEntries(100)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListReconEntries: %v", err))
		h.writeError(w, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to list reconciliation entries"))
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}
