package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/apperror"
	"ms-booking/internal/auth"
	"ms-booking/internal/booking/db"
	"ms-booking/internal/gateway"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/money"
	"ms-booking/internal/pass"
	"ms-booking/internal/recon"
	"ms-booking/internal/utils"
)

type DBLayer interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	UpdateStatus(ctx context.Context, id string, sources []models.BookingStatus, target models.BookingStatus) (bool, error)
	ListBookings(ctx context.Context, scope db.ListScope, filter models.BookingFilter) ([]models.BookingView, error)
	DeleteBooking(ctx context.Context, id string) error
}

type DateHold interface {
	Acquire(ctx context.Context, productID, date, bookingID string) (bool, error)
	Release(ctx context.Context, productID, date, bookingID string) error
}

type Gateway interface {
	RequestPayment(ctx context.Context, req gateway.PaymentRequest) (gateway.Outcome, error)
}

type EventPublisher interface {
	PublishBookingCreated(booking models.Booking) error
	PublishStatusChanged(booking models.Booking) error
	PublishReconEntry(key string, entry any) error
}

type ReconLog interface {
	RecordOrphanedCharge(impUID, merchantUID, reason string, booking models.Booking) (*recon.Entry, error)
}

type PassIssuer interface {
	Issue(ctx context.Context, bookingID string) (string, error)
	Redeem(ctx context.Context, token string) (string, error)
	GeneratePassQR(claims pass.Claims) ([]byte, error)
}

type Service struct {
	DB      DBLayer
	Hold    DateHold
	Gateway Gateway
	Kafka   EventPublisher
	Recon   ReconLog
	Pass    PassIssuer
	Logger  *logger.Logger
}

func NewService(dbLayer DBLayer, hold DateHold, gw Gateway, kafka EventPublisher, reconLog ReconLog, passIssuer PassIssuer, log *logger.Logger) *Service {
	return &Service{
		DB:      dbLayer,
		Hold:    hold,
		Gateway: gw,
		Kafka:   kafka,
		Recon:   reconLog,
		Pass:    passIssuer,
		Logger:  log,
	}
}

// ---------------- CREATE ----------------

// CreateBooking runs the full purchase flow: validate, hold the date,
// charge the gateway when the method needs it, insert the row and hand
// back the initial status. A charge that cannot be recorded goes to the
// reconciliation log instead of silently losing the buyer's money.
func (s *Service) CreateBooking(ctx context.Context, caller auth.CallerContext, req models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	if req.ProductID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "product_id is required")
	}
	method, ok := models.ParsePaymentMethod(req.PaymentMethod)
	if !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "unknown payment method: "+req.PaymentMethod)
	}
	buyerEmail := caller.Email
	if buyerEmail == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "caller has no email")
	}

	product, err := s.DB.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	// The stored catalog price wins over whatever the client sent.
	amount := money.ParseAmount(product.Price)
	if amount == 0 {
		amount = money.ParseAmount(req.TotalPrice)
	}
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "booking amount must be positive")
	}

	bookingID := uuid.NewString()

	// Experiences are booked for a calendar date; hold it before charging
	// so two buyers cannot both pay for the same slot.
	holdTaken := false
	if !product.Downloadable {
		if req.ReservedDate == "" {
			return nil, apperror.New(apperror.ErrCodeValidation, "reserved_date is required for this product")
		}
		taken, err := s.Hold.Acquire(ctx, product.ID, req.ReservedDate, bookingID)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "failed to hold booking date")
		}
		if !taken {
			return nil, apperror.New(apperror.ErrCodeConflict, "the requested date is already being booked")
		}
		holdTaken = true
	}

	releaseHold := func() {
		if holdTaken {
			if err := s.Hold.Release(ctx, product.ID, req.ReservedDate, bookingID); err != nil {
				s.Logger.Warn("BOOKING", fmt.Sprintf("failed to release date hold for %s: %v", bookingID, err))
			}
		}
	}

	booking := models.Booking{
		ID:               bookingID,
		ProductID:        product.ID,
		BuyerEmail:       buyerEmail,
		PaymentMethod:    method,
		TotalPrice:       amount,
		Status:           models.InitialStatus(product.Downloadable, method),
		SettlementStatus: models.SettlementNone,
		ReservedDate:     req.ReservedDate,
		CreatedAt:        time.Now().UTC(),
	}

	charged := false
	if method.RequiresGateway() {
		merchantUID := utils.GenerateMerchantUID()
		outcome, err := s.Gateway.RequestPayment(ctx, gateway.PaymentRequest{
			PayMethod:   string(method),
			MerchantUID: merchantUID,
			Name:        product.Name,
			Amount:      amount,
			BuyerEmail:  buyerEmail,
			BuyerName:   req.BuyerName,
			BuyerTel:    req.BuyerTel,
		})
		if err != nil {
			releaseHold()
			return nil, err
		}
		if !outcome.Success {
			releaseHold()
			msg := outcome.ErrorMsg
			if msg == "" {
				msg = "payment was not completed"
			}
			return nil, apperror.New(apperror.ErrCodeValidation, "payment failed: "+msg)
		}
		booking.MerchantUID = merchantUID
		booking.GatewayTxID = outcome.ImpUID
		charged = true
	}

	if err := s.DB.CreateBooking(ctx, &booking); err != nil {
		releaseHold()
		if charged {
			// The buyer has been charged and we have no booking row. This
			// must never disappear into a plain 500: record it for finance.
			s.recordOrphanedCharge(booking, err)
			return nil, apperror.Wrap(err, apperror.ErrCodePersistence,
				"payment succeeded but the booking could not be recorded; support has been notified")
		}
		return nil, err
	}

	s.Logger.LogBooking("CREATED", booking.ID, fmt.Sprintf("product=%s method=%s amount=%d status=%s",
		booking.ProductID, booking.PaymentMethod, booking.TotalPrice, booking.Status))

	if err := s.Kafka.PublishBookingCreated(booking); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish booking created failed for %s: %v", booking.ID, err))
	}

	resp := &models.CreateBookingResponse{
		ID:      booking.ID,
		Status:  booking.Status,
		Message: "Booking created successfully",
	}

	// A confirmed downloadable booking gets its one-shot download pass
	// right away.
	if booking.Status == models.StatusConfirmed && product.Downloadable {
		token, err := s.Pass.Issue(ctx, booking.ID)
		if err != nil {
			s.Logger.Error("PASS", fmt.Sprintf("failed to issue download token for %s: %v", booking.ID, err))
		} else {
			resp.DownloadToken = token
		}
	}

	return resp, nil
}

func (s *Service) recordOrphanedCharge(booking models.Booking, cause error) {
	entry, err := s.Recon.RecordOrphanedCharge(booking.GatewayTxID, booking.MerchantUID, cause.Error(), booking)
	if err != nil {
		// Worst case: the charge is tracked nowhere but the gateway.
		s.Logger.Error("RECON", fmt.Sprintf(
			"CRITICAL: orphaned charge imp_uid=%s merchant_uid=%s amount=%d buyer=%s could not be recorded: %v (original failure: %v)",
			booking.GatewayTxID, booking.MerchantUID, booking.TotalPrice, booking.BuyerEmail, err, cause))
		return
	}
	s.Logger.Error("RECON", fmt.Sprintf("orphaned charge recorded: id=%d merchant_uid=%s amount=%d",
		entry.ID, entry.MerchantUID, entry.Amount))
	if err := s.Kafka.PublishReconEntry(entry.MerchantUID, entry); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish recon entry failed for %s: %v", entry.MerchantUID, err))
	}
}

// ---------------- READ ----------------

// GetBooking fetches one booking if the caller may see it: admins see
// everything, buyers their own bookings, sellers the bookings on their
// products.
func (s *Service) GetBooking(ctx context.Context, caller auth.CallerContext, id string) (*models.BookingView, error) {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, caller, booking); err != nil {
		return nil, err
	}
	view := booking.View()
	return &view, nil
}

func (s *Service) authorizeRead(ctx context.Context, caller auth.CallerContext, booking *models.Booking) error {
	if caller.IsAdmin() || booking.BuyerEmail == caller.Email {
		return nil
	}
	product, err := s.DB.GetProductByID(ctx, booking.ProductID)
	if err == nil && product.OwnerID == caller.ID {
		return nil
	}
	return apperror.ErrForbidden
}

// ListBookings derives the visibility scope from the caller and applies
// the filter. sellerID narrows to one seller's products; only that
// seller or an admin may use it.
func (s *Service) ListBookings(ctx context.Context, caller auth.CallerContext, sellerID string, filter models.BookingFilter) ([]models.BookingView, error) {
	var scope db.ListScope
	switch {
	case sellerID != "":
		if !caller.IsAdmin() && caller.ID != sellerID {
			return nil, apperror.ErrForbidden
		}
		scope.SellerOwnerID = sellerID
	case caller.IsAdmin():
		scope.Admin = true
	default:
		scope.BuyerEmail = caller.Email
	}
	return s.DB.ListBookings(ctx, scope, filter)
}

// ---------------- TRANSITIONS ----------------

// UpdateStatus moves a booking to confirmed or cancelled under the role
// rules: buyers may cancel their own unconfirmed bookings, sellers may
// confirm or cancel bookings on their products while unsettled, admins
// may do anything. Repeating a transition the booking already made is a
// no-op, not an error.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.CallerContext, id, status string) (*models.BookingView, error) {
	target, ok := models.ParseBookingStatus(status)
	if !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "unknown status: "+status)
	}
	if len(target.TransitionSources()) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "bookings cannot transition into "+status)
	}

	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Authorization comes before the idempotent shortcut: an unauthorized
	// caller must not learn anything about the booking, not even that it
	// already sits in the requested state.
	if err := s.authorizeTransition(ctx, caller, booking, target); err != nil {
		return nil, err
	}

	// Safe retry: the booking is already where the caller wants it.
	if booking.Status == target {
		view := booking.View()
		return &view, nil
	}

	moved, err := s.DB.UpdateStatus(ctx, id, target.TransitionSources(), target)
	if err != nil {
		return nil, err
	}
	if !moved {
		// Someone else won the race, or the settlement guard refused the
		// cancellation. Re-read to tell those apart.
		current, err := s.DB.GetBookingByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == target {
			view := current.View()
			return &view, nil
		}
		if target == models.StatusCancelled && current.SettlementStatus != models.SettlementNone {
			return nil, apperror.New(apperror.ErrCodeConflict, "booking cannot be cancelled once settlement has started")
		}
		return nil, apperror.New(apperror.ErrCodeConflict,
			fmt.Sprintf("booking cannot move from %s to %s", current.Status, target))
	}

	s.Logger.LogBooking("STATUS", id, fmt.Sprintf("%s -> %s by %s", booking.Status, target, caller.ID))

	// A cancelled experience frees its date for other buyers.
	if target == models.StatusCancelled && booking.ReservedDate != "" {
		if err := s.Hold.Release(ctx, booking.ProductID, booking.ReservedDate, booking.ID); err != nil {
			s.Logger.Warn("BOOKING", fmt.Sprintf("failed to release date hold for %s: %v", booking.ID, err))
		}
	}

	updated, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.Kafka.PublishStatusChanged(*updated); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish status change failed for %s: %v", id, err))
	}

	view := updated.View()
	return &view, nil
}

func (s *Service) authorizeTransition(ctx context.Context, caller auth.CallerContext, booking *models.Booking, target models.BookingStatus) error {
	if caller.IsAdmin() {
		return nil
	}

	if booking.BuyerEmail == caller.Email {
		// Buyers may back out while the booking is not yet confirmed. A
		// repeat of a cancellation that already happened is also theirs to
		// make; it no-ops upstream.
		if target == models.StatusCancelled &&
			(booking.Status == models.StatusPending || booking.Status == models.StatusPendingPayment ||
				booking.Status == models.StatusCancelled) {
			return nil
		}
		return apperror.ErrForbidden
	}

	product, err := s.DB.GetProductByID(ctx, booking.ProductID)
	if err != nil || product.OwnerID != caller.ID {
		return apperror.ErrForbidden
	}
	// Sellers approve and reject bookings on their own products. The
	// settlement guard in the store keeps settled money out of reach.
	if target == models.StatusConfirmed || target == models.StatusCancelled {
		return nil
	}
	return apperror.ErrForbidden
}

// ---------------- DELETE ----------------

// DeleteBooking removes a booking row. Admins may delete anything;
// product owners only cancelled bookings on their own products.
func (s *Service) DeleteBooking(ctx context.Context, caller auth.CallerContext, id string) error {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return err
	}
	if !caller.IsAdmin() {
		product, err := s.DB.GetProductByID(ctx, booking.ProductID)
		if err != nil || product.OwnerID != caller.ID {
			return apperror.ErrForbidden
		}
		if booking.Status != models.StatusCancelled {
			return apperror.New(apperror.ErrCodeConflict, "only cancelled bookings can be deleted")
		}
	}

	if err := s.DB.DeleteBooking(ctx, id); err != nil {
		return err
	}
	s.Logger.LogBooking("DELETED", id, "deleted by "+caller.ID)
	return nil
}

// ---------------- DOWNLOAD PASS ----------------

// RedeemPass exchanges a one-shot download token for the booking's QR
// pass. The token must have been issued for this booking and the booking
// must still be confirmed.
func (s *Service) RedeemPass(ctx context.Context, bookingID, token string) ([]byte, error) {
	if token == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "download token is required")
	}

	issuedFor, err := s.Pass.Redeem(ctx, token)
	if err != nil {
		return nil, err
	}
	if issuedFor != bookingID {
		return nil, apperror.ErrForbidden
	}

	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusConfirmed {
		return nil, apperror.New(apperror.ErrCodeConflict, "booking is not confirmed")
	}

	png, err := s.Pass.GeneratePassQR(pass.Claims{
		BookingID:  booking.ID,
		ProductID:  booking.ProductID,
		BuyerEmail: booking.BuyerEmail,
		IssuedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "failed to generate download pass")
	}

	s.Logger.LogBooking("PASS", bookingID, "download pass redeemed")
	return png, nil
}
