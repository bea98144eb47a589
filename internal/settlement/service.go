package settlement

import (
	"context"
	"fmt"
	"time"

	"ms-booking/internal/apperror"
	"ms-booking/internal/auth"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/money"
)

// CommissionRateBps is the platform cut in basis points: a fixed 10%.
const CommissionRateBps = 1000

type DBLayer interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetProductByID(ctx context.Context, id string) (*models.Product, error)
	RequestSettlement(ctx context.Context, id string) (bool, error)
	Settle(ctx context.Context, id string, commission, settled int64, at time.Time) (bool, error)
}

type EventPublisher interface {
	PublishSettlementRequested(booking models.Booking) error
	PublishBookingSettled(booking models.Booking) error
}

type Service struct {
	DB     DBLayer
	Kafka  EventPublisher
	Logger *logger.Logger
}

func NewService(dbLayer DBLayer, kafka EventPublisher, log *logger.Logger) *Service {
	return &Service{DB: dbLayer, Kafka: kafka, Logger: log}
}

// Split computes the platform commission and the seller payout for a
// booking total. Rounding goes half-up on the commission; the two parts
// always sum back to the total.
func Split(total int64) (commission, settled int64) {
	commission = (total*CommissionRateBps + 5000) / 10000
	return commission, total - commission
}

// RequestSettlement lets the seller (or an admin) ask for the payout of
// a confirmed booking. Requesting twice, or requesting on an unsettleable
// booking, is a conflict.
func (s *Service) RequestSettlement(ctx context.Context, caller auth.CallerContext, id string) (*models.BookingView, error) {
	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !caller.IsAdmin() {
		product, err := s.DB.GetProductByID(ctx, booking.ProductID)
		if err != nil || product.OwnerID != caller.ID {
			return nil, apperror.ErrForbidden
		}
	}

	moved, err := s.DB.RequestSettlement(ctx, id)
	if err != nil {
		return nil, err
	}
	if !moved {
		switch booking.SettlementStatus {
		case models.SettlementRequested:
			return nil, apperror.New(apperror.ErrCodeConflict, "settlement has already been requested")
		case models.SettlementSettled:
			return nil, apperror.New(apperror.ErrCodeConflict, "booking is already settled")
		default:
			return nil, apperror.New(apperror.ErrCodeConflict, "only confirmed bookings can request settlement")
		}
	}

	s.Logger.LogSettlement("REQUESTED", id, "requested by "+caller.ID)

	updated, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Kafka.PublishSettlementRequested(*updated); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish settlement requested failed for %s: %v", id, err))
	}

	view := updated.View()
	return &view, nil
}

// Settle pays out a confirmed booking: 10% commission to the platform,
// the rest to the seller. Admin only. The figures are always recomputed
// from the stored booking total; a non-zero caller-supplied total that
// disagrees with it is rejected rather than trusted. Settling twice is a
// conflict and never changes the recorded figures.
func (s *Service) Settle(ctx context.Context, caller auth.CallerContext, id string, claimedTotal any) (*models.BookingView, error) {
	if !caller.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	booking, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if claimed := money.ParseAmount(claimedTotal); claimed != 0 && claimed != booking.TotalPrice {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("total_price %d does not match the recorded booking amount %d", claimed, booking.TotalPrice))
	}

	commission, settled := Split(booking.TotalPrice)
	settledAt := time.Now().UTC()

	moved, err := s.DB.Settle(ctx, id, commission, settled, settledAt)
	if err != nil {
		return nil, err
	}
	if !moved {
		if booking.SettlementStatus == models.SettlementSettled {
			return nil, apperror.New(apperror.ErrCodeConflict, "booking is already settled")
		}
		return nil, apperror.New(apperror.ErrCodeConflict, "only confirmed bookings can be settled")
	}

	s.Logger.LogSettlement("SETTLED", id, fmt.Sprintf("total=%d commission=%d payout=%d by %s",
		booking.TotalPrice, commission, settled, caller.ID))

	updated, err := s.DB.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Kafka.PublishBookingSettled(*updated); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish booking settled failed for %s: %v", id, err))
	}

	view := updated.View()
	return &view, nil
}
