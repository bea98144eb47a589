package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-booking/internal/apperror"
	"ms-booking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ListScope restricts a list query to what the caller may see. Exactly
// one of Admin, SellerOwnerID, BuyerEmail is set.
type ListScope struct {
	Admin         bool
	SellerOwnerID string
	BuyerEmail    string
}

// ---------------- BOOKINGS ----------------

// CreateBooking → insert new booking
func (d *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	_, err := d.Bun.NewInsert().Model(booking).Exec(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodePersistence, "failed to insert booking")
	}
	return nil
}

// GetBookingByID → fetch one booking with its joined product projection
func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		ColumnExpr("b.*").
		ColumnExpr("p.name AS product_name").
		ColumnExpr("p.details AS product_details").
		Join("JOIN products AS p ON p.id = b.product_id").
		Where("b.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrBookingNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to fetch booking")
	}
	return &booking, nil
}

// GetActiveBookingForDate → find the live booking holding a product/date
// slot, if any. Cancelled bookings do not hold their date.
func (d *DB) GetActiveBookingForDate(ctx context.Context, productID, date string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("product_id = ?", productID).
		Where("reserved_date = ?", date).
		Where("status != ?", models.StatusCancelled).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrBookingNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to fetch booking for date")
	}
	return &booking, nil
}

// GetProductByID → fetch one catalog product
func (d *DB) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	err := d.Bun.NewSelect().
		Model(&product).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to fetch product")
	}
	return &product, nil
}

// UpdateStatus moves a booking into target, but only while it is still in
// one of the given source statuses. The update is a single conditional
// UPDATE so concurrent transitions cannot both win. Cancelling a
// confirmed booking additionally requires that settlement has not
// started. Returns false when the row was not in a matching state.
func (d *DB) UpdateStatus(ctx context.Context, id string, sources []models.BookingStatus, target models.BookingStatus) (bool, error) {
	if len(sources) == 0 {
		return false, nil
	}

	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", target).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(sources))

	if target == models.StatusCancelled {
		// money already promised to the seller cannot be clawed back here
		q = q.Where("(status != ? OR settlement_status = ?)", models.StatusConfirmed, models.SettlementNone)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to update booking status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to read update result")
	}
	return affected > 0, nil
}

// RequestSettlement flips settlement_status none → requested. Only a
// confirmed, never-requested booking matches; anything else returns false.
func (d *DB) RequestSettlement(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("settlement_status = ?", models.SettlementRequested).
		Where("id = ?", id).
		Where("status = ?", models.StatusConfirmed).
		Where("settlement_status = ?", models.SettlementNone).
		Exec(ctx)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to request settlement")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to read update result")
	}
	return affected > 0, nil
}

// Settle writes the payout figures and marks the booking settled. The
// conditional WHERE makes settlement exactly-once: a second attempt
// matches no row and returns false.
func (d *DB) Settle(ctx context.Context, id string, commission, settled int64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("settlement_status = ?", models.SettlementSettled).
		Set("commission_amount = ?", commission).
		Set("settled_amount = ?", settled).
		Set("settled_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.StatusConfirmed).
		Where("settlement_status IN (?)", bun.In([]models.SettlementStatus{models.SettlementNone, models.SettlementRequested})).
		Exec(ctx)
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to settle booking")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to read update result")
	}
	return affected > 0, nil
}

// ListBookings returns the caller-visible bookings, newest first, with
// the product projection joined in. Filter predicates combine with AND;
// empty or "all" values impose nothing.
func (d *DB) ListBookings(ctx context.Context, scope ListScope, filter models.BookingFilter) ([]models.BookingView, error) {
	var bookings []models.Booking
	q := d.Bun.NewSelect().
		Model(&bookings).
		ColumnExpr("b.*").
		ColumnExpr("p.name AS product_name").
		ColumnExpr("p.details AS product_details").
		Join("JOIN products AS p ON p.id = b.product_id")

	switch {
	case scope.Admin:
		// no restriction
	case scope.SellerOwnerID != "":
		q = q.Where("p.owner_id = ?", scope.SellerOwnerID)
	default:
		q = q.Where("b.buyer_email = ?", scope.BuyerEmail)
	}

	if filter.Status != "" && filter.Status != "all" {
		q = q.Where("b.status = ?", filter.Status)
	}
	if filter.PaymentMethod != "" && filter.PaymentMethod != "all" {
		q = q.Where("b.payment_method = ?", filter.PaymentMethod)
	}
	if filter.Search != "" {
		q = q.Where("b.buyer_email LIKE ?", "%"+filter.Search+"%")
	}
	if filter.StartDate != "" {
		if start, err := time.Parse("2006-01-02", filter.StartDate); err == nil {
			q = q.Where("b.created_at >= ?", start)
		}
	}
	if filter.EndDate != "" {
		if end, err := time.Parse("2006-01-02", filter.EndDate); err == nil {
			// inclusive upper bound: anything created on EndDate counts
			q = q.Where("b.created_at < ?", end.AddDate(0, 0, 1))
		}
	}

	if err := q.Order("b.created_at DESC").Scan(ctx); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to list bookings")
	}

	views := make([]models.BookingView, len(bookings))
	for i, b := range bookings {
		views[i] = b.View()
	}
	return views, nil
}

// DeleteBooking → remove a booking row
func (d *DB) DeleteBooking(ctx context.Context, id string) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Booking)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodePersistence, "failed to delete booking")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodePersistence, "failed to read delete result")
	}
	if affected == 0 {
		return apperror.ErrBookingNotFound
	}
	return nil
}
