package analytics

import (
	"context"

	"github.com/uptrace/bun"

	"ms-booking/internal/apperror"
	"ms-booking/internal/models"
)

// Service aggregates booking and settlement figures for the storefront
// dashboards.
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// Summary is the platform-wide view for admins.
type Summary struct {
	TotalBookings          int                 `json:"total_bookings"`
	ByStatus               map[string]int      `json:"by_status"`
	GrossRevenue           int64               `json:"gross_revenue"`
	CommissionEarned       int64               `json:"commission_earned"`
	PaidOut                int64               `json:"paid_out"`
	OpenSettlementRequests int                 `json:"open_settlement_requests"`
	DailySales             []DailySalesMetrics `json:"daily_sales"`
}

// DailySalesMetrics contains metrics for a single day
type DailySalesMetrics struct {
	Date     string `json:"date" bun:"sales_date"`
	Revenue  int64  `json:"revenue" bun:"revenue"`
	Bookings int    `json:"bookings" bun:"bookings"`
}

// ProductSales contains per-product sales for one seller
type ProductSales struct {
	ProductID          string `json:"product_id" bun:"product_id"`
	Title              string `json:"title" bun:"title"`
	Bookings           int    `json:"bookings" bun:"bookings"`
	GrossRevenue       int64  `json:"gross_revenue" bun:"gross_revenue"`
	PaidOut            int64  `json:"paid_out" bun:"paid_out"`
	AwaitingSettlement int64  `json:"awaiting_settlement" bun:"awaiting_settlement"`
}

// SellerSales is a seller's sales report across their products.
type SellerSales struct {
	OwnerID      string         `json:"owner_id"`
	Products     []ProductSales `json:"products"`
	TotalGross   int64          `json:"total_gross"`
	TotalPaidOut int64          `json:"total_paid_out"`
}

// AdminSummary returns the platform-wide booking and settlement figures.
func (s *Service) AdminSummary(ctx context.Context) (*Summary, error) {
	summary := &Summary{ByStatus: map[string]int{}}

	type statusCount struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	var counts []statusCount
	err := s.db.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("status").
		Scan(ctx, &counts)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to count bookings by status")
	}
	for _, c := range counts {
		summary.ByStatus[c.Status] = c.Count
		summary.TotalBookings += c.Count
	}

	type moneyTotals struct {
		Gross      int64 `bun:"gross"`
		Commission int64 `bun:"commission"`
		PaidOut    int64 `bun:"paid_out"`
	}
	var totals moneyTotals
	err = s.db.NewRaw(`
		SELECT
			COALESCE(SUM(CASE WHEN status = 'confirmed' THEN total_price ELSE 0 END), 0) AS gross,
			COALESCE(SUM(commission_amount), 0) AS commission,
			COALESCE(SUM(settled_amount), 0) AS paid_out
		FROM bookings`).
		Scan(ctx, &totals)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to sum booking revenue")
	}
	summary.GrossRevenue = totals.Gross
	summary.CommissionEarned = totals.Commission
	summary.PaidOut = totals.PaidOut

	open, err := s.db.NewSelect().
		Model((*models.Booking)(nil)).
		Where("settlement_status = ?", models.SettlementRequested).
		Count(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to count open settlement requests")
	}
	summary.OpenSettlementRequests = open

	daily, err := s.dailySales(ctx, "")
	if err != nil {
		return nil, err
	}
	summary.DailySales = daily

	return summary, nil
}

// SellerSales returns the per-product sales report for one seller.
func (s *Service) SellerSales(ctx context.Context, ownerID string) (*SellerSales, error) {
	report := &SellerSales{OwnerID: ownerID, Products: []ProductSales{}}

	err := s.db.NewRaw(`
		SELECT
			p.id AS product_id,
			p.name AS title,
			COUNT(b.id) AS bookings,
			COALESCE(SUM(CASE WHEN b.status = 'confirmed' THEN b.total_price ELSE 0 END), 0) AS gross_revenue,
			COALESCE(SUM(b.settled_amount), 0) AS paid_out,
			COALESCE(SUM(CASE WHEN b.status = 'confirmed' AND b.settlement_status != 'settled' THEN b.total_price ELSE 0 END), 0) AS awaiting_settlement
		FROM products p
		LEFT JOIN bookings b ON b.product_id = p.id
		WHERE p.owner_id = ?
		GROUP BY p.id, p.name
		ORDER BY gross_revenue DESC`, ownerID).
		Scan(ctx, &report.Products)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to aggregate seller sales")
	}

	for _, p := range report.Products {
		report.TotalGross += p.GrossRevenue
		report.TotalPaidOut += p.PaidOut
	}
	return report, nil
}

// dailySales groups non-cancelled bookings by creation date, most recent
// first. ownerID narrows to one seller's products when set.
func (s *Service) dailySales(ctx context.Context, ownerID string) ([]DailySalesMetrics, error) {
	daily := []DailySalesMetrics{}

	query := `
		SELECT
			DATE(b.created_at) AS sales_date,
			COALESCE(SUM(b.total_price), 0) AS revenue,
			COUNT(*) AS bookings
		FROM bookings b`
	args := []any{}
	if ownerID != "" {
		query += ` JOIN products p ON p.id = b.product_id WHERE b.status != 'cancelled' AND p.owner_id = ?`
		args = append(args, ownerID)
	} else {
		query += ` WHERE b.status != 'cancelled'`
	}
	query += ` GROUP BY DATE(b.created_at) ORDER BY sales_date DESC LIMIT 30`

	if err := s.db.NewRaw(query, args...).Scan(ctx, &daily); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePersistence, "failed to aggregate daily sales")
	}
	return daily, nil
}

// SellerDailySales exposes the per-seller daily series for the sales
// dashboard chart.
func (s *Service) SellerDailySales(ctx context.Context, ownerID string) ([]DailySalesMetrics, error) {
	return s.dailySales(ctx, ownerID)
}
