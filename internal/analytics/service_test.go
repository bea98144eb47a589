package analytics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/analytics"
	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"
)

func setupAnalytics(t *testing.T) (*analytics.Service, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateTables(context.Background(), bunDB))
	return analytics.NewService(bunDB), bunDB
}

func insert(t *testing.T, bunDB *bun.DB, model any) {
	t.Helper()
	_, err := bunDB.NewInsert().Model(model).Exec(context.Background())
	require.NoError(t, err)
}

func seedSales(t *testing.T, bunDB *bun.DB) {
	now := time.Now()
	products := []models.Product{
		{ID: "prod-1", OwnerID: "seller-1", Name: "Hanbok Experience", CreatedAt: now},
		{ID: "prod-2", OwnerID: "seller-1", Name: "Tea Ceremony", CreatedAt: now},
		{ID: "prod-3", OwnerID: "seller-2", Name: "Night Tour", CreatedAt: now},
	}
	for i := range products {
		insert(t, bunDB, &products[i])
	}

	commission := int64(10000)
	payout := int64(90000)
	settledAt := now

	bookings := []models.Booking{
		{
			ID: uuid.NewString(), ProductID: "prod-1", BuyerEmail: "a@example.com",
			PaymentMethod: models.MethodCard, TotalPrice: 100000,
			Status: models.StatusConfirmed, SettlementStatus: models.SettlementSettled,
			CommissionAmount: &commission, SettledAmount: &payout, SettledAt: &settledAt,
			CreatedAt: now,
		},
		{
			ID: uuid.NewString(), ProductID: "prod-1", BuyerEmail: "b@example.com",
			PaymentMethod: models.MethodCard, TotalPrice: 50000,
			Status: models.StatusConfirmed, SettlementStatus: models.SettlementRequested,
			CreatedAt: now,
		},
		{
			ID: uuid.NewString(), ProductID: "prod-2", BuyerEmail: "c@example.com",
			PaymentMethod: models.MethodBankTransfer, TotalPrice: 30000,
			Status: models.StatusPendingPayment, SettlementStatus: models.SettlementNone,
			CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			ID: uuid.NewString(), ProductID: "prod-3", BuyerEmail: "a@example.com",
			PaymentMethod: models.MethodCard, TotalPrice: 80000,
			Status: models.StatusCancelled, SettlementStatus: models.SettlementNone,
			CreatedAt: now,
		},
	}
	for i := range bookings {
		insert(t, bunDB, &bookings[i])
	}
}

func TestAdminSummary(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedSales(t, bunDB)

	summary, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalBookings)
	assert.Equal(t, 2, summary.ByStatus["confirmed"])
	assert.Equal(t, 1, summary.ByStatus["pending_payment"])
	assert.Equal(t, 1, summary.ByStatus["cancelled"])

	assert.Equal(t, int64(150000), summary.GrossRevenue, "confirmed bookings only")
	assert.Equal(t, int64(10000), summary.CommissionEarned)
	assert.Equal(t, int64(90000), summary.PaidOut)
	assert.Equal(t, 1, summary.OpenSettlementRequests)

	// cancelled bookings never appear in the daily series
	var dailyTotal int64
	for _, d := range summary.DailySales {
		dailyTotal += d.Revenue
	}
	assert.Equal(t, int64(180000), dailyTotal)
	assert.NotEmpty(t, summary.DailySales)
}

func TestSellerSales(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedSales(t, bunDB)

	report, err := svc.SellerSales(context.Background(), "seller-1")
	require.NoError(t, err)

	require.Len(t, report.Products, 2)
	// ordered by gross revenue, the experience product comes first
	assert.Equal(t, "prod-1", report.Products[0].ProductID)
	assert.Equal(t, 2, report.Products[0].Bookings)
	assert.Equal(t, int64(150000), report.Products[0].GrossRevenue)
	assert.Equal(t, int64(90000), report.Products[0].PaidOut)
	assert.Equal(t, int64(50000), report.Products[0].AwaitingSettlement, "confirmed but unsettled")

	assert.Equal(t, "prod-2", report.Products[1].ProductID)
	assert.Equal(t, int64(0), report.Products[1].GrossRevenue, "pending_payment does not count")

	assert.Equal(t, int64(150000), report.TotalGross)
	assert.Equal(t, int64(90000), report.TotalPaidOut)

	// another seller's products never leak in
	other, err := svc.SellerSales(context.Background(), "seller-2")
	require.NoError(t, err)
	require.Len(t, other.Products, 1)
	assert.Equal(t, "prod-3", other.Products[0].ProductID)
	assert.Equal(t, int64(0), other.Products[0].GrossRevenue, "cancelled booking earns nothing")
}

func TestSellerDailySales(t *testing.T) {
	svc, bunDB := setupAnalytics(t)
	seedSales(t, bunDB)

	daily, err := svc.SellerDailySales(context.Background(), "seller-1")
	require.NoError(t, err)
	require.Len(t, daily, 2, "two distinct sale days")

	var total int64
	for _, d := range daily {
		total += d.Revenue
	}
	assert.Equal(t, int64(180000), total, "cancelled bookings excluded, other sellers excluded")
}
