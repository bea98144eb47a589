package db_test

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

	"ms-booking/internal/apperror"
	"ms-booking/internal/booking/db"
	"ms-booking/internal/models"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if err := db.CreateTables(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func seedProduct(t *testing.T, bunDB *bun.DB, product models.Product) models.Product {
	t.Helper()
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}
	_, err := bunDB.NewInsert().Model(&product).Exec(context.Background())
	require.NoError(t, err)
	return product
}

func newBooking(productID string) models.Booking {
	return models.Booking{
		ID:               uuid.New().String(),
		ProductID:        productID,
		BuyerEmail:       "buyer@example.com",
		PaymentMethod:    models.MethodCard,
		TotalPrice:       100000,
		Status:           models.StatusPending,
		SettlementStatus: models.SettlementNone,
		CreatedAt:        time.Now(),
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{
		OwnerID: "seller-1",
		Name:    "Hanbok Experience",
		Details: `{"original_title":"한복 체험","category":"experience"}`,
	})

	booking := newBooking(product.ID)
	require.NoError(t, store.CreateBooking(ctx, &booking))

	got, err := store.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
	assert.Equal(t, "buyer@example.com", got.BuyerEmail)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(100000), got.TotalPrice)

	// product projection comes from the joined details blob
	display := got.Display()
	assert.Equal(t, "한복 체험", display.Title)
	assert.Equal(t, "experience", display.Category)

	_, err = store.GetBookingByID(ctx, "non-existent")
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestDisplayFallsBackToProductName(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{
		OwnerID: "seller-1",
		Name:    "Tea Ceremony",
	})

	booking := newBooking(product.ID)
	require.NoError(t, store.CreateBooking(ctx, &booking))

	got, err := store.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tea Ceremony", got.Display().Title)
	assert.Empty(t, got.Display().Category)
}

func TestUpdateStatusConditional(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{OwnerID: "seller-1", Name: "Pottery Class"})
	booking := newBooking(product.ID)
	require.NoError(t, store.CreateBooking(ctx, &booking))

	// pending -> confirmed succeeds
	ok, err := store.UpdateStatus(ctx, booking.ID, models.StatusConfirmed.TransitionSources(), models.StatusConfirmed)
	require.NoError(t, err)
	assert.True(t, ok)

	// repeating the same transition matches no row
	ok, err = store.UpdateStatus(ctx, booking.ID, models.StatusConfirmed.TransitionSources(), models.StatusConfirmed)
	require.NoError(t, err)
	assert.False(t, ok, "booking is no longer in a source status")

	// confirmed -> cancelled is allowed while settlement has not started
	ok, err = store.UpdateStatus(ctx, booking.ID, models.StatusCancelled.TransitionSources(), models.StatusCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestCancelBlockedOnceSettlementStarted(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{OwnerID: "seller-1", Name: "Calligraphy"})
	booking := newBooking(product.ID)
	booking.Status = models.StatusConfirmed
	require.NoError(t, store.CreateBooking(ctx, &booking))

	ok, err := store.RequestSettlement(ctx, booking.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// the settlement guard must refuse the cancellation
	ok, err = store.UpdateStatus(ctx, booking.ID, models.StatusCancelled.TransitionSources(), models.StatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, models.SettlementRequested, got.SettlementStatus)
}

func TestRequestSettlementConditional(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{OwnerID: "seller-1", Name: "Temple Stay"})

	pending := newBooking(product.ID)
	require.NoError(t, store.CreateBooking(ctx, &pending))

	confirmed := newBooking(product.ID)
	confirmed.Status = models.StatusConfirmed
	require.NoError(t, store.CreateBooking(ctx, &confirmed))

	// a pending booking cannot request settlement
	ok, err := store.RequestSettlement(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.RequestSettlement(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// second request matches no row
	ok, err = store.RequestSettlement(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettleIsExactlyOnce(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{OwnerID: "seller-1", Name: "Kimchi Workshop"})
	booking := newBooking(product.ID)
	booking.Status = models.StatusConfirmed
	booking.SettlementStatus = models.SettlementRequested
	require.NoError(t, store.CreateBooking(ctx, &booking))

	settledAt := time.Now().UTC()
	ok, err := store.Settle(ctx, booking.ID, 10000, 90000, settledAt)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementSettled, got.SettlementStatus)
	require.NotNil(t, got.CommissionAmount)
	require.NotNil(t, got.SettledAmount)
	require.NotNil(t, got.SettledAt)
	assert.Equal(t, int64(10000), *got.CommissionAmount)
	assert.Equal(t, int64(90000), *got.SettledAmount)

	// a concurrent or repeated settle attempt loses the conditional update
	ok, err = store.Settle(ctx, booking.ID, 10000, 90000, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	// figures are untouched
	again, err := store.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), *again.CommissionAmount)
	assert.Equal(t, int64(90000), *again.SettledAmount)
}

func TestSettleRequiresConfirmed(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{OwnerID: "seller-1", Name: "Folk Village Tour"})
	booking := newBooking(product.ID)
	require.NoError(t, store.CreateBooking(ctx, &booking))

	ok, err := store.Settle(ctx, booking.ID, 10000, 90000, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok, "pending booking must not settle")
}

func TestListBookingsScopesAndFilters(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	mine := seedProduct(t, bunDB, models.Product{OwnerID: "seller-1", Name: "Hanbok Experience"})
	other := seedProduct(t, bunDB, models.Product{OwnerID: "seller-2", Name: "Night Market Tour"})

	now := time.Now()
	rows := []models.Booking{
		{
			ID: "b-old", ProductID: mine.ID, BuyerEmail: "alice@example.com",
			PaymentMethod: models.MethodCard, TotalPrice: 50000,
			Status: models.StatusConfirmed, SettlementStatus: models.SettlementNone,
			CreatedAt: now.Add(-72 * time.Hour),
		},
		{
			ID: "b-mid", ProductID: mine.ID, BuyerEmail: "bob@example.com",
			PaymentMethod: models.MethodBankTransfer, TotalPrice: 30000,
			Status: models.StatusPendingPayment, SettlementStatus: models.SettlementNone,
			CreatedAt: now.Add(-24 * time.Hour),
		},
		{
			ID: "b-new", ProductID: other.ID, BuyerEmail: "alice@example.com",
			PaymentMethod: models.MethodCard, TotalPrice: 80000,
			Status: models.StatusPending, SettlementStatus: models.SettlementNone,
			CreatedAt: now,
		},
	}
	for i := range rows {
		require.NoError(t, store.CreateBooking(ctx, &rows[i]))
	}

	// admin sees everything, newest first
	all, err := store.ListBookings(ctx, db.ListScope{Admin: true}, models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b-new", all[0].ID)
	assert.Equal(t, "b-old", all[2].ID)

	// seller scope: only bookings on owned products
	sellers, err := store.ListBookings(ctx, db.ListScope{SellerOwnerID: "seller-1"}, models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, sellers, 2)
	for _, b := range sellers {
		assert.Equal(t, mine.ID, b.ProductID)
	}

	// buyer scope: only own bookings
	buyers, err := store.ListBookings(ctx, db.ListScope{BuyerEmail: "alice@example.com"}, models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, buyers, 2)

	// status filter
	confirmed, err := store.ListBookings(ctx, db.ListScope{Admin: true}, models.BookingFilter{Status: "confirmed"})
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "b-old", confirmed[0].ID)

	// "all" imposes nothing
	unfiltered, err := store.ListBookings(ctx, db.ListScope{Admin: true}, models.BookingFilter{Status: "all", PaymentMethod: "all"})
	require.NoError(t, err)
	assert.Len(t, unfiltered, 3)

	// payment method filter
	transfers, err := store.ListBookings(ctx, db.ListScope{Admin: true}, models.BookingFilter{PaymentMethod: "bank_transfer"})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "b-mid", transfers[0].ID)

	// search matches buyer email substrings
	found, err := store.ListBookings(ctx, db.ListScope{Admin: true}, models.BookingFilter{Search: "bob"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b-mid", found[0].ID)

	// date range is inclusive on both ends
	start := now.Add(-48 * time.Hour).Format("2006-01-02")
	end := now.Format("2006-01-02")
	ranged, err := store.ListBookings(ctx, db.ListScope{Admin: true}, models.BookingFilter{StartDate: start, EndDate: end})
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	for _, b := range ranged {
		assert.NotEqual(t, "b-old", b.ID)
	}

	// product projection rides along on list rows
	assert.Equal(t, "Night Market Tour", all[0].Products.Title)
}

func TestDeleteBooking(t *testing.T) {
	store, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	product := seedProduct(t, bunDB, models.Product{OwnerID: "seller-1", Name: "Palace Tour"})
	booking := newBooking(product.ID)
	require.NoError(t, store.CreateBooking(ctx, &booking))

	require.NoError(t, store.DeleteBooking(ctx, booking.ID))

	err := store.DeleteBooking(ctx, booking.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}
