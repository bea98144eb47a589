package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-booking/internal/models"
)

func TestParseBookingStatusIsClosed(t *testing.T) {
	for _, valid := range []string{"pending", "pending_payment", "confirmed", "cancelled"} {
		_, ok := models.ParseBookingStatus(valid)
		assert.True(t, ok, valid)
	}
	for _, invalid := range []string{"", "Pending", "completed", "shipped", "CONFIRMED"} {
		_, ok := models.ParseBookingStatus(invalid)
		assert.False(t, ok, invalid)
	}
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t,
		[]models.BookingStatus{models.StatusPending, models.StatusPendingPayment},
		models.StatusConfirmed.TransitionSources())

	assert.ElementsMatch(t,
		[]models.BookingStatus{models.StatusPending, models.StatusPendingPayment, models.StatusConfirmed},
		models.StatusCancelled.TransitionSources())

	// entry states can never be transition targets
	assert.Empty(t, models.StatusPending.TransitionSources())
	assert.Empty(t, models.StatusPendingPayment.TransitionSources())
}

func TestInitialStatusTable(t *testing.T) {
	cases := []struct {
		downloadable bool
		method       models.PaymentMethod
		want         models.BookingStatus
	}{
		{true, models.MethodCard, models.StatusConfirmed},
		{true, models.MethodRealtimeTransfer, models.StatusConfirmed},
		{true, models.MethodBankTransfer, models.StatusPendingPayment},
		{true, models.MethodOnSite, models.StatusPending},
		{false, models.MethodCard, models.StatusPending},
		{false, models.MethodRealtimeTransfer, models.StatusPending},
		{false, models.MethodBankTransfer, models.StatusPendingPayment},
		{false, models.MethodOnSite, models.StatusPending},
	}
	for _, tc := range cases {
		got := models.InitialStatus(tc.downloadable, tc.method)
		assert.Equal(t, tc.want, got, "downloadable=%v method=%s", tc.downloadable, tc.method)
	}
}

func TestRequiresGateway(t *testing.T) {
	assert.True(t, models.MethodCard.RequiresGateway())
	assert.True(t, models.MethodRealtimeTransfer.RequiresGateway())
	assert.False(t, models.MethodBankTransfer.RequiresGateway())
	assert.False(t, models.MethodOnSite.RequiresGateway())
}
