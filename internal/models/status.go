package models

// BookingStatus is the authoritative lifecycle state of a booking. Values
// are closed: anything else is rejected at construction time instead of
// leaking into the store as a free-form string.
type BookingStatus string

const (
	StatusPending        BookingStatus = "pending"
	StatusPendingPayment BookingStatus = "pending_payment"
	StatusConfirmed      BookingStatus = "confirmed"
	StatusCancelled      BookingStatus = "cancelled"
)

// ParseBookingStatus validates a wire value against the closed set.
func ParseBookingStatus(s string) (BookingStatus, bool) {
	switch BookingStatus(s) {
	case StatusPending, StatusPendingPayment, StatusConfirmed, StatusCancelled:
		return BookingStatus(s), true
	}
	return "", false
}

// TransitionSources returns the statuses a booking may be in for a
// transition into target to be legal. Cancelled is terminal.
func (target BookingStatus) TransitionSources() []BookingStatus {
	switch target {
	case StatusConfirmed:
		return []BookingStatus{StatusPending, StatusPendingPayment}
	case StatusCancelled:
		// confirmed is a legal source only while settlement has not
		// started; the settlement guard is enforced in the store update.
		return []BookingStatus{StatusPending, StatusPendingPayment, StatusConfirmed}
	default:
		// pending and pending_payment are entry states only.
		return nil
	}
}

// SettlementStatus tracks the payout lifecycle. Monotonic:
// none -> requested -> settled, no regression.
type SettlementStatus string

const (
	SettlementNone      SettlementStatus = "none"
	SettlementRequested SettlementStatus = "requested"
	SettlementSettled   SettlementStatus = "settled"
)

// PaymentMethod is the buyer-chosen payment channel, immutable after
// creation.
type PaymentMethod string

const (
	MethodCard             PaymentMethod = "card"
	MethodRealtimeTransfer PaymentMethod = "realtime_transfer"
	MethodBankTransfer     PaymentMethod = "bank_transfer"
	MethodOnSite           PaymentMethod = "on_site"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case MethodCard, MethodRealtimeTransfer, MethodBankTransfer, MethodOnSite:
		return PaymentMethod(s), true
	}
	return "", false
}

// RequiresGateway reports whether the method is charged through the
// payment gateway before the booking record exists. Bank transfers and
// on-site payment are verified manually and never touch the gateway.
func (m PaymentMethod) RequiresGateway() bool {
	return m == MethodCard || m == MethodRealtimeTransfer
}

// InitialStatus selects the status a new booking starts in, from the
// product type and payment method:
//
//	downloadable + card/realtime_transfer -> confirmed (gateway already charged)
//	bank_transfer (any product)           -> pending_payment (manual verification)
//	anything else                         -> pending (awaiting seller approval)
func InitialStatus(downloadable bool, m PaymentMethod) BookingStatus {
	if m == MethodBankTransfer {
		return StatusPendingPayment
	}
	if downloadable && m.RequiresGateway() {
		return StatusConfirmed
	}
	return StatusPending
}
