package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID            string        `bun:"id,pk" json:"id"`
	ProductID     string        `bun:"product_id,notnull" json:"product_id"`
	BuyerEmail    string        `bun:"buyer_email,notnull" json:"user_email"`
	PaymentMethod PaymentMethod `bun:"payment_method,notnull" json:"payment_method"`
	// TotalPrice is an exact integer amount in minor currency units.
	TotalPrice       int64            `bun:"total_price,notnull" json:"total_price"`
	Status           BookingStatus    `bun:"status,notnull" json:"status"`
	SettlementStatus SettlementStatus `bun:"settlement_status,notnull" json:"settlement_status"`

	// Gateway identifiers, empty for bank_transfer/on_site flows.
	MerchantUID string `bun:"merchant_uid,nullzero" json:"merchant_uid,omitempty"`
	GatewayTxID string `bun:"gateway_tx_id,nullzero" json:"gateway_tx_id,omitempty"`

	// Reserved calendar date for non-downloadable products (YYYY-MM-DD).
	ReservedDate string `bun:"reserved_date,nullzero" json:"reserved_date,omitempty"`

	// Settlement figures, written exactly once when the booking settles.
	CommissionAmount *int64     `bun:"commission_amount" json:"commission_amount,omitempty"`
	SettledAmount    *int64     `bun:"settled_amount" json:"settled_amount,omitempty"`
	SettledAt        *time.Time `bun:"settled_at" json:"settled_at,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`

	// Joined product display fields, populated by list/get queries.
	ProductName    string `bun:"product_name,scanonly" json:"product_name,omitempty"`
	ProductDetails string `bun:"product_details,scanonly" json:"-"`
}

// ProductDisplay is the minimal product projection attached to booking
// rows, extracted from the product details JSON blob the way the
// storefront expects it.
type ProductDisplay struct {
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Display builds the product projection for a joined booking row. The
// details blob is legacy data and may be empty or malformed; the product
// name is the fallback title.
func (b *Booking) Display() ProductDisplay {
	d := ProductDisplay{Title: b.ProductName}
	if b.ProductDetails == "" {
		return d
	}
	var details struct {
		OriginalTitle string `json:"original_title"`
		Category      string `json:"category"`
	}
	if err := json.Unmarshal([]byte(b.ProductDetails), &details); err != nil {
		return d
	}
	if details.OriginalTitle != "" {
		d.Title = details.OriginalTitle
	}
	d.Category = details.Category
	return d
}

// BookingView is a booking row as returned to API clients: the booking
// plus the product projection.
type BookingView struct {
	Booking
	Products ProductDisplay `json:"products"`
}

func (b Booking) View() BookingView {
	return BookingView{Booking: b, Products: b.Display()}
}

// BookingFilter narrows list queries. Empty or "all" fields impose no
// constraint; predicates combine with AND.
type BookingFilter struct {
	Status        string
	PaymentMethod string
	Search        string // free-text match against buyer_email
	StartDate     string // inclusive lower bound on created_at
	EndDate       string // inclusive upper bound on created_at
}

type CreateBookingRequest struct {
	ProductID     string `json:"product_id"`
	PaymentMethod string `json:"payment_method"`
	// TotalPrice may arrive as a number or a formatted string; it is
	// normalized with money.ParseAmount.
	TotalPrice   any    `json:"total_price"`
	ReservedDate string `json:"reserved_date,omitempty"`
	BuyerName    string `json:"buyer_name,omitempty"`
	BuyerTel     string `json:"buyer_tel,omitempty"`
}

type CreateBookingResponse struct {
	ID      string        `json:"id"`
	Status  BookingStatus `json:"status"`
	Message string        `json:"message"`
	// DownloadToken is set only when a downloadable product was confirmed
	// at creation; it redeems the one-shot download pass.
	DownloadToken string `json:"download_token,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type SettleRequest struct {
	TotalPrice any `json:"total_price"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
