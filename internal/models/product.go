package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Product is the minimal projection of the external catalog this service
// consumes. Price is kept as stored (legacy rows hold formatted strings);
// callers normalize it with money.ParseAmount.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID           string    `bun:"id,pk" json:"id"`
	OwnerID      string    `bun:"owner_id,notnull" json:"owner_id"`
	Name         string    `bun:"name,notnull" json:"name"`
	Price        string    `bun:"price" json:"price"`
	Downloadable bool      `bun:"downloadable,notnull,default:false" json:"downloadable"`
	Details      string    `bun:"details,nullzero" json:"details,omitempty"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}

// User is the minimal projection of the external identity store.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:"id,pk" json:"id"`
	Email     string    `bun:"email,unique,notnull" json:"email"`
	Role      string    `bun:"role,notnull,default:'USER'" json:"role"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
