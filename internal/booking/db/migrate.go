package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-booking/internal/models"
)

// CreateTables creates the booking schema from the bun models. Tests and
// the seed command use this; production uses the SQL migration runner.
func CreateTables(ctx context.Context, db *bun.DB) error {
	for _, model := range []any{
		(*models.Product)(nil),
		(*models.User)(nil),
		(*models.Booking)(nil),
	} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
