package hold

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// DateHold reserves a product/date pair while a booking is being created,
// so two buyers cannot both charge for the same experience slot. Holds
// expire on their own; a completed or aborted booking releases early.
type DateHold struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *log.Logger
}

func NewDateHold(client *redis.Client, ttl time.Duration) *DateHold {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DateHold{
		Client: client,
		TTL:    ttl,
		Logger: log.Default(),
	}
}

func holdKey(productID, date string) string {
	return fmt.Sprintf("date_hold:%s:%s", productID, date)
}

// CheckAvailability reports whether a product/date pair is free without
// taking the hold.
func (h *DateHold) CheckAvailability(ctx context.Context, productID, date string) (bool, error) {
	_, err := h.Client.Get(ctx, holdKey(productID, date)).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Acquire takes the hold for bookingID. Returns false when another
// booking already holds the slot.
func (h *DateHold) Acquire(ctx context.Context, productID, date, bookingID string) (bool, error) {
	key := holdKey(productID, date)
	ok, err := h.Client.SetNX(ctx, key, bookingID, h.TTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		h.Logger.Println(fmt.Sprintf("HOLD: acquired %s for booking %s (ttl %s)", key, bookingID, h.TTL))
	}
	return ok, nil
}

// Release frees the hold, but only if bookingID still owns it. Releasing
// an expired or foreign hold is a no-op.
func (h *DateHold) Release(ctx context.Context, productID, date, bookingID string) error {
	key := holdKey(productID, date)
	val, err := h.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val == bookingID {
		_, err := h.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
