package pass

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/apperror"
)

func setupIssuer(t *testing.T) (*Issuer, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewIssuer(client, "test-pass-secret", time.Hour), mr
}

func TestIssueAndRedeemOnce(t *testing.T) {
	issuer, _ := setupIssuer(t)
	ctx := context.Background()

	token, err := issuer.Issue(ctx, "booking-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	bookingID, err := issuer.Redeem(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "booking-42", bookingID)

	// Second redemption must fail: the token is one-shot
	_, err = issuer.Redeem(ctx, token)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestRedeemUnknownToken(t *testing.T) {
	issuer, _ := setupIssuer(t)

	_, err := issuer.Redeem(context.Background(), "nonexistent-token")
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestTokenExpires(t *testing.T) {
	issuer, mr := setupIssuer(t)
	ctx := context.Background()

	token, err := issuer.Issue(ctx, "booking-7")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = issuer.Redeem(ctx, token)
	require.Error(t, err)
	assert.True(t, apperror.IsNotFound(err))
}

func TestGeneratePassQRRoundTrip(t *testing.T) {
	issuer, _ := setupIssuer(t)

	claims := Claims{
		BookingID:  "booking-1",
		ProductID:  "prod-1",
		BuyerEmail: "buyer@example.com",
		IssuedAt:   time.Now().UTC().Truncate(time.Second),
	}

	png, err := issuer.GeneratePassQR(claims)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	// PNG magic bytes
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}

func TestEncryptedPayloadRoundTrip(t *testing.T) {
	hashed := sha256.Sum256([]byte("test-pass-secret"))
	key := hashed[:]

	claims := Claims{BookingID: "booking-9", ProductID: "prod-3", BuyerEmail: "b@e.com"}
	data, err := json.Marshal(claims)
	require.NoError(t, err)

	encrypted, err := encryptAES(data, key)
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "booking-9", "payload must not be readable")

	decrypted, err := decryptAES(encrypted, key)
	require.NoError(t, err)

	var out Claims
	require.NoError(t, json.Unmarshal(decrypted, &out))
	assert.Equal(t, claims, out)
}
