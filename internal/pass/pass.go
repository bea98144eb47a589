package pass

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"ms-booking/internal/apperror"
)

// Claims is the payload embedded in a download pass QR. The storefront
// scans it to hand the buyer their purchased content.
type Claims struct {
	BookingID  string    `json:"booking_id"`
	ProductID  string    `json:"product_id"`
	BuyerEmail string    `json:"buyer_email"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Issuer hands out one-shot download tokens for confirmed downloadable
// bookings and renders them as encrypted QR codes. Tokens live in Redis
// and are consumed on first redemption.
type Issuer struct {
	client *redis.Client
	secret []byte
	ttl    time.Duration
}

func NewIssuer(client *redis.Client, secret string, ttl time.Duration) *Issuer {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{client: client, secret: hashed[:], ttl: ttl}
}

func tokenKey(token string) string {
	return "download_pass:" + token
}

// Issue creates a one-shot token bound to bookingID.
func (i *Issuer) Issue(ctx context.Context, bookingID string) (string, error) {
	token := uuid.NewString()
	if err := i.client.Set(ctx, tokenKey(token), bookingID, i.ttl).Err(); err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeInternal, "failed to store download token")
	}
	return token, nil
}

// Redeem consumes a token and returns the booking it was issued for. A
// second redemption of the same token fails: the token is deleted as
// part of the first successful redemption.
func (i *Issuer) Redeem(ctx context.Context, token string) (string, error) {
	key := tokenKey(token)
	bookingID, err := i.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperror.New(apperror.ErrCodeNotFound, "download token is invalid or already used")
	}
	if err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeInternal, "failed to read download token")
	}
	if err := i.client.Del(ctx, key).Err(); err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeInternal, "failed to consume download token")
	}
	return bookingID, nil
}

// GeneratePassQR renders the claims as a 256x256 PNG QR code. The
// payload is AES-encrypted so a scanned pass cannot be forged.
func (i *Issuer) GeneratePassQR(claims Claims) ([]byte, error) {
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}

	encrypted, err := encryptAES(data, i.secret)
	if err != nil {
		return nil, err
	}

	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < aes.BlockSize {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])
	return data, nil
}
