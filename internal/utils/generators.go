package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateMerchantUID creates the merchant-side payment identifier sent
// to the gateway. Unique per charge attempt, never reused on retries.
func GenerateMerchantUID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("mid_%d_%06d", timestamp, randomNum.Int64())
}
