package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const sessionTokenPrefix = "pv_"

var (
	errInvalidOTPDigits = errors.New("invalid otp digits")
	errNilRandomSource  = errors.New("nil random source")
)

// NewOTP returns a uniformly sampled numeric code of the given length
// read from crypto/rand.
func NewOTP(digits int) (string, error) {
	return NewOTPFrom(rand.Reader, digits)
}

// NewOTPFrom is NewOTP with an explicit random source.
func NewOTPFrom(r io.Reader, digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errInvalidOTPDigits
	}
	if r == nil {
		return "", errNilRandomSource
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(r, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewSessionToken returns an opaque verification session handle.
func NewSessionToken() (string, error) {
	return NewSessionTokenFrom(rand.Reader)
}

// NewSessionTokenFrom is NewSessionToken with an explicit random source.
func NewSessionTokenFrom(r io.Reader) (string, error) {
	if r == nil {
		return "", errNilRandomSource
	}
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return "", err
	}
	return sessionTokenPrefix + id.String(), nil
}

// HashCode digests a verification code for storage.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// MaskPhone keeps the last four digits of a phone number for logs and audit.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
