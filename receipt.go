package goVerify

import (
	"fmt"

	"github.com/MrEthical07/goVerify/jwt"
)

// ParseReceipt verifies a receipt returned by a successful Verify and
// returns its content. It fails with ErrReceiptsDisabled when receipts are
// not configured and with an error wrapping ErrReceiptInvalid otherwise.
func (e *Engine) ParseReceipt(token string) (*Receipt, error) {
	if e == nil || e.receipts == nil {
		return nil, ErrReceiptsDisabled
	}
	claims, err := e.receipts.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReceiptInvalid, err)
	}
	return receiptFromClaims(claims), nil
}

func receiptFromClaims(c *jwt.ReceiptClaims) *Receipt {
	r := &Receipt{
		Subject:      c.Subject,
		SessionToken: c.ID,
		PhoneNumber:  c.Phone,
		Method:       Method(c.Method),
	}
	if c.IssuedAt != nil {
		r.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		r.ExpiresAt = c.ExpiresAt.Time
	}
	return r
}
