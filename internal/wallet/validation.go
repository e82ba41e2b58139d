package wallet

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidateAmount rejects non-positive amounts. Amounts are integers in the
// smallest currency unit, so there is no fractional case to consider.
func ValidateAmount(amount int64) error {
	if amount < 1 {
		return fmt.Errorf("amount must be a positive integer")
	}
	return nil
}

// ValidateIdempotencyKey checks the optional Idempotency-Key header value.
// An empty key means the caller opted out.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if _, err := uuid.Parse(key); err != nil {
		return fmt.Errorf("idempotency key must be a valid uuid")
	}
	return nil
}
