package withdrawal

import (
	"errors"
	"time"
)

func ValidateRequest(amount int64, scheduledFor time.Time, now time.Time) error {
	if amount < 1 {
		return errors.New("amount must be a positive integer")
	}
	if scheduledFor.IsZero() {
		return errors.New("scheduled_for is required")
	}
	if !scheduledFor.After(now) {
		return errors.New("scheduled_for must be in the future")
	}
	return nil
}
