package withdrawal

import (
	"errors"
	"time"
)

// ErrValidation wraps rejected request parameters; handlers map it to 400
// with errors.Is.
var ErrValidation = errors.New("validation failed")

// WithdrawRequest is the POST /wallets/{uuid}/withdraw body. scheduled_for
// must lie in the future; the dispatcher picks the row up once it is due.
type WithdrawRequest struct {
	Amount       int64     `json:"amount"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
