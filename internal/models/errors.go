package models

import "errors"

var (
	ErrUnresolvableDestination = errors.New("destination cannot be resolved")
	ErrNoQuoteAvailable        = errors.New("no quote available for destination and amount")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrPaymentFailed           = errors.New("payment failed")
	ErrUnknownReceiver         = errors.New("unknown receiver")

	// ErrDuplicateRecord means the store saw a second row for one execution condition, or a
	// completed transfer collided with an unrelated record. It is an internal consistency fault.
	ErrDuplicateRecord = errors.New("duplicate payment record")

	ErrInvalidRequest    = errors.New("invalid request")
	ErrPaymentInProgress = errors.New("payment is already being processed")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrUserNotFound      = errors.New("user not found")
)

// PaymentFailedError wraps a failure that happened while or after the transfer was submitted.
type PaymentFailedError struct {
	Err error
}

func (e *PaymentFailedError) Error() string {
	return "payment failed: " + e.Err.Error()
}

func (e *PaymentFailedError) Unwrap() error {
	return e.Err
}

func (e *PaymentFailedError) Is(target error) bool {
	return target == ErrPaymentFailed
}
