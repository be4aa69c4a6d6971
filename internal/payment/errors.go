package payment

import "errors"

var (
	ErrPaymentFailed          = errors.New("payment could not be initiated")
	ErrPaymentSessionNotFound = errors.New("payment session not found")
	ErrAlreadyProcessed       = errors.New("payment session already processed")
	ErrInvalidCallback        = errors.New("invalid callback payload")
	ErrRecordExists           = errors.New("payment record already exists")
)
