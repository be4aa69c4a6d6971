package request

import "errors"

var (
	ErrRequestNotFound     = errors.New("request not found")
	ErrNotAwaitingPayment  = errors.New("request is not awaiting payment")
	ErrInvalidStatusChange = errors.New("request is not in a status that allows this action")
	ErrInvalidStatus       = errors.New("invalid request status")
	ErrNotPerformer        = errors.New("request belongs to another performer")
)
