package models

import "errors"

var (
	ErrConflictData       = errors.New("data conflicts with existing data")
	ErrDataNotFound       = errors.New("data not found")
	ErrValidation         = errors.New("invalid request data")
	ErrSignatureInvalid   = errors.New("payment signature is invalid")
	ErrGatewayUnavailable = errors.New("payment gateway is unavailable")
	ErrPersistence        = errors.New("ledger write failed")
	ErrAlreadyTerminal    = errors.New("delivery is in terminal state")
)
