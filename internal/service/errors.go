package service

import "errors"

// Error taxonomy surfaced by the orchestrator. Transient probe and scheduler
// failures never appear here: the monitor absorbs them by rescheduling and
// CheckPayment reports them as not-paid.
var (
	ErrValidation        = errors.New("validation failed")
	ErrRateLimited       = errors.New("rate limited")
	ErrNotOwned          = errors.New("session does not own this address")
	ErrExpired           = errors.New("payment window expired")
	ErrUnderpayment      = errors.New("confirmed amount below expected")
	ErrOracleUnavailable = errors.New("no exchange rate available")
)
