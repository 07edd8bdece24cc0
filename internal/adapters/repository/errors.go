package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrInvalidRecord = errors.New("invalid record")
	ErrUnknownDriver = errors.New("unknown store driver")
	ErrNotConfigured = errors.New("store is not configured")
	ErrInvalidTable  = errors.New("invalid table name")
)
