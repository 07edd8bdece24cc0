package seeding

import "errors"

var (
	ErrMismatch    = errors.New("service disagrees with the expected ranking")
	ErrUnavailable = errors.New("service unavailable")
)
