package identity

import "errors"

var (
	ErrInvalidToken   = errors.New("invalid bearer token")
	ErrMissingSubject = errors.New("token has no subject")
)
