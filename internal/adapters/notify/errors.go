package notify

import "errors"

var (
	ErrMalformed = errors.New("malformed fact-change message")
	ErrNoChannel = errors.New("no channel configured")
)
