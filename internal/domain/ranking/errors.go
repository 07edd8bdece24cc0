package ranking

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCorruptStandings = errors.New("corrupt standings")
)
