package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	ErrNilStandings = errors.New("nil standings")
	ErrDecode       = errors.New("cannot decode cached standings")
)
