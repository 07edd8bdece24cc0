package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("user not ranked")
	ErrBusy            = errors.New("notification queue is full")
	ErrNotStarted      = errors.New("service not started")
)
