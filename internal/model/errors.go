package model

import "errors"

var (
	// ErrNotFound reports a missing agent or record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument reports a malformed request parameter.
	ErrInvalidArgument = errors.New("invalid argument")
)
