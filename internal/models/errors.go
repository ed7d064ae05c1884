package models

import "errors"

// Sentinel errors shared by the scheduling packages.
var (
	ErrConfiguration   = errors.New("invalid configuration")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrBadFormat       = errors.New("bad format")
	ErrInvalidState    = errors.New("invalid state")
)
