package records

import "errors"

var (
	ErrNotFound        = errors.New("performance record not found")
	ErrInvalidID       = errors.New("invalid id")
	ErrUnknownDistance = errors.New("unknown reference distance")
)
