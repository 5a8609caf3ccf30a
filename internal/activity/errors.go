package activity

import "errors"

var (
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidType     = errors.New("invalid activity type")
	ErrInvalidActivity = errors.New("invalid activity")
	ErrEmptyUpdate     = errors.New("empty update")
	ErrNotFound        = errors.New("activity not found")
)
