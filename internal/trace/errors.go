package trace

import "errors"

var (
	ErrInvalidID        = errors.New("trace: malformed id")
	ErrInvalidState     = errors.New("trace: state must be finished or interrupted")
	ErrEmptyBatch       = errors.New("trace: point batch must not be empty")
	ErrNotFound         = errors.New("trace: not found")
	ErrActivityNotFound = errors.New("trace: activity not found")
	ErrNotRecording     = errors.New("trace: not recording")
)
