package queueengine

import "errors"

var (
	ErrQueueNotStarted = errors.New("queue is not started")
	ErrDuplicateJob    = errors.New("job is already queued")
	ErrMissingSpec     = errors.New("specification not found for job")
)
