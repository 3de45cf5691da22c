package notify

import "errors"

var (
	// ErrQueueFull indicates the dispatcher cannot accept more events right now.
	ErrQueueFull = errors.New("notification queue full")
	// ErrClosed indicates the dispatcher was shut down.
	ErrClosed = errors.New("notification dispatcher closed")
)
