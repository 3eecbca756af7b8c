package transport

import (
	"errors"
)

var (
	// ErrClosed indicates that the gateway or stream was closed
	ErrClosed = errors.New("gateway was closed")
	// ErrNoSuchMessage is returned when a queue or
	// dead-letter operation names a message id that does
	// not exist
	ErrNoSuchMessage = errors.New("message does not exist")
)
