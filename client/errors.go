package client

import (
	"errors"
	"fmt"

	"github.com/jrife/kite/transport"
)

var (
	// ErrClosed indicates that the client was closed
	ErrClosed = errors.New("client was closed")
	// ErrCommitted is returned when an atomic operation
	// is committed a second time
	ErrCommitted = errors.New("atomic operation was already committed")
	// ErrNoSuchMessage is returned when a queue or
	// dead-letter operation names a message id that does
	// not exist
	ErrNoSuchMessage = errors.New("message does not exist")
)

func wrapError(wrap string, err error) error {
	switch err {
	case transport.ErrClosed:
		return ErrClosed
	case transport.ErrNoSuchMessage:
		return ErrNoSuchMessage
	case ErrClosed:
		fallthrough
	case ErrCommitted:
		fallthrough
	case nil:
		return err
	}

	return fmt.Errorf("%s: %s", wrap, err)
}
