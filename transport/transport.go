// Package transport describes the fixed request/response
// contract between the client and the remote store. The
// store itself is an external collaborator; implementations
// of Gateway only move requests across the boundary, one
// network call per logical operation.
package transport

import (
	"context"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/wire"
)

// WatchStream is a persistent stream of change batches.
// Next must be called once at the start to advance to the
// first batch. It returns true if a batch is available or
// false otherwise. It may return false in case of an
// error. Error() must be checked after Next() returns
// false; a nil error means the stream ended cleanly.
type WatchStream interface {
	Next() bool
	Batch() wire.WatchBatch
	Error() error
	Close() error
}

// QueueStream is a persistent stream of queue messages,
// advanced the same way as WatchStream.
type QueueStream interface {
	Next() bool
	Message() wire.QueueMessage
	Error() error
	Close() error
}

// Gateway is the client's view of the remote store. Every
// method is one logical operation against the store.
type Gateway interface {
	// Get retrieves one entry. Absence is not an error:
	// the returned entry has a nil value.
	Get(ctx context.Context, key keys.Key) (wire.Entry, error)
	// BatchGet retrieves entries for all keys, in the
	// order given, absent entries included.
	BatchGet(ctx context.Context, ks []keys.Key) ([]wire.Entry, error)
	// Commit applies checks and mutations atomically. A
	// failed commit applies nothing and reports no further
	// detail.
	Commit(ctx context.Context, request wire.CommitRequest) (wire.CommitResponse, error)
	// List scans the keys covered by a prefix
	List(ctx context.Context, request wire.ListRequest) (wire.ListResponse, error)
	// WatchPoll returns every change to the targets since
	// the cursor, and the cursor to poll from next
	WatchPoll(ctx context.Context, request wire.WatchPollRequest) (wire.WatchPollResponse, error)
	// WatchStream opens a persistent change stream
	WatchStream(ctx context.Context, request wire.WatchStreamRequest) (WatchStream, error)
	// Enqueue adds a value to the queue
	Enqueue(ctx context.Context, request wire.EnqueueRequest) (wire.EnqueueResponse, error)
	// QueuePoll returns the next deliverable message, or
	// nil if none is ready
	QueuePoll(ctx context.Context) (*wire.QueueMessage, error)
	// QueueListen opens a persistent message stream
	QueueListen(ctx context.Context) (QueueStream, error)
	// Ack acknowledges a delivered message
	Ack(ctx context.Context, id string) error
	// Nack reports a failed delivery, scheduling
	// redelivery per the message's backoff schedule or
	// moving it to the dead-letter queue on exhaustion
	Nack(ctx context.Context, id string) error
	// ListDLQ lists dead-letter messages
	ListDLQ(ctx context.Context) ([]wire.DlqMessage, error)
	// GetDLQ retrieves one dead-letter message
	GetDLQ(ctx context.Context, id string) (wire.DlqMessage, error)
	// RequeueDLQ moves a dead-letter message back onto the
	// queue
	RequeueDLQ(ctx context.Context, id string) error
	// DeleteDLQ removes a dead-letter message
	DeleteDLQ(ctx context.Context, id string) error
	// PurgeDLQ removes every dead-letter message
	PurgeDLQ(ctx context.Context) error
}
