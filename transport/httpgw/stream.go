package httpgw

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jrife/kite/utils/lvstream"
	"github.com/jrife/kite/wire"
)

// frameStream drives a length-value framed response body.
// A malformed frame is indistinguishable from a broken
// connection to the caller: both end the stream with an
// error, and the caller reconnects.
type frameStream struct {
	body   io.ReadCloser
	frames *lvstream.Reader
	err    error
}

func (stream *frameStream) next(message interface{}) bool {
	frame, err := stream.frames.Next()

	if err == io.EOF {
		return false
	}

	if err != nil {
		stream.err = err

		return false
	}

	if err := json.Unmarshal(frame, message); err != nil {
		stream.err = fmt.Errorf("could not decode frame: %s", err)

		return false
	}

	return true
}

// Error returns the error that ended the stream, if any
func (stream *frameStream) Error() error {
	return stream.err
}

// Close closes the underlying response body
func (stream *frameStream) Close() error {
	return stream.body.Close()
}

type watchStream struct {
	frameStream
	batch wire.WatchBatch
}

func newWatchStream(body io.ReadCloser) *watchStream {
	return &watchStream{frameStream: frameStream{body: body, frames: lvstream.NewReader(body)}}
}

// Next implements WatchStream.Next
func (stream *watchStream) Next() bool {
	stream.batch = wire.WatchBatch{}

	return stream.next(&stream.batch)
}

// Batch implements WatchStream.Batch
func (stream *watchStream) Batch() wire.WatchBatch {
	return stream.batch
}

type queueStream struct {
	frameStream
	message wire.QueueMessage
}

func newQueueStream(body io.ReadCloser) *queueStream {
	return &queueStream{frameStream: frameStream{body: body, frames: lvstream.NewReader(body)}}
}

// Next implements QueueStream.Next
func (stream *queueStream) Next() bool {
	stream.message = wire.QueueMessage{}

	return stream.next(&stream.message)
}

// Message implements QueueStream.Message
func (stream *queueStream) Message() wire.QueueMessage {
	return stream.message
}
