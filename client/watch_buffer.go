package client

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/wire"
)

// OverflowPolicy decides what a full watch buffer does
// with a change to a key it does not already hold
type OverflowPolicy string

const (
	// DropOldest evicts the oldest buffered key to make
	// room for the incoming one
	DropOldest OverflowPolicy = "drop-oldest"
	// DropNewest discards the incoming change
	DropNewest OverflowPolicy = "drop-newest"
)

// BufferOptions bounds a subscription's buffer
type BufferOptions struct {
	// MaxSize caps the number of distinct keys buffered.
	// Zero or negative means unbounded.
	MaxSize int
	// Policy defaults to DropOldest
	Policy OverflowPolicy
}

// watchBuffer is a bounded, coalescing buffer of changed
// entries, keyed by encoded key in first-buffered order. A
// change to a key already buffered replaces its entry
// without moving its position. Overflow is a silent,
// documented policy outcome, not an error: signaling it
// per event would destabilize exactly the high-rate
// producers the buffer exists for.
type watchBuffer struct {
	maxSize int
	policy  OverflowPolicy
	entries *linkedhashmap.Map
}

func newWatchBuffer(options BufferOptions) *watchBuffer {
	policy := options.Policy

	if policy == "" {
		policy = DropOldest
	}

	return &watchBuffer{
		maxSize: options.MaxSize,
		policy:  policy,
		entries: linkedhashmap.New(),
	}
}

func (buffer *watchBuffer) add(entry wire.Entry) {
	encoded := keys.EncodeString(entry.Key)

	// Coalesce in place: last write wins, position kept
	if _, found := buffer.entries.Get(encoded); found {
		buffer.entries.Put(encoded, entry)

		return
	}

	if buffer.maxSize > 0 && buffer.entries.Size() >= buffer.maxSize {
		if buffer.policy == DropNewest {
			return
		}

		iterator := buffer.entries.Iterator()

		if iterator.First() {
			buffer.entries.Remove(iterator.Key())
		}
	}

	buffer.entries.Put(encoded, entry)
}

// flush returns the buffered entries in first-buffered
// order and clears the buffer
func (buffer *watchBuffer) flush() []wire.Entry {
	if buffer.entries.Size() == 0 {
		return nil
	}

	entries := make([]wire.Entry, 0, buffer.entries.Size())

	buffer.entries.Each(func(key interface{}, value interface{}) {
		entries = append(entries, value.(wire.Entry))
	})

	buffer.entries.Clear()

	return entries
}
