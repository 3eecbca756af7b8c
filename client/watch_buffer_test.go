package client

import (
	"testing"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/wire"
)

func entry(name string, version int64) wire.Entry {
	value := wire.Int(version)

	return wire.Entry{
		Key:   keys.New(keys.String(name)),
		Value: &value,
	}
}

func names(entries []wire.Entry) []string {
	result := make([]string, len(entries))

	for i, entry := range entries {
		result[i] = string(entry.Key[0].(keys.String))
	}

	return result
}

func expectNames(t *testing.T, entries []wire.Entry, expected ...string) {
	t.Helper()

	actual := names(entries)

	if len(actual) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}

	for i := range expected {
		if actual[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, actual)
		}
	}
}

func TestWatchBufferDropOldest(t *testing.T) {
	buffer := newWatchBuffer(BufferOptions{MaxSize: 2, Policy: DropOldest})

	buffer.add(entry("A", 1))
	buffer.add(entry("B", 1))
	buffer.add(entry("C", 1))

	// A was evicted to make room for C
	flushed := buffer.flush()
	expectNames(t, flushed, "B", "C")

	// Flush clears
	if remaining := buffer.flush(); remaining != nil {
		t.Fatalf("expected an empty buffer after flush, got %v", names(remaining))
	}
}

func TestWatchBufferDropNewest(t *testing.T) {
	buffer := newWatchBuffer(BufferOptions{MaxSize: 2, Policy: DropNewest})

	buffer.add(entry("A", 1))
	buffer.add(entry("B", 1))
	buffer.add(entry("C", 1))

	// C was discarded
	expectNames(t, buffer.flush(), "A", "B")
}

func TestWatchBufferCoalescesInPlace(t *testing.T) {
	buffer := newWatchBuffer(BufferOptions{MaxSize: 2, Policy: DropOldest})

	buffer.add(entry("A", 1))
	buffer.add(entry("B", 1))
	// A is already buffered: last write wins without
	// moving A's emission-order position, and without
	// counting against the bound
	buffer.add(entry("A", 2))

	flushed := buffer.flush()
	expectNames(t, flushed, "A", "B")

	value, _ := flushed[0].Value.IsBigInt()

	if value.Int64() != 2 {
		t.Fatalf("expected the coalesced value 2, got %s", flushed[0].Value)
	}
}

func TestWatchBufferUnboundedNeverDrops(t *testing.T) {
	buffer := newWatchBuffer(BufferOptions{})

	for i := 0; i < 100; i++ {
		buffer.add(entry(string(rune('a'+i%26))+string(rune('0'+i/26)), int64(i)))
	}

	if flushed := buffer.flush(); len(flushed) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(flushed))
	}
}

func TestWatchBufferDefaultPolicyIsDropOldest(t *testing.T) {
	buffer := newWatchBuffer(BufferOptions{MaxSize: 1})

	buffer.add(entry("A", 1))
	buffer.add(entry("B", 1))

	expectNames(t, buffer.flush(), "B")
}
