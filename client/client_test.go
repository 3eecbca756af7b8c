package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrife/kite/client"
	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/transport"
	"github.com/jrife/kite/wire"
)

func newTestClient(t *testing.T) (*client.Client, *transport.Fake) {
	t.Helper()

	fake := transport.NewFake()

	c, err := client.New(client.Config{
		Gateway:        fake,
		RetryDelay:     time.Millisecond,
		ReconnectDelay: time.Millisecond,
		PollInterval:   time.Millisecond,
	})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	t.Cleanup(c.Close)

	return c, fake
}

func mustSet(t *testing.T, c *client.Client, key keys.Key, value wire.Value) wire.Versionstamp {
	t.Helper()

	versionstamp, err := c.Set(context.Background(), key, value)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return versionstamp
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the background loop to exit")
	}
}

func TestCloseStopsAllListeners(t *testing.T) {
	c, _ := newTestClient(t)

	subscription, err := c.Watch(
		[]wire.WatchTarget{{Key: keys.New(keys.String("a")), Prefix: true}},
		func(entries []wire.Entry) {},
		client.WatchOptions{Mode: client.ModePoll},
	)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	listener, err := c.ListenQueue(
		func(ctx context.Context, message wire.QueueMessage) error { return nil },
		client.QueueOptions{Mode: client.ModePoll},
	)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	c.Close()

	waitDone(t, subscription.Done())
	waitDone(t, listener.Done())

	// A second close is a no-op
	c.Close()

	if _, err := c.Watch(
		[]wire.WatchTarget{{Key: keys.New(keys.String("a"))}},
		func(entries []wire.Entry) {},
		client.WatchOptions{},
	); err != client.ErrClosed {
		t.Fatalf("expected ErrClosed, got %#v", err)
	}
}

func TestGetAbsentKey(t *testing.T) {
	c, _ := newTestClient(t)

	entry, err := c.Get(context.Background(), keys.New(keys.String("missing")))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if entry.Exists() {
		t.Fatalf("expected an absent entry, got %#v", entry)
	}

	if !entry.Versionstamp.IsZero() {
		t.Fatalf("expected a zero versionstamp, got %#v", entry.Versionstamp)
	}
}

func TestBatchGetPreservesOrderAndAbsents(t *testing.T) {
	c, _ := newTestClient(t)

	present := keys.New(keys.String("present"))
	absent := keys.New(keys.String("absent"))

	mustSet(t, c, present, wire.Int(1))

	entries, err := c.BatchGet(context.Background(), []keys.Key{absent, present, absent})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	if entries[0].Exists() || entries[2].Exists() {
		t.Fatalf("expected absent entries at positions 0 and 2, got %#v", entries)
	}

	if !entries[1].Exists() || !keys.Equal(entries[1].Key, present) {
		t.Fatalf("expected the present entry at position 1, got %#v", entries[1])
	}
}

func TestListByPrefix(t *testing.T) {
	c, _ := newTestClient(t)

	mustSet(t, c, keys.New(keys.String("users"), keys.Int(1)), wire.Int(1))
	mustSet(t, c, keys.New(keys.String("users"), keys.Int(2)), wire.Int(2))
	mustSet(t, c, keys.New(keys.String("orders"), keys.Int(1)), wire.Int(3))

	entries, err := c.List(context.Background(), keys.New(keys.String("users")))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %#v", entries)
	}

	// Key order
	if !keys.Equal(entries[0].Key, keys.New(keys.String("users"), keys.Int(1))) {
		t.Fatalf("expected entries in key order, got %#v", entries)
	}

	limited, err := c.List(context.Background(), keys.New(keys.String("users")), client.WithLimit(1))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if len(limited) != 1 {
		t.Fatalf("expected 1 entry, got %#v", limited)
	}
}
