package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jrife/kite/wire"
)

// TransportMode selects how a watch subscription or queue
// listener receives from the store
type TransportMode string

const (
	// ModePush holds a persistent stream open and receives
	// batches as the store produces them
	ModePush TransportMode = "push"
	// ModePoll periodically asks the store what changed
	// since a cursor
	ModePoll TransportMode = "poll"
)

// errStreamEnded marks a push stream that the server
// closed cleanly; the loop reconnects just as it would
// after a failure
var errStreamEnded = errors.New("stream ended")

// WatchHandler receives a batch of changed entries
type WatchHandler func(entries []wire.Entry)

// WatchOptions configures a subscription
type WatchOptions struct {
	// Mode defaults to ModePush
	Mode TransportMode
	// Buffer bounds memory between receive and callback.
	// Nil means no buffer: every received batch is
	// delivered immediately.
	Buffer *BufferOptions
	// EmitInitial asks the store for a baseline batch of
	// the targets' current entries, resent after every
	// reconnect. Push mode only.
	EmitInitial bool
	// ReconnectDelay and PollInterval default to the
	// client config
	ReconnectDelay time.Duration
	PollInterval   time.Duration
}

// Subscription is a live watch. Stopping it ends the
// background transport loop; the loop checks the signal
// between network calls and never invokes the handler
// after observing it.
type Subscription struct {
	*loop
	targets []wire.WatchTarget

	// cursor survives poll transport failures so no change
	// between polls is lost
	cursor wire.WatchCursor
}

// Watch subscribes fn to changes under targets, each
// target an exact key or a prefix. One background
// goroutine serves the subscription, with its own
// transport connection, buffer and stop signal.
func (client *Client) Watch(targets []wire.WatchTarget, fn WatchHandler, options WatchOptions) (*Subscription, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}

	if fn == nil {
		return nil, fmt.Errorf("a handler is required")
	}

	mode := options.Mode

	if mode == "" {
		mode = ModePush
	}

	if mode != ModePush && mode != ModePoll {
		return nil, fmt.Errorf("unknown transport mode %q", mode)
	}

	if options.Buffer != nil {
		if policy := options.Buffer.Policy; policy != "" && policy != DropOldest && policy != DropNewest {
			return nil, fmt.Errorf("unknown overflow policy %q", policy)
		}
	}

	reconnectDelay := options.ReconnectDelay

	if reconnectDelay <= 0 {
		reconnectDelay = client.config.ReconnectDelay
	}

	pollInterval := options.PollInterval

	if pollInterval <= 0 {
		pollInterval = client.config.PollInterval
	}

	subscription := &Subscription{
		loop:    newLoop(client.logger.With(zap.String("loop", "watch")), reconnectDelay),
		targets: targets,
	}

	id, err := client.register(subscription)

	if err != nil {
		return nil, err
	}

	subscription.deregister = func() { client.deregister(id) }
	subscription.loop.logger = subscription.loop.logger.With(zap.String("subscription", id))

	var buffer *watchBuffer

	if options.Buffer != nil {
		buffer = newWatchBuffer(*options.Buffer)
	}

	deliver := func(entries []wire.Entry) {
		if buffer == nil {
			if len(entries) > 0 && !subscription.stopped() {
				fn(entries)
			}

			return
		}

		for _, entry := range entries {
			buffer.add(entry)
		}

		// Flush on every receive; there is no timer
		if flushed := buffer.flush(); len(flushed) > 0 && !subscription.stopped() {
			fn(flushed)
		}
	}

	// The strategy is picked once here, not per call
	var session func() error

	switch mode {
	case ModePush:
		session = func() error {
			return client.watchPushSession(subscription, options.EmitInitial, deliver)
		}
	case ModePoll:
		session = func() error {
			return client.watchPollSession(subscription, pollInterval, deliver)
		}
	}

	go subscription.run(session)

	return subscription, nil
}

// watchPushSession holds one stream open and delivers its
// batches until the stream breaks or the subscription
// stops
func (client *Client) watchPushSession(subscription *Subscription, emitInitial bool, deliver func([]wire.Entry)) error {
	stream, err := client.gateway.WatchStream(context.Background(), wire.WatchStreamRequest{
		Targets:     subscription.targets,
		EmitInitial: emitInitial,
	})

	if err != nil {
		return err
	}

	// Unblock Next when the subscription stops
	sessionDone := make(chan struct{})
	defer close(sessionDone)

	go func() {
		select {
		case <-subscription.stopCh:
			stream.Close()
		case <-sessionDone:
		}
	}()

	defer stream.Close()

	for stream.Next() {
		if subscription.stopped() {
			return nil
		}

		deliver(stream.Batch().Entries)
	}

	if err := stream.Error(); err != nil {
		return err
	}

	return errStreamEnded
}

// watchPollSession polls on a fixed period, replacing the
// subscription's cursor with each response's. Detection is
// cursor-based, so nothing that happened between polls is
// missed as long as the store retains enough history.
func (client *Client) watchPollSession(subscription *Subscription, pollInterval time.Duration, deliver func([]wire.Entry)) error {
	for {
		response, err := client.gateway.WatchPoll(context.Background(), wire.WatchPollRequest{
			Targets: subscription.targets,
			Cursor:  subscription.cursor,
		})

		if err != nil {
			return err
		}

		subscription.cursor = response.Cursor

		if subscription.stopped() {
			return nil
		}

		deliver(response.Entries)

		if !subscription.sleep(pollInterval) {
			return nil
		}
	}
}
