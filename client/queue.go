package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jrife/kite/wire"
)

// QueueHandler processes one queue message. Returning an
// error counts as a failed delivery.
type QueueHandler func(ctx context.Context, message wire.QueueMessage) error

// QueueOptions configures a queue listener
type QueueOptions struct {
	// Mode defaults to ModePush
	Mode TransportMode
	// ManualAck disables the automatic ack on handler
	// success and nack on handler failure. The caller must
	// then call AckMessage or NackMessage for every
	// message id; a message that gets neither stays in
	// flight indefinitely.
	ManualAck bool
	// ReconnectDelay and PollInterval default to the
	// client config
	ReconnectDelay time.Duration
	PollInterval   time.Duration
}

// Listener is a live queue consumer
type Listener struct {
	*loop
}

// ListenQueue starts a background loop that receives one
// message at a time, invokes handler, and acknowledges
// per the outcome. Delivery is at-least-once: a message is
// never acked unless its handler completed, so handler
// failures and transport interruptions lead to redelivery
// per the message's enqueue-time backoff schedule, and to
// the dead-letter queue once that is exhausted. Handler
// errors are the caller's own: the loop never retries the
// handler itself.
func (client *Client) ListenQueue(handler QueueHandler, options QueueOptions) (*Listener, error) {
	if handler == nil {
		return nil, fmt.Errorf("a handler is required")
	}

	mode := options.Mode

	if mode == "" {
		mode = ModePush
	}

	if mode != ModePush && mode != ModePoll {
		return nil, fmt.Errorf("unknown transport mode %q", mode)
	}

	reconnectDelay := options.ReconnectDelay

	if reconnectDelay <= 0 {
		reconnectDelay = client.config.ReconnectDelay
	}

	pollInterval := options.PollInterval

	if pollInterval <= 0 {
		pollInterval = client.config.PollInterval
	}

	listener := &Listener{
		loop: newLoop(client.logger.With(zap.String("loop", "queue")), reconnectDelay),
	}

	id, err := client.register(listener)

	if err != nil {
		return nil, err
	}

	listener.deregister = func() { client.deregister(id) }
	listener.loop.logger = listener.loop.logger.With(zap.String("listener", id))

	var session func() error

	switch mode {
	case ModePush:
		session = func() error {
			return client.queuePushSession(listener, handler, options.ManualAck)
		}
	case ModePoll:
		session = func() error {
			return client.queuePollSession(listener, handler, options.ManualAck, pollInterval)
		}
	}

	go listener.run(session)

	return listener, nil
}

// handleMessage runs the handler and, unless manual
// acknowledgement was requested, acks or nacks from its
// outcome. The ack happens only after the handler
// completed, which is what keeps delivery at-least-once
// across reconnects.
func (client *Client) handleMessage(listener *Listener, handler QueueHandler, manualAck bool, message wire.QueueMessage) {
	logger := listener.logger.With(zap.String("message", message.ID), zap.Int("attempt", message.Attempt))

	err := handler(context.Background(), message)

	if manualAck {
		return
	}

	if err != nil {
		logger.Debug("handler failed, nacking", zap.Error(err))

		if nackErr := client.gateway.Nack(context.Background(), message.ID); nackErr != nil {
			// The store redelivers unacked messages anyway
			logger.Warn("could not nack message", zap.Error(nackErr))
		}

		return
	}

	if ackErr := client.gateway.Ack(context.Background(), message.ID); ackErr != nil {
		logger.Warn("could not ack message", zap.Error(ackErr))
	}
}

// queuePushSession consumes one persistent message stream
func (client *Client) queuePushSession(listener *Listener, handler QueueHandler, manualAck bool) error {
	stream, err := client.gateway.QueueListen(context.Background())

	if err != nil {
		return err
	}

	sessionDone := make(chan struct{})
	defer close(sessionDone)

	go func() {
		select {
		case <-listener.stopCh:
			stream.Close()
		case <-sessionDone:
		}
	}()

	defer stream.Close()

	for stream.Next() {
		if listener.stopped() {
			return nil
		}

		client.handleMessage(listener, handler, manualAck, stream.Message())
	}

	if err := stream.Error(); err != nil {
		return err
	}

	return errStreamEnded
}

// queuePollSession polls for messages on a fixed period,
// draining every ready message per poll
func (client *Client) queuePollSession(listener *Listener, handler QueueHandler, manualAck bool, pollInterval time.Duration) error {
	for {
		for {
			if listener.stopped() {
				return nil
			}

			message, err := client.gateway.QueuePoll(context.Background())

			if err != nil {
				return err
			}

			if message == nil {
				break
			}

			if listener.stopped() {
				return nil
			}

			client.handleMessage(listener, handler, manualAck, *message)
		}

		if !listener.sleep(pollInterval) {
			return nil
		}
	}
}

// AckMessage acknowledges a message by id. It is the
// manual counterpart of the automatic ack.
func (client *Client) AckMessage(ctx context.Context, id string) error {
	if err := client.gateway.Ack(ctx, id); err != nil {
		return wrapError("could not ack message", err)
	}

	return nil
}

// NackMessage reports a failed delivery by id, scheduling
// redelivery or dead-lettering per the message's backoff
// schedule
func (client *Client) NackMessage(ctx context.Context, id string) error {
	if err := client.gateway.Nack(ctx, id); err != nil {
		return wrapError("could not nack message", err)
	}

	return nil
}
