// Package client is a client for a remote versioned
// key-value store with a durable queue and a watch
// facility. The store itself lives behind
// transport.Gateway; everything here exists to give
// callers guarantees a single network call cannot:
// all-or-nothing multi-key commits, snapshot-isolated
// transactions with bounded retry, a change feed that
// survives transport failure, and at-least-once queue
// consumption.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/transport"
	"github.com/jrife/kite/transport/httpgw"
	"github.com/jrife/kite/utils/log"
	"github.com/jrife/kite/wire"
)

type stopper interface {
	Stop()
}

// Client is a handle on the remote store. It owns the
// lifecycle of every watch subscription and queue listener
// created through it: Close stops them all.
type Client struct {
	gateway transport.Gateway
	logger  *zap.Logger
	config  Config

	mu        sync.Mutex
	listeners map[string]stopper
	closed    bool
}

// New creates a client from config
func New(config Config) (*Client, error) {
	config = config.withDefaults()

	if err := config.Validate(); err != nil {
		return nil, wrapError("invalid config", err)
	}

	gateway := config.Gateway

	if gateway == nil {
		var err error

		gateway, err = httpgw.New(httpgw.Config{
			Endpoint:   config.Endpoint,
			HTTPClient: config.HTTPClient,
			Logger:     config.Logger,
		})

		if err != nil {
			return nil, wrapError("could not create gateway", err)
		}
	}

	return &Client{
		gateway:   gateway,
		logger:    config.Logger,
		config:    config,
		listeners: map[string]stopper{},
	}, nil
}

// register adds a background listener to the registry so
// Close can reach it
func (client *Client) register(s stopper) (string, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.closed {
		return "", ErrClosed
	}

	id := uuid.New().String()
	client.listeners[id] = s

	return id, nil
}

func (client *Client) deregister(id string) {
	client.mu.Lock()
	defer client.mu.Unlock()

	delete(client.listeners, id)
}

// Close stops every live subscription and listener and
// marks the client closed. It is idempotent and safe to
// call from any goroutine.
func (client *Client) Close() {
	client.mu.Lock()

	if client.closed {
		client.mu.Unlock()

		return
	}

	client.closed = true
	listeners := make([]stopper, 0, len(client.listeners))

	for _, listener := range client.listeners {
		listeners = append(listeners, listener)
	}

	client.listeners = map[string]stopper{}
	client.mu.Unlock()

	for _, listener := range listeners {
		listener.Stop()
	}
}

// Get retrieves one entry. An absent key is an entry with
// a nil value, not an error.
func (client *Client) Get(ctx context.Context, key keys.Key) (wire.Entry, error) {
	logger := log.WithContext(ctx, client.logger).With(zap.String("operation", "Get"), zap.Stringer("key", key))
	logger.Debug("start")

	entry, err := client.gateway.Get(ctx, key)

	logger.Debug("return", zap.Error(err))

	if err != nil {
		return wire.Entry{}, wrapError("could not get entry", err)
	}

	return entry, nil
}

// BatchGet retrieves entries for all keys in one round
// trip, order-preserving, absent entries included
func (client *Client) BatchGet(ctx context.Context, ks []keys.Key) ([]wire.Entry, error) {
	entries, err := client.gateway.BatchGet(ctx, ks)

	if err != nil {
		return nil, wrapError("could not get entries", err)
	}

	return entries, nil
}

// Set writes one key unconditionally
func (client *Client) Set(ctx context.Context, key keys.Key, value wire.Value, options ...SetOption) (wire.Versionstamp, error) {
	result, err := client.Atomic().Set(key, value, options...).Commit(ctx)

	if err != nil {
		return "", err
	}

	return result.Versionstamp, nil
}

// Delete removes one key unconditionally
func (client *Client) Delete(ctx context.Context, key keys.Key) error {
	_, err := client.Atomic().Delete(key).Commit(ctx)

	return err
}

// List scans the keys covered by prefix in key order. The
// filters are evaluated by the store; filter values may
// include the server-time placeholder.
func (client *Client) List(ctx context.Context, prefix keys.Key, options ...ListOption) ([]wire.Entry, error) {
	request := wire.ListRequest{Prefix: prefix}

	for _, option := range options {
		option(&request)
	}

	response, err := client.gateway.List(ctx, request)

	if err != nil {
		return nil, wrapError("could not list entries", err)
	}

	return response.Entries, nil
}

// ListOption refines a List request
type ListOption func(*wire.ListRequest)

// WithLimit caps the number of entries returned
func WithLimit(limit int) ListOption {
	return func(request *wire.ListRequest) {
		request.Limit = limit
	}
}

// WithFilter adds a server-side filter clause
func WithFilter(path string, op wire.FilterOp, value wire.Value) ListOption {
	return func(request *wire.ListRequest) {
		request.Filters = append(request.Filters, wire.Filter{Path: path, Op: op, Value: value})
	}
}

// Enqueue adds a value to the queue
func (client *Client) Enqueue(ctx context.Context, value wire.Value, options ...EnqueueOption) (string, error) {
	request := wire.EnqueueRequest{Value: value}

	for _, option := range options {
		option(&request)
	}

	response, err := client.gateway.Enqueue(ctx, request)

	if err != nil {
		return "", wrapError("could not enqueue message", err)
	}

	return response.ID, nil
}

// EnqueueOption refines an Enqueue request
type EnqueueOption func(*wire.EnqueueRequest)

// WithDelay defers the first delivery
func WithDelay(delay time.Duration) EnqueueOption {
	return func(request *wire.EnqueueRequest) {
		request.DelayMs = delay.Milliseconds()
	}
}

// WithBackoffSchedule sets the redelivery delays applied
// after failed deliveries. Once the schedule is exhausted
// the message moves to the dead-letter queue.
func WithBackoffSchedule(delays ...time.Duration) EnqueueOption {
	return func(request *wire.EnqueueRequest) {
		request.BackoffScheduleMs = make([]int64, len(delays))

		for i, delay := range delays {
			request.BackoffScheduleMs[i] = delay.Milliseconds()
		}
	}
}

// WithFallbackKeys names keys that receive the message's
// value if it exhausts its redeliveries
func WithFallbackKeys(ks ...keys.Key) EnqueueOption {
	return func(request *wire.EnqueueRequest) {
		request.FallbackKeys = ks
	}
}
