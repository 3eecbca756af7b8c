// Package httpgw implements transport.Gateway over
// HTTP/JSON. Point operations are one POST each. The watch
// and queue feeds are long-lived responses whose bodies
// carry length-value framed JSON messages.
package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jrife/kite/kv/keys"
	"github.com/jrife/kite/transport"
	"github.com/jrife/kite/wire"
)

var _ transport.Gateway = (*Gateway)(nil)

const defaultRequestTimeout = 30 * time.Second

// Config configures an HTTP gateway
type Config struct {
	// Endpoint is the base URL of the store, e.g.
	// http://localhost:7420
	Endpoint string
	// HTTPClient overrides the client used for point
	// operations. Streams always use a client without a
	// global timeout, since they are meant to stay open.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Gateway is the HTTP/JSON implementation of
// transport.Gateway
type Gateway struct {
	endpoint     *url.URL
	client       *http.Client
	streamClient *http.Client
	logger       *zap.Logger
}

// New creates a gateway talking to the store at
// config.Endpoint
func New(config Config) (*Gateway, error) {
	endpoint, err := url.Parse(config.Endpoint)

	if err != nil {
		return nil, fmt.Errorf("could not parse endpoint %q: %s", config.Endpoint, err)
	}

	client := config.HTTPClient

	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	logger := config.Logger

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gateway{
		endpoint:     endpoint,
		client:       client,
		streamClient: &http.Client{},
		logger:       logger,
	}, nil
}

// url joins path onto the endpoint, keeping any base path
// the endpoint carries
func (gateway *Gateway) url(path string) string {
	return gateway.endpoint.JoinPath(path).String()
}

func (gateway *Gateway) post(ctx context.Context, path string, request interface{}, response interface{}) error {
	body, err := json.Marshal(request)

	if err != nil {
		return fmt.Errorf("could not marshal request: %s", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway.url(path), bytes.NewReader(body))

	if err != nil {
		return fmt.Errorf("could not build request: %s", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := gateway.client.Do(httpRequest)

	if err != nil {
		return fmt.Errorf("could not call %s: %s", path, err)
	}

	defer httpResponse.Body.Close()

	if httpResponse.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 512))

		return fmt.Errorf("%s returned status %d: %s", path, httpResponse.StatusCode, bytes.TrimSpace(detail))
	}

	if response == nil {
		return nil
	}

	if err := json.NewDecoder(httpResponse.Body).Decode(response); err != nil {
		return fmt.Errorf("could not decode %s response: %s", path, err)
	}

	return nil
}

func (gateway *Gateway) openStream(ctx context.Context, path string, request interface{}) (io.ReadCloser, error) {
	body, err := json.Marshal(request)

	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %s", err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, gateway.url(path), bytes.NewReader(body))

	if err != nil {
		return nil, fmt.Errorf("could not build request: %s", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := gateway.streamClient.Do(httpRequest)

	if err != nil {
		return nil, fmt.Errorf("could not open %s stream: %s", path, err)
	}

	if httpResponse.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 512))
		httpResponse.Body.Close()

		return nil, fmt.Errorf("%s returned status %d: %s", path, httpResponse.StatusCode, bytes.TrimSpace(detail))
	}

	return httpResponse.Body, nil
}

type getRequest struct {
	Key keys.Key `json:"key"`
}

type batchGetRequest struct {
	Keys []keys.Key `json:"keys"`
}

type batchGetResponse struct {
	Entries []wire.Entry `json:"entries"`
}

type queuePollResponse struct {
	Message *wire.QueueMessage `json:"message,omitempty"`
}

type messageRequest struct {
	ID string `json:"id"`
}

type listDLQResponse struct {
	Messages []wire.DlqMessage `json:"messages,omitempty"`
}

// Get implements Gateway.Get
func (gateway *Gateway) Get(ctx context.Context, key keys.Key) (wire.Entry, error) {
	var entry wire.Entry

	if err := gateway.post(ctx, "/v1/get", getRequest{Key: key}, &entry); err != nil {
		return wire.Entry{}, err
	}

	return entry, nil
}

// BatchGet implements Gateway.BatchGet
func (gateway *Gateway) BatchGet(ctx context.Context, ks []keys.Key) ([]wire.Entry, error) {
	var response batchGetResponse

	if err := gateway.post(ctx, "/v1/batchGet", batchGetRequest{Keys: ks}, &response); err != nil {
		return nil, err
	}

	if len(response.Entries) != len(ks) {
		return nil, fmt.Errorf("/v1/batchGet returned %d entries for %d keys", len(response.Entries), len(ks))
	}

	return response.Entries, nil
}

// Commit implements Gateway.Commit
func (gateway *Gateway) Commit(ctx context.Context, request wire.CommitRequest) (wire.CommitResponse, error) {
	var response wire.CommitResponse

	if err := gateway.post(ctx, "/v1/commit", request, &response); err != nil {
		return wire.CommitResponse{}, err
	}

	return response, nil
}

// List implements Gateway.List
func (gateway *Gateway) List(ctx context.Context, request wire.ListRequest) (wire.ListResponse, error) {
	var response wire.ListResponse

	if err := gateway.post(ctx, "/v1/list", request, &response); err != nil {
		return wire.ListResponse{}, err
	}

	return response, nil
}

// WatchPoll implements Gateway.WatchPoll
func (gateway *Gateway) WatchPoll(ctx context.Context, request wire.WatchPollRequest) (wire.WatchPollResponse, error) {
	var response wire.WatchPollResponse

	if err := gateway.post(ctx, "/v1/watch/poll", request, &response); err != nil {
		return wire.WatchPollResponse{}, err
	}

	return response, nil
}

// WatchStream implements Gateway.WatchStream
func (gateway *Gateway) WatchStream(ctx context.Context, request wire.WatchStreamRequest) (transport.WatchStream, error) {
	body, err := gateway.openStream(ctx, "/v1/watch/stream", request)

	if err != nil {
		return nil, err
	}

	return newWatchStream(body), nil
}

// Enqueue implements Gateway.Enqueue
func (gateway *Gateway) Enqueue(ctx context.Context, request wire.EnqueueRequest) (wire.EnqueueResponse, error) {
	var response wire.EnqueueResponse

	if err := gateway.post(ctx, "/v1/queue/enqueue", request, &response); err != nil {
		return wire.EnqueueResponse{}, err
	}

	return response, nil
}

// QueuePoll implements Gateway.QueuePoll
func (gateway *Gateway) QueuePoll(ctx context.Context) (*wire.QueueMessage, error) {
	var response queuePollResponse

	if err := gateway.post(ctx, "/v1/queue/poll", struct{}{}, &response); err != nil {
		return nil, err
	}

	return response.Message, nil
}

// QueueListen implements Gateway.QueueListen
func (gateway *Gateway) QueueListen(ctx context.Context) (transport.QueueStream, error) {
	body, err := gateway.openStream(ctx, "/v1/queue/listen", struct{}{})

	if err != nil {
		return nil, err
	}

	return newQueueStream(body), nil
}

// Ack implements Gateway.Ack
func (gateway *Gateway) Ack(ctx context.Context, id string) error {
	return gateway.post(ctx, "/v1/queue/ack", messageRequest{ID: id}, nil)
}

// Nack implements Gateway.Nack
func (gateway *Gateway) Nack(ctx context.Context, id string) error {
	return gateway.post(ctx, "/v1/queue/nack", messageRequest{ID: id}, nil)
}

// ListDLQ implements Gateway.ListDLQ
func (gateway *Gateway) ListDLQ(ctx context.Context) ([]wire.DlqMessage, error) {
	var response listDLQResponse

	if err := gateway.post(ctx, "/v1/dlq/list", struct{}{}, &response); err != nil {
		return nil, err
	}

	return response.Messages, nil
}

// GetDLQ implements Gateway.GetDLQ
func (gateway *Gateway) GetDLQ(ctx context.Context, id string) (wire.DlqMessage, error) {
	var message wire.DlqMessage

	if err := gateway.post(ctx, "/v1/dlq/get", messageRequest{ID: id}, &message); err != nil {
		return wire.DlqMessage{}, err
	}

	return message, nil
}

// RequeueDLQ implements Gateway.RequeueDLQ
func (gateway *Gateway) RequeueDLQ(ctx context.Context, id string) error {
	return gateway.post(ctx, "/v1/dlq/requeue", messageRequest{ID: id}, nil)
}

// DeleteDLQ implements Gateway.DeleteDLQ
func (gateway *Gateway) DeleteDLQ(ctx context.Context, id string) error {
	return gateway.post(ctx, "/v1/dlq/delete", messageRequest{ID: id}, nil)
}

// PurgeDLQ implements Gateway.PurgeDLQ
func (gateway *Gateway) PurgeDLQ(ctx context.Context) error {
	return gateway.post(ctx, "/v1/dlq/purge", struct{}{}, nil)
}
