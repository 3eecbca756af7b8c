package client

import (
	"context"

	"github.com/jrife/kite/wire"
)

// The dead-letter queue operations are thin pass-throughs
// to the store.

// ListDLQ lists the messages that exhausted their
// redeliveries
func (client *Client) ListDLQ(ctx context.Context) ([]wire.DlqMessage, error) {
	messages, err := client.gateway.ListDLQ(ctx)

	if err != nil {
		return nil, wrapError("could not list dead-letter messages", err)
	}

	return messages, nil
}

// GetDLQ retrieves one dead-letter message
func (client *Client) GetDLQ(ctx context.Context, id string) (wire.DlqMessage, error) {
	message, err := client.gateway.GetDLQ(ctx, id)

	if err != nil {
		return wire.DlqMessage{}, wrapError("could not get dead-letter message", err)
	}

	return message, nil
}

// RequeueDLQ moves a dead-letter message back onto the
// queue for fresh delivery
func (client *Client) RequeueDLQ(ctx context.Context, id string) error {
	if err := client.gateway.RequeueDLQ(ctx, id); err != nil {
		return wrapError("could not requeue dead-letter message", err)
	}

	return nil
}

// DeleteDLQ removes one dead-letter message
func (client *Client) DeleteDLQ(ctx context.Context, id string) error {
	if err := client.gateway.DeleteDLQ(ctx, id); err != nil {
		return wrapError("could not delete dead-letter message", err)
	}

	return nil
}

// PurgeDLQ removes every dead-letter message
func (client *Client) PurgeDLQ(ctx context.Context) error {
	if err := client.gateway.PurgeDLQ(ctx); err != nil {
		return wrapError("could not purge dead-letter queue", err)
	}

	return nil
}
