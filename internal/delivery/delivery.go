// Package delivery is the Delivery Queue business layer (spec.md §4.9): a
// durable, at-least-once notification outbox with a startup recovery pass.
package delivery

import (
	"context"
	"fmt"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// Store is the persistence surface Delivery needs, satisfied by
// internal/store.Store.
type Store interface {
	EnqueueDelivery(channel, recipientID, message string) (uint, error)
	AckDelivery(id uint) error
	FailDelivery(id uint, errMsg string, maxAttempts int) error
	ListPendingDeliveries() ([]types.DeliveryQueueEntry, error)
}

// Sender delivers one message over a channel (Telegram, webhook, email —
// left to the caller), returning an error on failure.
type Sender func(ctx context.Context, entry types.DeliveryQueueEntry) error

// Queue wraps Store with the send-and-ack/fail bookkeeping loop.
type Queue struct {
	store       Store
	maxAttempts int
}

// New builds a Queue. maxAttempts bounds retries before a row is marked
// permanently failed (default 5).
func New(store Store, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{store: store, maxAttempts: maxAttempts}
}

// Enqueue records a pending notification and returns its id.
func (q *Queue) Enqueue(channel, recipientID, message string) (uint, error) {
	id, err := q.store.EnqueueDelivery(channel, recipientID, message)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue delivery to %s/%s: %w", channel, recipientID, err)
	}
	return id, nil
}

// Send delivers id's entry via send, acking on success and recording
// failure (with retry bookkeeping) otherwise.
func (q *Queue) Send(ctx context.Context, entry types.DeliveryQueueEntry, send Sender) error {
	if err := send(ctx, entry); err != nil {
		if failErr := q.store.FailDelivery(entry.ID, err.Error(), q.maxAttempts); failErr != nil {
			return fmt.Errorf("delivery %d failed (%v) and failure could not be recorded: %w", entry.ID, err, failErr)
		}
		return nil
	}
	return q.store.AckDelivery(entry.ID)
}

// RecoverPending scans every still-pending row at startup and attempts
// delivery through send, acking or failing each (spec.md §4.9).
func (q *Queue) RecoverPending(ctx context.Context, send Sender) error {
	pending, err := q.store.ListPendingDeliveries()
	if err != nil {
		return fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	for _, entry := range pending {
		if err := q.Send(ctx, entry, send); err != nil {
			return err
		}
	}
	return nil
}
