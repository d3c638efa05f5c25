package store

import (
	"fmt"
	"time"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// EnqueueDelivery creates a pending delivery row and returns its id
// (spec.md §4.9).
func (s *Store) EnqueueDelivery(channel, recipientID, message string) (uint, error) {
	now := time.Now().UTC()
	row := DeliveryQueueRow{
		Channel:     channel,
		RecipientID: recipientID,
		Message:     message,
		Status:      "pending",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to enqueue delivery: %w", err)
	}
	return row.ID, nil
}

// AckDelivery marks a row sent.
func (s *Store) AckDelivery(id uint) error {
	return s.db.Model(&DeliveryQueueRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     "sent",
		"updated_at": time.Now().UTC(),
	}).Error
}

// FailDelivery records an error and bumps attempts; once attempts exceeds
// maxAttempts the row moves to status=failed, otherwise it stays pending
// for the next recovery pass (spec.md §4.9).
func (s *Store) FailDelivery(id uint, errMsg string, maxAttempts int) error {
	var row DeliveryQueueRow
	if err := s.db.First(&row, id).Error; err != nil {
		return fmt.Errorf("failed to load delivery %d: %w", id, err)
	}
	attempts := row.Attempts + 1
	status := "pending"
	if attempts > maxAttempts {
		status = "failed"
	}
	return s.db.Model(&row).Updates(map[string]interface{}{
		"attempts":   attempts,
		"last_error": errMsg,
		"status":     status,
		"updated_at": time.Now().UTC(),
	}).Error
}

// ListPendingDeliveries returns every row in status=pending, for
// recover_pending on startup (spec.md §4.9).
func (s *Store) ListPendingDeliveries() ([]types.DeliveryQueueEntry, error) {
	var rows []DeliveryQueueRow
	if err := s.db.Where("status = ?", "pending").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries: %w", err)
	}
	out := make([]types.DeliveryQueueEntry, len(rows))
	for i, r := range rows {
		out[i] = types.DeliveryQueueEntry{
			ID:          r.ID,
			Channel:     r.Channel,
			RecipientID: r.RecipientID,
			Message:     r.Message,
			Status:      r.Status,
			Attempts:    r.Attempts,
			LastError:   r.LastError,
			CreatedAt:   r.CreatedAt,
			UpdatedAt:   r.UpdatedAt,
		}
	}
	return out, nil
}
