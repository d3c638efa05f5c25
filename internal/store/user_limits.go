package store

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// GetUserLimits returns the configured limits for a user, or
// types.DefaultUserLimits when no row exists (spec.md §3).
func (s *Store) GetUserLimits(userID string) (types.UserLimits, error) {
	var row UserLimitsRow
	err := s.db.Where("user_id = ?", userID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return types.DefaultUserLimits(userID), nil
	}
	if err != nil {
		return types.UserLimits{}, fmt.Errorf("failed to load user limits for %s: %w", userID, err)
	}
	return types.UserLimits{
		UserID:          row.UserID,
		MaxPerTxUSD:     row.MaxPerTxUSD,
		MaxPerDayUSD:    row.MaxPerDayUSD,
		CooldownSeconds: row.CooldownSeconds,
		SlippageBps:     row.SlippageBps,
	}, nil
}

// UpsertUserLimits creates or replaces a user's limits.
func (s *Store) UpsertUserLimits(l types.UserLimits) error {
	now := time.Now().UTC()
	var existing UserLimitsRow
	err := s.db.Where("user_id = ?", l.UserID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		row := UserLimitsRow{
			UserID:          l.UserID,
			MaxPerTxUSD:     l.MaxPerTxUSD,
			MaxPerDayUSD:    l.MaxPerDayUSD,
			CooldownSeconds: l.CooldownSeconds,
			SlippageBps:     l.SlippageBps,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return s.db.Create(&row).Error
	}
	if err != nil {
		return fmt.Errorf("failed to load user limits for %s: %w", l.UserID, err)
	}
	return s.db.Model(&existing).Updates(map[string]interface{}{
		"max_per_tx_usd":   l.MaxPerTxUSD,
		"max_per_day_usd":  l.MaxPerDayUSD,
		"cooldown_seconds": l.CooldownSeconds,
		"slippage_bps":     l.SlippageBps,
		"updated_at":       now,
	}).Error
}

// LastSentAt returns the last recorded send time for a user, or the zero
// time if the user has never sent (cooldown guardrail rule #3).
func (s *Store) LastSentAt(userID string) (time.Time, error) {
	var row UserLimitsRow
	err := s.db.Where("user_id = ?", userID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load last-send time for %s: %w", userID, err)
	}
	if row.LastSentAt == nil {
		return time.Time{}, nil
	}
	return *row.LastSentAt, nil
}

// RecordTxSent stamps the last-send time for a user immediately after
// broadcast (spec.md §4.7 record_tx_sent), creating the row with defaults
// if none existed yet.
func (s *Store) RecordTxSent(userID string) error {
	now := time.Now().UTC()
	var row UserLimitsRow
	err := s.db.Where("user_id = ?", userID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		d := types.DefaultUserLimits(userID)
		row = UserLimitsRow{
			UserID:          d.UserID,
			MaxPerTxUSD:     d.MaxPerTxUSD,
			MaxPerDayUSD:    d.MaxPerDayUSD,
			CooldownSeconds: d.CooldownSeconds,
			SlippageBps:     d.SlippageBps,
			LastSentAt:      &now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return s.db.Create(&row).Error
	}
	if err != nil {
		return fmt.Errorf("failed to load user limits for %s: %w", userID, err)
	}
	return s.db.Model(&row).Updates(map[string]interface{}{
		"last_sent_at": now,
		"updated_at":   now,
	}).Error
}
