package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// PublishSignal inserts a new open signal, or updates metadata in place
// when (provider, tx_hash) already exists — the round-trip property from
// spec.md §8: "Re-publishing an already-published agent or provider
// updates metadata and preserves identity."
func (s *Store) PublishSignal(sig *types.Signal) (string, error) {
	now := time.Now().UTC()
	var existing SignalRow
	err := s.db.Where("provider = ? AND tx_hash = ?", sig.Provider, sig.TxHash).First(&existing).Error
	if err == nil {
		existing.Token = sig.Token
		existing.ChainID = sig.ChainID
		existing.Side = string(sig.Side)
		existing.EntryPrice = sig.EntryPrice
		existing.Collateral = sig.Collateral
		existing.Leverage = sig.Leverage
		existing.UpdatedAt = now
		if err := s.db.Save(&existing).Error; err != nil {
			return "", fmt.Errorf("failed to update republished signal: %w", err)
		}
		return existing.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", fmt.Errorf("failed to look up signal: %w", err)
	}

	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	row := SignalRow{
		ID:          sig.ID,
		Provider:    sig.Provider,
		Token:       sig.Token,
		ChainID:     sig.ChainID,
		Side:        string(sig.Side),
		EntryPrice:  sig.EntryPrice,
		TxHash:      sig.TxHash,
		Collateral:  sig.Collateral,
		Leverage:    sig.Leverage,
		Status:      string(types.SignalOpen),
		PublishedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to publish signal: %w", err)
	}
	return row.ID, nil
}

// GetSignal loads a signal by id.
func (s *Store) GetSignal(id string) (*types.Signal, error) {
	var row SignalRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to load signal %s: %w", id, err)
	}
	sig := signalRowToDomain(&row)
	return &sig, nil
}

// CloseSignal closes an open signal with an exit price and PnL. Closing an
// already-closed signal is a no-op returning (false, nil), matching the
// idempotence property in spec.md §8.
func (s *Store) CloseSignal(id string, exitPrice, pnlPercent float64, now time.Time) (bool, error) {
	var changed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row SignalRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load signal %s: %w", id, err)
		}
		if row.Status != string(types.SignalOpen) {
			changed = false
			return nil
		}
		if err := tx.Model(&row).Updates(map[string]interface{}{
			"status":      string(types.SignalClosed),
			"exit_price":  exitPrice,
			"pnl_percent": pnlPercent,
			"closed_at":   now,
			"updated_at":  now,
		}).Error; err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// ExpireStaleSignals transitions every open signal published more than
// maxAge ago to expired (spec.md §4.13: "Signals open for more than 7 days
// transition to expired").
func (s *Store) ExpireStaleSignals(now time.Time, maxAge time.Duration) (int64, error) {
	res := s.db.Model(&SignalRow{}).
		Where("status = ? AND published_at <= ?", string(types.SignalOpen), now.Add(-maxAge)).
		Updates(map[string]interface{}{"status": string(types.SignalExpired), "updated_at": now})
	return res.RowsAffected, res.Error
}

// SignalsSince returns signals of any status whose id sorts after afterID,
// and signals closed after afterCloseTime, for the subscriber-notification poll
// (spec.md §4.13).
func (s *Store) SignalsSince(afterID string, afterCloseTime time.Time) (newlyPublished []types.Signal, newlyClosed []types.Signal, err error) {
	var pubRows []SignalRow
	q := s.db.Order("id")
	if afterID != "" {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Find(&pubRows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list newly published signals: %w", err)
	}
	for _, r := range pubRows {
		newlyPublished = append(newlyPublished, signalRowToDomain(&r))
	}

	var closedRows []SignalRow
	if err := s.db.Where("status = ? AND closed_at > ?", string(types.SignalClosed), afterCloseTime).
		Order("closed_at").Find(&closedRows).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to list newly closed signals: %w", err)
	}
	for _, r := range closedRows {
		newlyClosed = append(newlyClosed, signalRowToDomain(&r))
	}
	return newlyPublished, newlyClosed, nil
}

func signalRowToDomain(r *SignalRow) types.Signal {
	sig := types.Signal{
		ID:          r.ID,
		Provider:    r.Provider,
		Token:       r.Token,
		ChainID:     r.ChainID,
		Side:        types.SignalSide(r.Side),
		EntryPrice:  r.EntryPrice,
		TxHash:      r.TxHash,
		Collateral:  r.Collateral,
		Leverage:    r.Leverage,
		Status:      types.SignalStatus(r.Status),
		PublishedAt: r.PublishedAt,
		ClosedAt:    r.ClosedAt,
	}
	if r.ExitPrice != nil {
		sig.ExitPrice = r.ExitPrice
	}
	if r.PnLPercent != nil {
		sig.PnLPercent = r.PnLPercent
	}
	return sig
}

// RecomputeProviderStats recomputes a provider's running totals after a
// close event (spec.md §4.13).
func (s *Store) RecomputeProviderStats(provider string, pnlPercent float64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row SignalProviderRow
		err := tx.Where("name = ?", provider).First(&row).Error
		now := time.Now().UTC()
		if err == gorm.ErrRecordNotFound {
			row = SignalProviderRow{Name: provider, CreatedAt: now}
		} else if err != nil {
			return fmt.Errorf("failed to load provider stats for %s: %w", provider, err)
		}
		total := row.TotalClosed + 1
		wins := row.Wins
		losses := row.Losses
		if pnlPercent > 0 {
			wins++
		} else {
			losses++
		}
		avg := (row.AvgReturnPercent*float64(row.TotalClosed) + pnlPercent) / float64(total)
		row.TotalClosed = total
		row.Wins = wins
		row.Losses = losses
		row.AvgReturnPercent = avg
		row.UpdatedAt = now
		return tx.Save(&row).Error
	})
}

// Leaderboard lists providers with >= 5 closed signals sorted by average
// return then wins (spec.md §4.13).
func (s *Store) Leaderboard() ([]types.SignalProvider, error) {
	var rows []SignalProviderRow
	err := s.db.Where("total_closed >= ?", 5).
		Order("avg_return_percent DESC, wins DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	out := make([]types.SignalProvider, len(rows))
	for i, r := range rows {
		out[i] = types.SignalProvider{
			Name:             r.Name,
			TotalClosed:      r.TotalClosed,
			Wins:             r.Wins,
			Losses:           r.Losses,
			AvgReturnPercent: r.AvgReturnPercent,
		}
	}
	return out, nil
}

func (s *Store) SubscribersOf(provider string) ([]string, error) {
	var rows []SignalSubscriptionRow
	if err := s.db.Where("provider = ?", provider).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscribers of %s: %w", provider, err)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.UserID
	}
	return out, nil
}

func (s *Store) Subscribe(userID, provider string) error {
	row := SignalSubscriptionRow{UserID: userID, Provider: provider, CreatedAt: time.Now().UTC()}
	return s.db.Create(&row).Error
}
