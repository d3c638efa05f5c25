package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

func (s *Store) CreateWhaleWatch(w *types.WhaleWatch) (string, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := WhaleWatchRow{
		ID:              w.ID,
		UserID:          w.UserID,
		ChainID:         w.ChainID,
		Address:         w.Address,
		ThresholdUSD:    w.ThresholdUSD,
		AutoCopy:        w.AutoCopy,
		CopyAmount:      bigString(w.CopyAmount),
		CopyMaxDaily:    w.CopyMaxDaily,
		Status:          string(types.JobActive),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create whale watch: %w", err)
	}
	return row.ID, nil
}

func (s *Store) ActiveWhaleWatchesByChain(chainID int64) ([]types.WhaleWatch, error) {
	var rows []WhaleWatchRow
	err := s.db.Where("chain_id = ? AND status = ?", chainID, string(types.JobActive)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list whale watches for chain %d: %w", chainID, err)
	}
	out := make([]types.WhaleWatch, len(rows))
	for i, r := range rows {
		amt, _ := new(big.Int).SetString(r.CopyAmount, 10)
		out[i] = types.WhaleWatch{
			ID:                 r.ID,
			UserID:             r.UserID,
			ChainID:            r.ChainID,
			Address:            r.Address,
			ThresholdUSD:       r.ThresholdUSD,
			AutoCopy:           r.AutoCopy,
			CopyAmount:         amt,
			CopyMaxDaily:       r.CopyMaxDaily,
			CopyCountToday:     r.CopyCountToday,
			CopyCountDate:      r.CopyCountDate,
			LastProcessedBlock: r.LastProcessedBlock,
			Status:             types.JobStatus(r.Status),
		}
	}
	return out, nil
}

// SetLastProcessedBlock advances the per-chain cursor (spec.md §4.12).
func (s *Store) SetLastProcessedBlock(id string, block int64) error {
	return s.db.Model(&WhaleWatchRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_processed_block": block,
		"updated_at":           time.Now().UTC(),
	}).Error
}

// ClaimDailyCopySlot atomically increments a watch's copy-trade counter for
// today only when it is below copy_max_daily, via a single conditional
// UPDATE, so concurrent whale-tx evaluations cannot both claim the last
// slot (spec.md §4.12, Daily copy-trade law in §8).
func (s *Store) ClaimDailyCopySlot(id string, today string) (bool, error) {
	var claimed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var row WhaleWatchRow
		if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load whale watch %s: %w", id, err)
		}
		count := row.CopyCountToday
		if row.CopyCountDate != today {
			count = 0
		}
		if count >= row.CopyMaxDaily {
			claimed = false
			return nil
		}
		res := tx.Model(&WhaleWatchRow{}).
			Where("id = ? AND copy_count_date = ? AND copy_count_today < copy_max_daily", id, today).
			Updates(map[string]interface{}{
				"copy_count_today": gorm.Expr("copy_count_today + 1"),
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// date rolled over or counter stale: reset then claim
			resetErr := tx.Model(&WhaleWatchRow{}).Where("id = ?", id).Updates(map[string]interface{}{
				"copy_count_today": 1,
				"copy_count_date":  today,
				"updated_at":       time.Now().UTC(),
			}).Error
			if resetErr != nil {
				return resetErr
			}
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// RecordFlowSample adds a signed-flow sample for a watched address to its
// bucket row, creating the row on the bucket's first sample
// (spec.md §4.12.1).
func (s *Store) RecordFlowSample(chainID int64, address string, bucketStart time.Time, netFlowUSD float64) error {
	res := s.db.Model(&FlowBucketRow{}).
		Where("chain_id = ? AND address = ? AND bucket_start = ?", chainID, address, bucketStart).
		Update("net_flow_usd", gorm.Expr("net_flow_usd + ?", netFlowUSD))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	row := FlowBucketRow{
		Address:     address,
		ChainID:     chainID,
		BucketStart: bucketStart,
		NetFlowUSD:  netFlowUSD,
		CreatedAt:   time.Now().UTC(),
	}
	return s.db.Create(&row).Error
}

// RecentFlowBuckets returns the last n buckets (most recent last) for an
// address, used by the Flow Tracker's three-bucket analysis.
func (s *Store) RecentFlowBuckets(chainID int64, address string, n int) ([]float64, error) {
	var rows []FlowBucketRow
	err := s.db.Where("chain_id = ? AND address = ?", chainID, address).
		Order("bucket_start DESC").Limit(n).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load flow buckets for %s: %w", address, err)
	}
	out := make([]float64, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].NetFlowUSD // oldest first
	}
	return out, nil
}

// PruneFlowBuckets deletes samples older than the retention window
// (24h per spec.md §4.12.1).
func (s *Store) PruneFlowBuckets(olderThan time.Time) error {
	return s.db.Where("bucket_start < ?", olderThan).Delete(&FlowBucketRow{}).Error
}
