package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

func (s *Store) CreateSnipe(sn *types.Snipe) (string, error) {
	if sn.ID == "" {
		sn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := SnipeRow{
		ID:        sn.ID,
		UserID:    sn.UserID,
		ChainID:   sn.ChainID,
		Token:     sn.Token,
		Amount:    bigString(sn.Amount),
		Mode:      string(sn.Mode),
		Status:    string(types.JobActive),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create snipe: %w", err)
	}
	return row.ID, nil
}

func (s *Store) SetSnipeOutcome(id string, status types.JobStatus, txHash, failureReason string) error {
	return s.db.Model(&SnipeRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         string(status),
		"tx_hash":        txHash,
		"failure_reason": failureReason,
		"updated_at":     time.Now().UTC(),
	}).Error
}

func (s *Store) CreateAutoSnipeConfig(c *types.AutoSnipeConfig) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := AutoSnipeRow{
		ID:            c.ID,
		UserID:        c.UserID,
		Token:         c.Token,
		ChainID:       c.ChainID,
		Amount:        bigString(c.Amount),
		MaxExecutions: c.MaxExecutions,
		Status:        string(types.JobActive),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create auto-snipe config: %w", err)
	}
	return row.ID, nil
}

func (s *Store) GetAutoSnipeConfig(id string) (*types.AutoSnipeConfig, error) {
	var row AutoSnipeRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to load auto-snipe config %s: %w", id, err)
	}
	amt, _ := new(big.Int).SetString(row.Amount, 10)
	return &types.AutoSnipeConfig{
		ID:            row.ID,
		UserID:        row.UserID,
		Token:         row.Token,
		ChainID:       row.ChainID,
		Amount:        amt,
		MaxExecutions: row.MaxExecutions,
		ExecutedCount: row.ExecutedCount,
		Status:        types.JobStatus(row.Status),
	}, nil
}

// ClaimAutoSnipeExecution atomically increments executed_count and, in the
// same statement, flips status to exhausted once the cap is hit — the
// auto-snipe counter law from spec.md §8: executed_count never exceeds
// max_executions even under concurrent triggers.
func (s *Store) ClaimAutoSnipeExecution(id string) (claimed bool, err error) {
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var row AutoSnipeRow
		if lockErr := tx.Where("id = ?", id).First(&row).Error; lockErr != nil {
			return fmt.Errorf("failed to load auto-snipe config %s: %w", id, lockErr)
		}
		if row.Status != string(types.JobActive) {
			claimed = false
			return nil
		}
		res := tx.Model(&AutoSnipeRow{}).
			Where("id = ? AND executed_count < max_executions", id).
			Updates(map[string]interface{}{
				"executed_count": gorm.Expr("executed_count + 1"),
				"status":         gorm.Expr("CASE WHEN executed_count + 1 >= max_executions THEN ? ELSE status END", string(types.JobExhausted)),
				"updated_at":     time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected > 0
		return nil
	})
	return claimed, err
}
