package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

func (s *Store) CreateLimitOrder(o *types.LimitOrder) (string, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := LimitOrderRow{
		ID:            o.ID,
		UserID:        o.UserID,
		WalletAddress: o.WalletAddress,
		ChainID:       o.ChainID,
		FromToken:     o.FromToken,
		ToToken:       o.ToToken,
		Amount:        bigString(o.Amount),
		TriggerPrice:  o.TriggerPrice,
		Direction:     string(o.Direction),
		Status:        string(types.JobActive),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create limit order: %w", err)
	}
	return row.ID, nil
}

func (s *Store) ActiveLimitOrders() ([]types.LimitOrder, error) {
	var rows []LimitOrderRow
	if err := s.db.Where("status = ?", string(types.JobActive)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list active limit orders: %w", err)
	}
	out := make([]types.LimitOrder, len(rows))
	for i, r := range rows {
		amt, _ := new(big.Int).SetString(r.Amount, 10)
		out[i] = types.LimitOrder{
			ID:            r.ID,
			UserID:        r.UserID,
			WalletAddress: r.WalletAddress,
			ChainID:       r.ChainID,
			FromToken:     r.FromToken,
			ToToken:       r.ToToken,
			Amount:        amt,
			TriggerPrice:  r.TriggerPrice,
			Direction:     types.LimitOrderDirection(r.Direction),
			Status:        types.JobStatus(r.Status),
		}
	}
	return out, nil
}

// SetLimitOrderOutcome transitions an order to filled or failed once its
// trigger has fired and the swap has been submitted (spec.md §4.11).
func (s *Store) SetLimitOrderOutcome(id string, status types.JobStatus, txHash string) error {
	return s.db.Model(&LimitOrderRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         string(status),
		"filled_tx_hash": txHash,
		"updated_at":     time.Now().UTC(),
	}).Error
}
