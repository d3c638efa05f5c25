package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// CreateDcaJob inserts a new recurring-buy job.
func (s *Store) CreateDcaJob(j *types.DcaJob) (string, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := DcaJobRow{
		ID:              j.ID,
		UserID:          j.UserID,
		WalletAddress:   j.WalletAddress,
		FromToken:       j.FromToken,
		ToToken:         j.ToToken,
		Amount:          bigString(j.Amount),
		ChainID:         j.ChainID,
		Frequency:       j.Frequency,
		IntervalMs:      j.IntervalMs,
		Strategy:        j.Strategy,
		Status:          string(types.JobActive),
		MaxExecutions:   j.MaxExecutions,
		TotalSpent:      "0",
		NextExecutionAt: j.NextExecutionAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to create DCA job: %w", err)
	}
	return row.ID, nil
}

// DueDcaJobs returns every active job whose next_execution_at <= now
// (spec.md §4.10 poll loop).
func (s *Store) DueDcaJobs(now time.Time) ([]types.DcaJob, error) {
	var rows []DcaJobRow
	err := s.db.Where("status = ? AND next_execution_at <= ?", string(types.JobActive), now).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due DCA jobs: %w", err)
	}
	out := make([]types.DcaJob, len(rows))
	for i, r := range rows {
		out[i] = dcaRowToJob(&r)
	}
	return out, nil
}

// AdvanceDcaJob applies a completed or explicitly-skipped round: increments
// the execution counter, updates the running average price, recomputes
// next_execution_at = now + interval_ms, and completes the job once
// max_executions is reached (spec.md §4.10). spentThisRound may be zero on
// a skip.
func (s *Store) AdvanceDcaJob(id string, now time.Time, spentThisRound *big.Int, priceThisRound float64, skipped bool) error {
	var row DcaJobRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return fmt.Errorf("failed to load DCA job %s: %w", id, err)
	}

	totalSpent, _ := new(big.Int).SetString(row.TotalSpent, 10)
	if totalSpent == nil {
		totalSpent = big.NewInt(0)
	}

	updates := map[string]interface{}{
		"total_executions":  row.TotalExecutions + 1,
		"last_executed_at":  now,
		"next_execution_at": now.Add(time.Duration(row.IntervalMs) * time.Millisecond),
		"updated_at":        now,
	}

	if !skipped && spentThisRound != nil && spentThisRound.Sign() > 0 {
		newTotal := new(big.Int).Add(totalSpent, spentThisRound)
		updates["total_spent"] = newTotal.String()
		if priceThisRound > 0 {
			updates["avg_price"] = weightedAvgPrice(row.AvgPrice, totalSpent, newTotal, priceThisRound)
		}
	}

	if row.MaxExecutions != nil && row.TotalExecutions+1 >= *row.MaxExecutions {
		updates["status"] = string(types.JobCompleted)
	}

	return s.db.Model(&row).Updates(updates).Error
}

func weightedAvgPrice(existing *float64, oldTotal, newTotal *big.Int, newRoundPrice float64) float64 {
	if existing == nil || oldTotal.Sign() == 0 {
		return newRoundPrice
	}
	oldF, _ := new(big.Float).SetInt(oldTotal).Float64()
	newF, _ := new(big.Float).SetInt(newTotal).Float64()
	spent := newF - oldF
	if newF == 0 {
		return *existing
	}
	return (*existing*oldF + newRoundPrice*spent) / newF
}

// SetDcaJobStatus mutates job status (pause, resume, cancel).
func (s *Store) SetDcaJobStatus(id string, status types.JobStatus) error {
	return s.db.Model(&DcaJobRow{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	}).Error
}

func dcaRowToJob(r *DcaJobRow) types.DcaJob {
	amt, _ := new(big.Int).SetString(r.Amount, 10)
	spent, _ := new(big.Int).SetString(r.TotalSpent, 10)
	return types.DcaJob{
		ID:              r.ID,
		UserID:          r.UserID,
		WalletAddress:   r.WalletAddress,
		FromToken:       r.FromToken,
		ToToken:         r.ToToken,
		Amount:          amt,
		ChainID:         r.ChainID,
		Frequency:       r.Frequency,
		IntervalMs:      r.IntervalMs,
		Strategy:        r.Strategy,
		Status:          types.JobStatus(r.Status),
		TotalExecutions: r.TotalExecutions,
		MaxExecutions:   r.MaxExecutions,
		TotalSpent:      spent,
		AvgPrice:        r.AvgPrice,
		LastExecutedAt:  r.LastExecutedAt,
		NextExecutionAt: r.NextExecutionAt,
	}
}
