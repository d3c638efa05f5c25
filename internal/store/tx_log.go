package store

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// CreateTx inserts a new TransactionRecord in status = pending and returns
// its tx_id (spec.md §4.8 stage 4).
func (s *Store) CreateTx(rec *types.TransactionRecord) (string, error) {
	if rec.TxID == "" {
		rec.TxID = uuid.NewString()
	}
	now := time.Now().UTC()
	row := TxLogRow{
		TxID:              rec.TxID,
		UserID:            rec.UserID,
		SkillName:         rec.SkillName,
		IntentDescription: rec.IntentDescription,
		ChainID:           rec.ChainID,
		From:              rec.From,
		To:                rec.To,
		ValueNative:       bigString(rec.ValueNative),
		SimulationJSON:    rec.SimulationResult,
		GuardrailJSON:     rec.GuardrailChecks,
		Status:            string(types.StatusPending),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to persist transaction record: %w", err)
	}
	return row.TxID, nil
}

// TransitionOpts carries the fields a transition may additionally set.
type TransitionOpts struct {
	Hash              *string
	GasUsed           *uint64
	EffectiveGasPrice *big.Int
	GasCostUSD        *float64
	BlockNumber       *uint64
	Error             *string
}

// Transition moves a TransactionRecord to a new status inside one
// short transaction, enforcing the single-step DAG edges of
// types.CanTransition; it does not check which of hash and block_number
// are set for the target status.
func (s *Store) Transition(txID string, to types.TxStatus, opts TransitionOpts) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row TxLogRow
		if err := tx.Where("tx_id = ?", txID).First(&row).Error; err != nil {
			return fmt.Errorf("failed to load transaction %s: %w", txID, err)
		}
		from := types.TxStatus(row.Status)
		if !types.CanTransition(from, to) {
			return fmt.Errorf("invalid status transition for %s: %s -> %s", txID, from, to)
		}

		updates := map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		}
		if opts.Hash != nil {
			updates["hash"] = *opts.Hash
		}
		if opts.GasUsed != nil {
			updates["gas_used"] = *opts.GasUsed
		}
		if opts.EffectiveGasPrice != nil {
			updates["effective_gas_price"] = opts.EffectiveGasPrice.String()
		}
		if opts.GasCostUSD != nil {
			updates["gas_cost_usd"] = *opts.GasCostUSD
		}
		if opts.BlockNumber != nil {
			updates["block_number"] = *opts.BlockNumber
		}
		if opts.Error != nil {
			updates["error"] = *opts.Error
		}
		if err := tx.Model(&TxLogRow{}).Where("tx_id = ?", txID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to transition transaction %s: %w", txID, err)
		}
		return nil
	})
}

// SetSimulationAndGuardrails stamps the audit snapshots captured at the
// simulate and guardrail stages (spec.md §4.8 stage 4).
func (s *Store) SetSimulationAndGuardrails(txID, simulationJSON, guardrailJSON string) error {
	return s.db.Model(&TxLogRow{}).Where("tx_id = ?", txID).Updates(map[string]interface{}{
		"simulation_json": simulationJSON,
		"guardrail_json":  guardrailJSON,
		"updated_at":      time.Now().UTC(),
	}).Error
}

// GetTx loads a TransactionRecord by id.
func (s *Store) GetTx(txID string) (*types.TransactionRecord, error) {
	var row TxLogRow
	if err := s.db.Where("tx_id = ?", txID).First(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", txID, err)
	}
	return rowToRecord(&row), nil
}

// SumValueUSDSince sums, in USD, every TransactionRecord for userID whose
// status is broadcast or confirmed and created_at is within the given
// window — the 24h spend snapshot guardrail rule #2 needs (spec.md §4.7).
// Since tx_log stores native value, not USD, callers pass the native price
// so the store can convert without persisting a derived column.
func (s *Store) SumValueUSDSince(userID string, since time.Time, nativePriceUSD float64) (float64, error) {
	var rows []TxLogRow
	err := s.db.Where("user_id = ? AND status IN ? AND created_at >= ?",
		userID, []string{string(types.StatusBroadcast), string(types.StatusConfirmed)}, since).Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum daily spend for %s: %w", userID, err)
	}
	total := 0.0
	for _, r := range rows {
		v, ok := new(big.Int).SetString(r.ValueNative, 10)
		if !ok {
			continue
		}
		total += weiToUSD(v, nativePriceUSD)
	}
	return total, nil
}

func weiToUSD(wei *big.Int, nativePriceUSD float64) float64 {
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	f.Mul(f, big.NewFloat(nativePriceUSD))
	v, _ := f.Float64()
	return v
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func rowToRecord(row *TxLogRow) *types.TransactionRecord {
	rec := &types.TransactionRecord{
		TxID:              row.TxID,
		UserID:            row.UserID,
		SkillName:         row.SkillName,
		IntentDescription: row.IntentDescription,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
		ChainID:           row.ChainID,
		From:              row.From,
		To:                row.To,
		SimulationResult:  row.SimulationJSON,
		GuardrailChecks:   row.GuardrailJSON,
		Status:            types.TxStatus(row.Status),
	}
	if v, ok := new(big.Int).SetString(row.ValueNative, 10); ok {
		rec.ValueNative = v
	}
	if row.Hash != "" {
		h := row.Hash
		rec.Hash = &h
	}
	if row.GasUsed != 0 {
		g := row.GasUsed
		rec.GasUsed = &g
	}
	if row.EffectiveGasPrice != "" {
		if v, ok := new(big.Int).SetString(row.EffectiveGasPrice, 10); ok {
			rec.EffectiveGasPrice = v
		}
	}
	if row.GasCostUSD != 0 {
		v := row.GasCostUSD
		rec.GasCostUSD = &v
	}
	if row.BlockNumber != 0 {
		b := row.BlockNumber
		rec.BlockNumber = &b
	}
	if row.Error != "" {
		e := row.Error
		rec.Error = &e
	}
	return rec
}

// ReconcileTimeout upgrades a row left at status=failed/error="timeout" to
// its true on-chain outcome once the startup reconciler re-queries the
// receipt. This is the one sanctioned exception to the DAG in
// types.CanTransition (failed is otherwise terminal): a timeout is a
// statement about the Executor's wait, not the chain's outcome, so the
// reconciler is allowed to correct it once. Any row not currently in that
// exact state is left untouched.
func (s *Store) ReconcileTimeout(txID string, to types.TxStatus, opts TransitionOpts) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var row TxLogRow
		if err := tx.Where("tx_id = ? AND status = ? AND error = ?", txID, string(types.StatusFailed), "timeout").First(&row).Error; err != nil {
			return fmt.Errorf("tx %s is not a pending timeout reconciliation: %w", txID, err)
		}
		updates := map[string]interface{}{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		}
		if opts.GasUsed != nil {
			updates["gas_used"] = *opts.GasUsed
		}
		if opts.EffectiveGasPrice != nil {
			updates["effective_gas_price"] = opts.EffectiveGasPrice.String()
		}
		if opts.GasCostUSD != nil {
			updates["gas_cost_usd"] = *opts.GasCostUSD
		}
		if opts.BlockNumber != nil {
			updates["block_number"] = *opts.BlockNumber
		}
		if opts.Error != nil {
			updates["error"] = *opts.Error
		}
		return tx.Model(&TxLogRow{}).Where("tx_id = ?", txID).Updates(updates).Error
	})
}

// ListFailedTimeouts returns every TransactionRecord left in status=failed
// with error="timeout", for the startup reconciler (spec.md §9 open question).
func (s *Store) ListFailedTimeouts() ([]*types.TransactionRecord, error) {
	var rows []TxLogRow
	if err := s.db.Where("status = ? AND error = ?", string(types.StatusFailed), "timeout").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list timed-out transactions: %w", err)
	}
	recs := make([]*types.TransactionRecord, len(rows))
	for i := range rows {
		recs[i] = rowToRecord(&rows[i])
	}
	return recs, nil
}
