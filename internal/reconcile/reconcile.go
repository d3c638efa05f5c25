// Package reconcile implements the startup receipt-timeout reconciliation
// decided in SPEC_FULL.md's Open Question Decisions: transactions left at
// status=failed/error="timeout" get one more chain query before the
// engines start, since the receipt may have landed after the 120s
// Executor wait gave up.
package reconcile

import (
	"context"
	"fmt"

	"github.com/chainclaw-xyz/chainclaw/internal/store"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// Store is the persistence surface Reconcile needs, satisfied by
// internal/store.Store.
type Store interface {
	ListFailedTimeouts() ([]*types.TransactionRecord, error)
	ReconcileTimeout(txID string, to types.TxStatus, opts store.TransitionOpts) error
}

// Run re-queries the chain for every tx_log row stuck at a timed-out
// failure and upgrades it to confirmed or failed/reverted accordingly. The
// row leaves "failed" only through store.ReconcileTimeout, the single
// exception to the status DAG, which applies only to failed/"timeout" rows.
func Run(ctx context.Context, db Store, chains func(chainID int64) (types.ChainClient, error)) (int, error) {
	stuck, err := db.ListFailedTimeouts()
	if err != nil {
		return 0, fmt.Errorf("failed to list timed-out transactions: %w", err)
	}

	reconciled := 0
	for _, rec := range stuck {
		if rec.Hash == nil {
			continue // never broadcast a hash: nothing to re-query
		}
		client, err := chains(rec.ChainID)
		if err != nil {
			continue // chain no longer configured: leave as-is
		}
		receipt, err := client.WaitForReceipt(ctx, *rec.Hash)
		if err != nil {
			continue // still not mined or unreachable: leave for next startup
		}

		if receipt.Status == "0x1" {
			gasUsed := hexToUint64(receipt.GasUsed)
			blockNumber := decimalToUint64(receipt.BlockNumber)
			if err := db.ReconcileTimeout(rec.TxID, types.StatusConfirmed, store.TransitionOpts{
				GasUsed:     &gasUsed,
				BlockNumber: &blockNumber,
			}); err == nil {
				reconciled++
			}
			continue
		}
		errMsg := "reverted"
		if err := db.ReconcileTimeout(rec.TxID, types.StatusFailed, store.TransitionOpts{Error: &errMsg}); err == nil {
			reconciled++
		}
	}
	return reconciled, nil
}

func hexToUint64(hex string) uint64 {
	var v uint64
	fmt.Sscanf(hex, "0x%x", &v)
	return v
}

func decimalToUint64(dec string) uint64 {
	var v uint64
	fmt.Sscanf(dec, "%d", &v)
	return v
}
