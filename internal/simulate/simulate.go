// Package simulate is the Simulator (spec.md §4.6): a thin wrapper around
// an external dry-run service with a defined degraded-mode fallback so the
// Executor never blocks on that service being down.
package simulate

import (
	"context"
	"math/big"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

const defaultGasEstimate = 200_000

// Simulator calls an external simulation client and degrades to a local
// estimate when that client is nil or errors.
type Simulator struct {
	client types.SimulationClient
}

// New builds a Simulator. client may be nil, in which case every call uses
// the fallback path.
func New(client types.SimulationClient) *Simulator {
	return &Simulator{client: client}
}

// Simulate dry-runs tx. On external-service failure or absence, it falls
// back to a local gas estimate of tx.GasLimit (or 200 000) and reports
// success with a single outbound native balance change when value > 0.
func (s *Simulator) Simulate(ctx context.Context, tx types.TransactionRequest) (*types.SimulationResult, error) {
	if s.client != nil {
		result, err := s.client.Simulate(ctx, tx)
		if err == nil {
			return result, nil
		}
	}
	return s.fallback(tx), nil
}

func (s *Simulator) fallback(tx types.TransactionRequest) *types.SimulationResult {
	gas := tx.GasLimit
	if gas == 0 {
		gas = defaultGasEstimate
	}
	result := &types.SimulationResult{Success: true, GasEstimate: gas}
	if tx.ValueNative != nil && tx.ValueNative.Sign() > 0 {
		result.BalanceChanges = []types.BalanceChange{
			{Token: "native", Amount: tx.ValueNative, Direction: types.Out},
		}
	}
	return result
}

// SimulateSellAfterBuy bundle-simulates buy -> approve -> sell-all against
// a canonical router to detect honeypots/high sell tax before a snipe. On
// external-service absence, returns can_sell=true with a warning so
// callers may still proceed (spec.md §4.6).
func (s *Simulator) SimulateSellAfterBuy(ctx context.Context, buy types.TransactionRequest, tokenAddress string) (*types.AntiRugResult, error) {
	if s.client != nil {
		result, err := s.client.SimulateSellAfterBuy(ctx, buy, tokenAddress)
		if err == nil {
			return result, nil
		}
	}
	return &types.AntiRugResult{
		CanSell:      true,
		BuyReceived:  big.NewInt(0),
		SellReceived: big.NewInt(0),
		Warning:      "unavailable",
	}, nil
}
