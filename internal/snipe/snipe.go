// Package snipe is the Snipe Manager (spec.md §4.14): one-shot buys with
// mandatory safety for automated snipes and standing auto-snipe configs
// with an atomic per-execution counter.
package snipe

import (
	"context"
	"fmt"

	"github.com/chainclaw-xyz/chainclaw/internal/risk"
	"github.com/chainclaw-xyz/chainclaw/internal/simulate"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

const maxAutoNetLossPct = 20.0

// liquidityDimension is the RiskReport dimension name consulted for the
// liquidity floor check. Its Score is a 0-100 risk-engine-normalized
// proxy for on-chain liquidity depth, not a raw USD figure, since the
// risk oracle contract (spec.md §6) reports dimensions this way rather
// than a dedicated liquidity-in-USD field.
const liquidityDimension = "liquidity"

// Store is the persistence surface the Manager needs, satisfied by
// internal/store.Store.
type Store interface {
	CreateSnipe(sn *types.Snipe) (string, error)
	SetSnipeOutcome(id string, status types.JobStatus, txHash, failureReason string) error
	GetAutoSnipeConfig(id string) (*types.AutoSnipeConfig, error)
	ClaimAutoSnipeExecution(id string) (bool, error)
}

// Executor is the subset of internal/executor.Executor the Manager needs.
type Executor interface {
	Execute(ctx context.Context, tx types.TransactionRequest, signer types.Signer, meta types.ExecutorMetadata, cb types.ExecutorCallbacks) types.ExecutorResult
}

// Manager wires risk analysis, anti-rug simulation, and the Executor
// together behind the snipe request/config surface.
type Manager struct {
	store         Store
	riskEngine    *risk.Engine
	simulator     *simulate.Simulator
	aggregator    types.QuoteAggregator
	executor      Executor
	liquidityFloor int
}

// New builds a Manager. liquidityFloor is the minimum acceptable
// liquidity-dimension score (0-100) below which execution is blocked.
func New(store Store, riskEngine *risk.Engine, simulator *simulate.Simulator, aggregator types.QuoteAggregator, executor Executor, liquidityFloor int) *Manager {
	return &Manager{store: store, riskEngine: riskEngine, simulator: simulator, aggregator: aggregator, executor: executor, liquidityFloor: liquidityFloor}
}

// Execute runs a single snipe request through mandatory safety checks and
// submits it via the Executor on success.
func (m *Manager) Execute(ctx context.Context, req types.Snipe, signer types.Signer, userID string) types.ExecutorResult {
	id, err := m.store.CreateSnipe(&req)
	if err != nil {
		return types.ExecutorResult{Success: false, Message: fmt.Sprintf("failed to record snipe: %v", err)}
	}

	// Risk analysis runs for every snipe regardless of what the caller
	// requested, and a blocking decision (contract list, honeypot or
	// critical risk) stops manual and auto snipes alike.
	decision, err := m.riskEngine.ShouldBlock(ctx, userID, req.ChainID, req.Token)
	if err != nil {
		_ = m.store.SetSnipeOutcome(id, types.JobFailed, "", err.Error())
		return types.ExecutorResult{TxID: id, Success: false, Message: fmt.Sprintf("risk check failed: %v", err)}
	}
	if decision.Blocked {
		_ = m.store.SetSnipeOutcome(id, types.JobFailed, "", decision.Reason)
		return types.ExecutorResult{TxID: id, Success: false, Message: decision.Reason}
	}

	report, err := m.riskEngine.Analyze(ctx, req.ChainID, req.Token)
	if err == nil && belowLiquidityFloor(report, m.liquidityFloor) {
		reason := "liquidity below configured floor"
		_ = m.store.SetSnipeOutcome(id, types.JobFailed, "", reason)
		return types.ExecutorResult{TxID: id, Success: false, Message: reason}
	}

	quote, err := m.aggregator.Quote(ctx, types.QuoteRequest{ChainID: req.ChainID, ToToken: req.Token, Amount: req.Amount, FromAddress: userID})
	if err != nil || quote == nil || quote.Tx == nil {
		reason := "no swap route available"
		_ = m.store.SetSnipeOutcome(id, types.JobFailed, "", reason)
		return types.ExecutorResult{TxID: id, Success: false, Message: reason}
	}

	warning := ""
	if m.simulator != nil {
		antiRug, err := m.simulator.SimulateSellAfterBuy(ctx, *quote.Tx, req.Token)
		if err == nil {
			if !antiRug.CanSell || antiRug.NetLossPct > maxAutoNetLossPct {
				if req.Mode == types.SnipeAuto {
					reason := fmt.Sprintf("anti-rug check blocked auto-snipe (can_sell=%v, net_loss_pct=%.2f)", antiRug.CanSell, antiRug.NetLossPct)
					_ = m.store.SetSnipeOutcome(id, types.JobFailed, "", reason)
					return types.ExecutorResult{TxID: id, Success: false, Message: reason}
				}
				warning = fmt.Sprintf("anti-rug warning: can_sell=%v, net_loss_pct=%.2f", antiRug.CanSell, antiRug.NetLossPct)
			}
		}
	}

	result := m.executor.Execute(ctx, *quote.Tx, signer, types.ExecutorMetadata{
		UserID:    userID,
		SkillName: "snipe",
	}, types.ExecutorCallbacks{
		OnRiskWarning: func(w string) bool { return true },
	})

	if !result.Success {
		_ = m.store.SetSnipeOutcome(id, types.JobFailed, result.Hash, result.Message)
		return types.ExecutorResult{TxID: id, Success: false, Message: result.Message}
	}
	message := result.Message
	if warning != "" {
		message = warning
	}
	_ = m.store.SetSnipeOutcome(id, types.JobFilled, result.Hash, "")
	return types.ExecutorResult{TxID: id, Hash: result.Hash, Success: true, Message: message}
}

func belowLiquidityFloor(report *types.RiskReport, floor int) bool {
	if floor <= 0 || report == nil {
		return false
	}
	for _, dim := range report.Dimensions {
		if dim.Name == liquidityDimension {
			return dim.Score < floor
		}
	}
	return false // dimension absent: nothing to block on
}

// ExecuteAuto runs one execution of a standing auto-snipe config, claiming
// its execution slot (executed_count against max_executions) atomically before doing any work so
// concurrent ticks cannot double-spend the configured max_executions.
func (m *Manager) ExecuteAuto(ctx context.Context, configID string, signer types.Signer) types.ExecutorResult {
	cfg, err := m.store.GetAutoSnipeConfig(configID)
	if err != nil {
		return types.ExecutorResult{Success: false, Message: fmt.Sprintf("failed to load auto-snipe config %s: %v", configID, err)}
	}
	claimed, err := m.store.ClaimAutoSnipeExecution(configID)
	if err != nil {
		return types.ExecutorResult{Success: false, Message: fmt.Sprintf("failed to claim auto-snipe execution: %v", err)}
	}
	if !claimed {
		return types.ExecutorResult{Success: false, Message: "auto-snipe config exhausted or inactive"}
	}

	return m.Execute(ctx, types.Snipe{
		UserID:  cfg.UserID,
		ChainID: cfg.ChainID,
		Token:   cfg.Token,
		Amount:  cfg.Amount,
		Mode:    types.SnipeAuto,
	}, signer, cfg.UserID)
}
