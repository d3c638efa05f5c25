// Package executor is the core safety pipeline (spec.md §4.8): every
// outbound transaction flows through lock -> simulate -> risk ->
// guardrails -> persist -> confirm -> sign -> fee-estimate -> route ->
// nonce -> broadcast -> await-receipt -> unwind, in that fixed order, with
// any rejection stopping the pipeline and releasing its lock.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/chainclaw-xyz/chainclaw/internal/guardrail"
	"github.com/chainclaw-xyz/chainclaw/internal/lock"
	"github.com/chainclaw-xyz/chainclaw/internal/nonce"
	"github.com/chainclaw-xyz/chainclaw/internal/risk"
	"github.com/chainclaw-xyz/chainclaw/internal/simulate"
	"github.com/chainclaw-xyz/chainclaw/internal/store"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
	"github.com/chainclaw-xyz/chainclaw/pkg/util"
)

const (
	lockTimeout    = 30 * time.Second
	receiptTimeout = 120 * time.Second
	gasBufferPct   = 10
)

// Store is the persistence surface the Executor needs beyond Guardrails'
// own Store interface, satisfied by internal/store.Store.
type Store interface {
	CreateTx(rec *types.TransactionRecord) (string, error)
	Transition(txID string, to types.TxStatus, opts store.TransitionOpts) error
}

// GasOptimizer estimates EIP-1559 fee fields for a chain (spec.md §4.8
// stage 7). Nil means "no optimizer present", which skips the stage.
type GasOptimizer interface {
	EstimateFees(ctx context.Context, chainID int64, strategy types.GasStrategy, baseFee *big.Int) types.Fees
}

// MEVRouter decides the broadcast RPC for a transaction (spec.md §4.8
// stage 8). Nil means "no MEV protection configured", always default RPC.
type MEVRouter interface {
	RouteRPC(chainID int64, hasData bool) (rpcURL string, usesPrivateRelayer bool)
}

// Executor wires together every component the pipeline calls in sequence.
type Executor struct {
	store      Store
	locks      *lock.Manager
	simulator  *simulate.Simulator
	riskEngine *risk.Engine
	guardrails *guardrail.Guardrails
	nonces     *nonce.Manager
	chains     func(chainID int64) (types.ChainClient, error)
	gasOpt     GasOptimizer
	mevRouter  MEVRouter
}

// New builds an Executor. chainClient resolves a chain id to its
// registered types.ChainClient (internal/chainreg.Registry.Get fits this
// signature directly).
func New(
	txStore Store,
	locks *lock.Manager,
	simulator *simulate.Simulator,
	riskEngine *risk.Engine,
	guardrails *guardrail.Guardrails,
	nonces *nonce.Manager,
	chainClient func(chainID int64) (types.ChainClient, error),
	gasOpt GasOptimizer,
	mevRouter MEVRouter,
) *Executor {
	return &Executor{
		store:      txStore,
		locks:      locks,
		simulator:  simulator,
		riskEngine: riskEngine,
		guardrails: guardrails,
		nonces:     nonces,
		chains:     chainClient,
		gasOpt:     gasOpt,
		mevRouter:  mevRouter,
	}
}

func fail(message string) types.ExecutorResult {
	return types.ExecutorResult{Success: false, Message: message}
}

// Execute runs the full pipeline for tx on behalf of signer, reporting
// progress via the optional callbacks in cb. It never panics: every error
// path returns a populated, Success=false ExecutorResult (spec.md §7).
func (e *Executor) Execute(ctx context.Context, tx types.TransactionRequest, signer types.Signer, meta types.ExecutorMetadata, cb types.ExecutorCallbacks) types.ExecutorResult {
	// Stage 0: lock.
	key := lock.Key{UserID: meta.UserID, ChainID: tx.ChainID, Contract: tx.To}
	handle, err := e.locks.Acquire(ctx, key, lockTimeout)
	if err != nil {
		return fail("another operation in progress")
	}
	defer e.locks.Release(handle) // stage 12: unwind

	return e.runLocked(ctx, tx, signer, meta, cb)
}

func (e *Executor) runLocked(ctx context.Context, tx types.TransactionRequest, signer types.Signer, meta types.ExecutorMetadata, cb types.ExecutorCallbacks) types.ExecutorResult {
	// Stage 1: simulate.
	simCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	simResult, err := e.simulator.Simulate(simCtx, tx)
	cancel()
	if err != nil {
		return fail(fmt.Sprintf("simulation failed: %v", err))
	}
	if !simResult.Success {
		return fail(fmt.Sprintf("would fail: %s", simResult.Error))
	}
	if cb.OnSimulated != nil {
		cb.OnSimulated(simResult, formatSimulationPreview(tx, simResult))
	}

	// Stage 2: risk.
	if len(tx.Data) > 0 && tx.To != "" {
		riskCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		decision, err := e.riskEngine.ShouldBlock(riskCtx, meta.UserID, tx.ChainID, tx.To)
		cancel()
		if err != nil {
			return fail(fmt.Sprintf("risk check failed: %v", err))
		}
		if decision.Blocked {
			return fail(fmt.Sprintf("blocked: %s", decision.Reason))
		}
		report, err := e.riskEngine.Analyze(ctx, tx.ChainID, tx.To)
		if err == nil && risk.NeedsWarning(report) && cb.OnRiskWarning != nil {
			if !cb.OnRiskWarning(risk.FormatReport(report)) {
				return fail("cancelled after risk warning")
			}
		}
	}

	// Stage 3: guardrails.
	checks, err := e.guardrails.Check(meta.UserID, tx, meta.NativePriceUSD)
	if err != nil {
		return fail(fmt.Sprintf("guardrail check failed: %v", err))
	}
	if cb.OnGuardrails != nil {
		cb.OnGuardrails(checks)
	}
	if reasons := failedReasons(checks); reasons != "" {
		return fail(reasons)
	}

	// Stage 4: persist request.
	simJSON := marshalSimResult(simResult)
	checksJSON := marshalChecks(checks)
	rec := &types.TransactionRecord{
		UserID:            meta.UserID,
		SkillName:         meta.SkillName,
		IntentDescription: meta.IntentDescription,
		ChainID:           tx.ChainID,
		From:              tx.From,
		To:                tx.To,
		ValueNative:       tx.ValueNative,
		SimulationResult:  simJSON,
		GuardrailChecks:   checksJSON,
	}
	txID, err := e.store.CreateTx(rec)
	if err != nil {
		return fail(fmt.Sprintf("failed to persist transaction: %v", err))
	}
	if err := e.store.Transition(txID, types.StatusSimulated, store.TransitionOpts{}); err != nil {
		return types.ExecutorResult{TxID: txID, Success: false, Message: fmt.Sprintf("failed to transition to simulated: %v", err)}
	}

	// Stage 5: confirmation gate.
	valueUSD := weiToUSD(tx.ValueNative, meta.NativePriceUSD)
	limits, err := e.guardrails.Limits(meta.UserID)
	if err != nil {
		return e.failTx(txID, fmt.Sprintf("failed to load limits: %v", err))
	}
	if guardrail.RequiresConfirmation(valueUSD, limits) && cb.OnConfirmationRequired != nil {
		if !cb.OnConfirmationRequired(formatSimulationPreview(tx, simResult), txID) {
			_ = e.store.Transition(txID, types.StatusRejected, store.TransitionOpts{})
			return types.ExecutorResult{TxID: txID, Success: false, Message: "rejected at confirmation"}
		}
	}
	if err := e.store.Transition(txID, types.StatusApproved, store.TransitionOpts{}); err != nil {
		return types.ExecutorResult{TxID: txID, Success: false, Message: fmt.Sprintf("failed to transition to approved: %v", err)}
	}

	// Stage 6: signer gate.
	if !signer.IsAutomatic() && cb.OnConfirmationRequired != nil {
		if !cb.OnConfirmationRequired(fmt.Sprintf("sign with %s", signer.Type()), txID) {
			_ = e.store.Transition(txID, types.StatusRejected, store.TransitionOpts{})
			return types.ExecutorResult{TxID: txID, Success: false, Message: "rejected at signer gate"}
		}
	}

	client, err := e.chains(tx.ChainID)
	if err != nil {
		return e.failTx(txID, fmt.Sprintf("no chain client for chain %d: %v", tx.ChainID, err))
	}

	// Stage 7: fee estimation.
	var fees types.Fees
	if e.gasOpt != nil {
		baseFee, err := client.EstimateBaseFee(ctx)
		if err == nil {
			fees = e.gasOpt.EstimateFees(ctx, tx.ChainID, tx.GasStrategy, baseFee)
		}
	}

	// Stage 8: MEV routing.
	var rpcOverride string
	if e.mevRouter != nil {
		if url, usesRelayer := e.mevRouter.RouteRPC(tx.ChainID, len(tx.Data) > 0); usesRelayer {
			rpcOverride = url
		}
	}

	// Stage 9: nonce.
	nonceVal, err := e.nonces.Next(ctx, client, tx.ChainID, tx.From)
	if err != nil {
		return e.failTx(txID, fmt.Sprintf("failed to allocate nonce: %v", err))
	}

	// Stage 10: broadcast.
	gas := simResult.GasEstimate + simResult.GasEstimate*gasBufferPct/100
	sendReq := types.SendRequest{
		ChainID:              tx.ChainID,
		To:                   tx.To,
		Value:                tx.ValueNative,
		Data:                 tx.Data,
		Gas:                  gas,
		Nonce:                nonceVal,
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
		RPCURL:               rpcOverride,
	}
	hash, err := signer.Send(ctx, sendReq)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "nonce") {
			_, _ = e.nonces.Resync(ctx, client, tx.ChainID, tx.From)
		} else {
			e.nonces.Release(tx.ChainID, tx.From, nonceVal)
		}
		return e.failTx(txID, fmt.Sprintf("broadcast failed: %v", err))
	}
	e.nonces.Confirm(tx.ChainID, tx.From, nonceVal)
	if err := e.store.Transition(txID, types.StatusBroadcast, store.TransitionOpts{Hash: &hash}); err != nil {
		return types.ExecutorResult{TxID: txID, Hash: hash, Success: false, Message: fmt.Sprintf("failed to record broadcast: %v", err)}
	}
	_ = e.guardrails.RecordTxSent(meta.UserID)
	if cb.OnBroadcast != nil {
		cb.OnBroadcast(hash)
	}

	// Stage 11: await receipt.
	receiptCtx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()
	receipt, err := client.WaitForReceipt(receiptCtx, hash)
	if err != nil {
		errMsg := "timeout"
		if receiptCtx.Err() == nil {
			errMsg = err.Error()
		}
		_ = e.store.Transition(txID, types.StatusFailed, store.TransitionOpts{Error: strPtr(errMsg)})
		if cb.OnFailed != nil {
			cb.OnFailed(errMsg)
		}
		return types.ExecutorResult{TxID: txID, Hash: hash, Success: false, Message: errMsg}
	}

	if receipt.Status != "0x1" {
		_ = e.store.Transition(txID, types.StatusFailed, store.TransitionOpts{Error: strPtr("reverted")})
		if cb.OnFailed != nil {
			cb.OnFailed("reverted")
		}
		return types.ExecutorResult{TxID: txID, Hash: hash, Success: false, Message: "reverted"}
	}

	gasUsed, effGasPrice, blockNumber := decodeReceiptFields(receipt)
	gasCostUSD := 0.0
	if cost, err := util.ExtractGasCost(receipt); err == nil {
		gasCostUSD = weiToUSD(cost, meta.NativePriceUSD)
	}
	if err := e.store.Transition(txID, types.StatusConfirmed, store.TransitionOpts{
		Hash:              &hash,
		GasUsed:           &gasUsed,
		EffectiveGasPrice: effGasPrice,
		GasCostUSD:        &gasCostUSD,
		BlockNumber:       &blockNumber,
	}); err != nil {
		return types.ExecutorResult{TxID: txID, Hash: hash, Success: true, Message: fmt.Sprintf("confirmed but failed to record: %v", err)}
	}
	if cb.OnConfirmed != nil {
		cb.OnConfirmed(hash, blockNumber)
	}

	return types.ExecutorResult{TxID: txID, Hash: hash, Success: true, Message: "confirmed"}
}

func (e *Executor) failTx(txID, message string) types.ExecutorResult {
	_ = e.store.Transition(txID, types.StatusFailed, store.TransitionOpts{Error: &message})
	return types.ExecutorResult{TxID: txID, Success: false, Message: message}
}

func failedReasons(checks []types.Check) string {
	reasons := ""
	for _, c := range checks {
		if !c.Passed {
			if reasons != "" {
				reasons += "; "
			}
			reasons += c.Message
		}
	}
	return reasons
}

func weiToUSD(wei *big.Int, nativePriceUSD float64) float64 {
	if wei == nil || nativePriceUSD == 0 {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	f.Mul(f, big.NewFloat(nativePriceUSD))
	v, _ := f.Float64()
	return v
}

func formatSimulationPreview(tx types.TransactionRequest, result *types.SimulationResult) string {
	return fmt.Sprintf("to=%s value=%s gas_estimate=%d", tx.To, bigOrZero(tx.ValueNative), result.GasEstimate)
}

func bigOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func strPtr(s string) *string { return &s }

func marshalSimResult(r *types.SimulationResult) string {
	b, _ := json.Marshal(r)
	return string(b)
}

func marshalChecks(c []types.Check) string {
	b, _ := json.Marshal(c)
	return string(b)
}

func decodeReceiptFields(receipt *types.Receipt) (gasUsed uint64, effGasPrice *big.Int, blockNumber uint64) {
	if v, ok := new(big.Int).SetString(trimHex(receipt.GasUsed), 16); ok {
		gasUsed = v.Uint64()
	}
	effGasPrice = new(big.Int)
	if v, ok := new(big.Int).SetString(trimHex(receipt.EffectiveGasPrice), 16); ok {
		effGasPrice = v
	}
	if v, ok := new(big.Int).SetString(receipt.BlockNumber, 10); ok {
		blockNumber = v.Uint64()
	} else if v, ok := new(big.Int).SetString(trimHex(receipt.BlockNumber), 16); ok {
		blockNumber = v.Uint64()
	}
	return
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

