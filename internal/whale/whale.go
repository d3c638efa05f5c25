// Package whale is the Whale Watcher (spec.md §4.12): per-chain block
// polling that alerts on large transfers to or from a watched address and,
// when a watch has auto-copy enabled, mirrors a recognized swap with a
// parallel buy through the Executor.
package whale

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/chainclaw-xyz/chainclaw/internal/delivery"
	"github.com/chainclaw-xyz/chainclaw/internal/risk"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// Store is the persistence surface the Watcher needs, satisfied by
// internal/store.Store.
type Store interface {
	ActiveWhaleWatchesByChain(chainID int64) ([]types.WhaleWatch, error)
	SetLastProcessedBlock(id string, block int64) error
	ClaimDailyCopySlot(id string, today string) (bool, error)
	FlowStore
}

// Executor is the subset of internal/executor.Executor the Watcher needs
// for auto-copy buys.
type Executor interface {
	Execute(ctx context.Context, tx types.TransactionRequest, signer types.Signer, meta types.ExecutorMetadata, cb types.ExecutorCallbacks) types.ExecutorResult
}

// SignerFor resolves the signer to use for a watch's owning user when
// auto-copying a trade.
type SignerFor func(watch types.WhaleWatch) (types.Signer, error)

// Watcher runs the per-chain block-polling loop.
type Watcher struct {
	store        Store
	chains       func(chainID int64) (types.ChainClient, error)
	prices       types.PriceOracle
	aggregator   types.QuoteAggregator
	deliveries   *delivery.Queue
	riskEngine   *risk.Engine
	routers      *RouterRegistry
	flow         *FlowTracker
	executor     Executor
	signerFor    SignerFor
	pollInterval time.Duration
}

// New builds a Watcher. pollInterval defaults to 12s (roughly one EVM
// block) when zero.
func New(
	store Store,
	chains func(int64) (types.ChainClient, error),
	prices types.PriceOracle,
	aggregator types.QuoteAggregator,
	deliveries *delivery.Queue,
	riskEngine *risk.Engine,
	routers *RouterRegistry,
	executor Executor,
	signerFor SignerFor,
	pollInterval time.Duration,
) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 12 * time.Second
	}
	return &Watcher{
		store:        store,
		chains:       chains,
		prices:       prices,
		aggregator:   aggregator,
		deliveries:   deliveries,
		riskEngine:   riskEngine,
		routers:      routers,
		flow:         NewFlowTracker(store),
		executor:     executor,
		signerFor:    signerFor,
		pollInterval: pollInterval,
	}
}

// Run polls every chain with at least one active watch every pollInterval
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, chainIDs []int64) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, chainID := range chainIDs {
				w.RunOnce(ctx, chainID)
			}
		}
	}
}

// RunOnce advances chainID's watches by exactly one latest block.
func (w *Watcher) RunOnce(ctx context.Context, chainID int64) map[string]error {
	errs := make(map[string]error)
	watches, err := w.store.ActiveWhaleWatchesByChain(chainID)
	if err != nil {
		errs["*"] = fmt.Errorf("failed to list whale watches for chain %d: %w", chainID, err)
		return errs
	}
	if len(watches) == 0 {
		return errs
	}

	client, err := w.chains(chainID)
	if err != nil {
		errs["*"] = fmt.Errorf("no chain client for %d: %w", chainID, err)
		return errs
	}
	block, err := client.GetBlockWithTxs(ctx, "latest")
	if err != nil {
		errs["*"] = fmt.Errorf("failed to fetch latest block on chain %d: %w", chainID, err)
		return errs
	}

	nativePriceUSD, err := w.prices.NativePriceUSD(ctx, chainID)
	if err != nil {
		nativePriceUSD = 0
	}

	for _, watch := range watches {
		if block.Number <= watch.LastProcessedBlock {
			continue // already processed, or chain reorged backwards: wait for next tick
		}
		if err := w.evaluateWatch(ctx, watch, block, nativePriceUSD); err != nil {
			errs[watch.ID] = err
		}
		if err := w.store.SetLastProcessedBlock(watch.ID, block.Number); err != nil {
			errs[watch.ID] = fmt.Errorf("failed to advance cursor for watch %s: %w", watch.ID, err)
		}
	}
	return errs
}

func (w *Watcher) evaluateWatch(ctx context.Context, watch types.WhaleWatch, block *types.Block, nativePriceUSD float64) error {
	for _, tx := range block.Txs {
		if !matchesAddress(tx, watch.Address) {
			continue
		}
		valueUSD := weiToUSD(tx.Value, nativePriceUSD)
		if valueUSD < watch.ThresholdUSD {
			continue
		}
		if err := w.alert(ctx, watch, tx, valueUSD); err != nil {
			return err
		}
		if watch.AutoCopy {
			if err := w.tryAutoCopy(ctx, watch, tx); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesAddress(tx types.BlockTx, watched string) bool {
	return equalsFold(tx.From, watched) || equalsFold(tx.To, watched)
}

func equalsFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

func (w *Watcher) alert(ctx context.Context, watch types.WhaleWatch, tx types.BlockTx, valueUSD float64) error {
	direction := "sent"
	if equalsFold(tx.To, watch.Address) {
		direction = "received"
	}
	signal, err := w.flow.Record(watch.ChainID, watch.Address, time.Now().UTC(), signedFlow(tx, watch.Address, valueUSD))
	if err != nil {
		signal = types.FlowNone
	}

	message := fmt.Sprintf("whale alert: %s %s $%.2f in tx %s", watch.Address, direction, valueUSD, tx.Hash)
	if signal != types.FlowNone {
		message = fmt.Sprintf("%s (flow: %s)", message, signal)
	}

	id, err := w.deliveries.Enqueue("whale_alert", watch.UserID, message)
	if err != nil {
		return fmt.Errorf("failed to enqueue whale alert for watch %s: %w", watch.ID, err)
	}
	return w.deliveries.Send(ctx, types.DeliveryQueueEntry{ID: id, Channel: "whale_alert", RecipientID: watch.UserID, Message: message}, noopSend)
}

// noopSend is the sink the Watcher passes to Send: it delivers nothing and
// reports success, so each alert row is marked sent right after it is
// enqueued. This package does no channel fan-out itself.
func noopSend(ctx context.Context, entry types.DeliveryQueueEntry) error { return nil }

func signedFlow(tx types.BlockTx, watched string, valueUSD float64) float64 {
	if equalsFold(tx.To, watched) {
		return valueUSD
	}
	return -valueUSD
}

func (w *Watcher) tryAutoCopy(ctx context.Context, watch types.WhaleWatch, tx types.BlockTx) error {
	if w.routers == nil {
		return nil
	}
	targetToken, ok := w.routers.TargetToken(tx.To, tx.Data)
	if !ok {
		return nil // not a recognized swap: nothing to copy
	}

	today := time.Now().UTC().Format("2006-01-02")
	claimed, err := w.store.ClaimDailyCopySlot(watch.ID, today)
	if err != nil {
		return fmt.Errorf("failed to claim daily copy slot for watch %s: %w", watch.ID, err)
	}
	if !claimed {
		return nil // daily limit reached
	}

	decision, err := w.riskEngine.ShouldBlock(ctx, watch.UserID, watch.ChainID, targetToken)
	if err != nil {
		return fmt.Errorf("risk check failed for auto-copy on watch %s: %w", watch.ID, err)
	}
	if decision.Blocked {
		return nil
	}

	quote, err := w.aggregator.Quote(ctx, types.QuoteRequest{
		ChainID:   watch.ChainID,
		ToToken:   targetToken,
		Amount:    watch.CopyAmount,
	})
	if err != nil || quote == nil || quote.Tx == nil {
		return nil // no route available: skip this copy
	}

	signer, err := w.signerFor(watch)
	if err != nil {
		return fmt.Errorf("failed to resolve signer for watch %s: %w", watch.ID, err)
	}

	w.executor.Execute(ctx, *quote.Tx, signer, types.ExecutorMetadata{
		UserID:    watch.UserID,
		SkillName: "whale_auto_copy",
	}, types.ExecutorCallbacks{})
	return nil
}

func weiToUSD(wei *big.Int, nativePriceUSD float64) float64 {
	if wei == nil || nativePriceUSD == 0 {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out * nativePriceUSD
}
