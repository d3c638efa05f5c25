// Package limitorder is the Limit-Order Watcher (spec.md §4.11): polls
// every active order against the current price and submits a swap through
// the Executor once its trigger condition fires.
package limitorder

import (
	"context"
	"fmt"
	"time"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// Store is the persistence surface the Watcher needs, satisfied by
// internal/store.Store.
type Store interface {
	ActiveLimitOrders() ([]types.LimitOrder, error)
	SetLimitOrderOutcome(id string, status types.JobStatus, txHash string) error
}

// Executor is the subset of internal/executor.Executor the Watcher needs.
type Executor interface {
	Execute(ctx context.Context, tx types.TransactionRequest, signer types.Signer, meta types.ExecutorMetadata, cb types.ExecutorCallbacks) types.ExecutorResult
}

// SignerFor resolves the signer to use for an order's wallet.
type SignerFor func(order types.LimitOrder) (types.Signer, error)

// Watcher runs the limit-order poll loop.
type Watcher struct {
	store        Store
	aggregator   types.QuoteAggregator
	prices       types.PriceOracle
	executor     Executor
	signerFor    SignerFor
	pollInterval time.Duration
}

// New builds a Watcher. pollInterval defaults to 15s when zero.
func New(store Store, aggregator types.QuoteAggregator, prices types.PriceOracle, executor Executor, signerFor SignerFor, pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Second
	}
	return &Watcher{store: store, aggregator: aggregator, prices: prices, executor: executor, signerFor: signerFor, pollInterval: pollInterval}
}

// Run polls every pollInterval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce evaluates every active order once, returning per-order errors.
func (w *Watcher) RunOnce(ctx context.Context) map[string]error {
	errs := make(map[string]error)
	orders, err := w.store.ActiveLimitOrders()
	if err != nil {
		errs["*"] = fmt.Errorf("failed to list active limit orders: %w", err)
		return errs
	}
	for _, order := range orders {
		if err := w.evaluate(ctx, order); err != nil {
			errs[order.ID] = err
		}
	}
	return errs
}

func (w *Watcher) evaluate(ctx context.Context, order types.LimitOrder) error {
	currentPrice, err := w.prices.TokenPriceUSD(ctx, order.ChainID, order.ToToken)
	if err != nil {
		return nil // price feed hiccup: retry next poll
	}
	if !triggered(order, currentPrice) {
		return nil
	}

	quote, err := w.aggregator.Quote(ctx, types.QuoteRequest{
		ChainID:     order.ChainID,
		FromToken:   order.FromToken,
		ToToken:     order.ToToken,
		Amount:      order.Amount,
		FromAddress: order.WalletAddress,
	})
	if err != nil || quote == nil || quote.Tx == nil {
		return nil // no route yet: retry next poll
	}

	signer, err := w.signerFor(order)
	if err != nil {
		return fmt.Errorf("failed to resolve signer for order %s: %w", order.ID, err)
	}

	result := w.executor.Execute(ctx, *quote.Tx, signer, types.ExecutorMetadata{
		UserID:    order.UserID,
		SkillName: "limit_order",
	}, types.ExecutorCallbacks{})

	if !result.Success {
		return w.store.SetLimitOrderOutcome(order.ID, types.JobFailed, "")
	}
	return w.store.SetLimitOrderOutcome(order.ID, types.JobFilled, result.Hash)
}

func triggered(order types.LimitOrder, currentPrice float64) bool {
	if order.Direction == types.TriggerAbove {
		return currentPrice >= order.TriggerPrice
	}
	return currentPrice <= order.TriggerPrice
}
