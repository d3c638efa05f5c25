// Package txlistener polls a chain for a transaction's receipt, the way
// the teacher's cmd/main.go wires up a listener to await approve/swap/mint
// confirmations before moving to the next step of a workflow.
package txlistener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrTimeout is returned by WaitForTransaction when the configured timeout
// elapses before a receipt appears.
var ErrTimeout = errors.New("timed out waiting for transaction receipt")

// TxListener polls a chain client for mined receipts on a fixed interval,
// bounding the wait with a timeout (spec.md §4.8 stage 11, await-receipt).
type TxListener struct {
	client       *ethclient.Client
	pollInterval time.Duration
	timeout      time.Duration
}

// Option configures a TxListener at construction.
type Option func(*TxListener)

// WithPollInterval sets the polling cadence (default 3s, matching the
// teacher's cmd/main.go wiring).
func WithPollInterval(d time.Duration) Option {
	return func(l *TxListener) { l.pollInterval = d }
}

// WithTimeout sets the maximum wait before WaitForTransaction gives up
// (default 5m, matching the teacher's cmd/main.go wiring).
func WithTimeout(d time.Duration) Option {
	return func(l *TxListener) { l.timeout = d }
}

// NewTxListener builds a TxListener over client with sensible defaults,
// overridable via Option.
func NewTxListener(client *ethclient.Client, opts ...Option) *TxListener {
	l := &TxListener{client: client, pollInterval: 3 * time.Second, timeout: 5 * time.Minute}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WaitForTransaction blocks until hash is mined, the configured timeout
// elapses (returning ErrTimeout), or the caller's context is cancelled.
func (l *TxListener) WaitForTransaction(hash common.Hash) (*types.Receipt, error) {
	return l.WaitForTransactionContext(context.Background(), hash)
}

// WaitForTransactionContext is WaitForTransaction with an explicit context,
// used by the Executor so a shutdown can cancel an in-flight wait.
func (l *TxListener) WaitForTransactionContext(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	deadline := time.Now().Add(l.timeout)
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to poll receipt for %s: %w", hash.Hex(), err)
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
