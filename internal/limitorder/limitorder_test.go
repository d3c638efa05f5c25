package limitorder

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type memStore struct {
	orders   []types.LimitOrder
	outcomes map[string]types.JobStatus
	hashes   map[string]string
}

func newMemStore(orders []types.LimitOrder) *memStore {
	return &memStore{orders: orders, outcomes: make(map[string]types.JobStatus), hashes: make(map[string]string)}
}

func (m *memStore) ActiveLimitOrders() ([]types.LimitOrder, error) { return m.orders, nil }
func (m *memStore) SetLimitOrderOutcome(id string, status types.JobStatus, txHash string) error {
	m.outcomes[id] = status
	m.hashes[id] = txHash
	return nil
}

type stubAggregator struct{ quote *types.Quote }

func (a *stubAggregator) Quote(ctx context.Context, req types.QuoteRequest) (*types.Quote, error) {
	return a.quote, nil
}

type stubPrices struct{ price float64 }

func (p *stubPrices) NativePriceUSD(ctx context.Context, chainID int64) (float64, error) { return 0, nil }
func (p *stubPrices) TokenPriceUSD(ctx context.Context, chainID int64, token string) (float64, error) {
	return p.price, nil
}

type stubExecutor struct{ result types.ExecutorResult }

func (e *stubExecutor) Execute(ctx context.Context, tx types.TransactionRequest, signer types.Signer, meta types.ExecutorMetadata, cb types.ExecutorCallbacks) types.ExecutorResult {
	return e.result
}

type stubSigner struct{}

func (stubSigner) Type() string                                                   { return "hot" }
func (stubSigner) IsAutomatic() bool                                              { return true }
func (stubSigner) Send(ctx context.Context, req types.SendRequest) (string, error) { return "0xhash", nil }

func signerFor(o types.LimitOrder) (types.Signer, error) { return stubSigner{}, nil }

func TestTriggerAboveFiresWhenPriceCrosses(t *testing.T) {
	order := types.LimitOrder{ID: "o1", Direction: types.TriggerAbove, TriggerPrice: 100, Amount: big.NewInt(1)}
	store := newMemStore([]types.LimitOrder{order})
	quoteTx := &types.TransactionRequest{ChainID: 1, To: "0xrouter"}
	w := New(store, &stubAggregator{quote: &types.Quote{Tx: quoteTx}}, &stubPrices{price: 105}, &stubExecutor{result: types.ExecutorResult{Success: true, Hash: "0xhash"}}, signerFor, time.Minute)

	errs := w.RunOnce(context.Background())
	require.Empty(t, errs)
	assert.Equal(t, types.JobFilled, store.outcomes["o1"])
	assert.Equal(t, "0xhash", store.hashes["o1"])
}

func TestTriggerAboveDoesNotFireBelowThreshold(t *testing.T) {
	order := types.LimitOrder{ID: "o1", Direction: types.TriggerAbove, TriggerPrice: 100, Amount: big.NewInt(1)}
	store := newMemStore([]types.LimitOrder{order})
	w := New(store, &stubAggregator{}, &stubPrices{price: 95}, &stubExecutor{}, signerFor, time.Minute)

	errs := w.RunOnce(context.Background())
	require.Empty(t, errs)
	_, fired := store.outcomes["o1"]
	assert.False(t, fired)
}

func TestTriggerBelowFiresWhenPriceDrops(t *testing.T) {
	order := types.LimitOrder{ID: "o1", Direction: types.TriggerBelow, TriggerPrice: 100, Amount: big.NewInt(1)}
	store := newMemStore([]types.LimitOrder{order})
	quoteTx := &types.TransactionRequest{ChainID: 1, To: "0xrouter"}
	w := New(store, &stubAggregator{quote: &types.Quote{Tx: quoteTx}}, &stubPrices{price: 90}, &stubExecutor{result: types.ExecutorResult{Success: true}}, signerFor, time.Minute)

	errs := w.RunOnce(context.Background())
	require.Empty(t, errs)
	assert.Equal(t, types.JobFilled, store.outcomes["o1"])
}

func TestFailedExecutionMarksOrderFailed(t *testing.T) {
	order := types.LimitOrder{ID: "o1", Direction: types.TriggerAbove, TriggerPrice: 100, Amount: big.NewInt(1)}
	store := newMemStore([]types.LimitOrder{order})
	quoteTx := &types.TransactionRequest{ChainID: 1, To: "0xrouter"}
	w := New(store, &stubAggregator{quote: &types.Quote{Tx: quoteTx}}, &stubPrices{price: 105}, &stubExecutor{result: types.ExecutorResult{Success: false}}, signerFor, time.Minute)

	errs := w.RunOnce(context.Background())
	require.Empty(t, errs)
	assert.Equal(t, types.JobFailed, store.outcomes["o1"])
}
