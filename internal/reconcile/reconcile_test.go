package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/internal/store"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type memStore struct {
	stuck      []*types.TransactionRecord
	reconciled map[string]types.TxStatus
}

func (m *memStore) ListFailedTimeouts() ([]*types.TransactionRecord, error) { return m.stuck, nil }
func (m *memStore) ReconcileTimeout(txID string, to types.TxStatus, opts store.TransitionOpts) error {
	if m.reconciled == nil {
		m.reconciled = make(map[string]types.TxStatus)
	}
	m.reconciled[txID] = to
	return nil
}

type stubChainClient struct {
	types.ChainClient
	receipt *types.Receipt
	err     error
}

func (c *stubChainClient) WaitForReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	return c.receipt, c.err
}

func hashPtr(s string) *string { return &s }

func TestReconcileUpgradesMinedSuccessToConfirmed(t *testing.T) {
	store := &memStore{stuck: []*types.TransactionRecord{
		{TxID: "tx1", ChainID: 1, Hash: hashPtr("0xabc")},
	}}
	chains := func(chainID int64) (types.ChainClient, error) {
		return &stubChainClient{receipt: &types.Receipt{Status: "0x1", GasUsed: "0x5208", BlockNumber: "100"}}, nil
	}

	n, err := Run(context.Background(), store, chains)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, types.StatusConfirmed, store.reconciled["tx1"])
}

func TestReconcileUpgradesRevertedToFailed(t *testing.T) {
	store := &memStore{stuck: []*types.TransactionRecord{
		{TxID: "tx1", ChainID: 1, Hash: hashPtr("0xabc")},
	}}
	chains := func(chainID int64) (types.ChainClient, error) {
		return &stubChainClient{receipt: &types.Receipt{Status: "0x0"}}, nil
	}

	n, err := Run(context.Background(), store, chains)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, types.StatusFailed, store.reconciled["tx1"])
}

func TestReconcileSkipsStillUnminedTransactions(t *testing.T) {
	store := &memStore{stuck: []*types.TransactionRecord{
		{TxID: "tx1", ChainID: 1, Hash: hashPtr("0xabc")},
	}}
	chains := func(chainID int64) (types.ChainClient, error) {
		return &stubChainClient{err: assertErr("not found")}, nil
	}

	n, err := Run(context.Background(), store, chains)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.reconciled)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
