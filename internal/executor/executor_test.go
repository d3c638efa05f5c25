package executor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/internal/guardrail"
	"github.com/chainclaw-xyz/chainclaw/internal/lock"
	"github.com/chainclaw-xyz/chainclaw/internal/nonce"
	"github.com/chainclaw-xyz/chainclaw/internal/risk"
	"github.com/chainclaw-xyz/chainclaw/internal/simulate"
	"github.com/chainclaw-xyz/chainclaw/internal/store"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// fakeTxStore implements executor.Store in memory.
type fakeTxStore struct {
	records map[string]*types.TransactionRecord
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{records: make(map[string]*types.TransactionRecord)}
}

func (f *fakeTxStore) CreateTx(rec *types.TransactionRecord) (string, error) {
	rec.TxID = "tx-1"
	rec.Status = types.StatusPending
	f.records[rec.TxID] = rec
	return rec.TxID, nil
}

func (f *fakeTxStore) Transition(txID string, to types.TxStatus, opts store.TransitionOpts) error {
	rec := f.records[txID]
	rec.Status = to
	if opts.Hash != nil {
		rec.Hash = opts.Hash
	}
	if opts.Error != nil {
		rec.Error = opts.Error
	}
	return nil
}

type fakeGuardrailStore struct {
	limits     types.UserLimits
	lastSent   time.Time
	dailySpent float64
}

func (f *fakeGuardrailStore) GetUserLimits(userID string) (types.UserLimits, error) { return f.limits, nil }
func (f *fakeGuardrailStore) SumValueUSDSince(userID string, since time.Time, nativePriceUSD float64) (float64, error) {
	return f.dailySpent, nil
}
func (f *fakeGuardrailStore) LastSentAt(userID string) (time.Time, error) { return f.lastSent, nil }
func (f *fakeGuardrailStore) RecordTxSent(userID string) error           { return nil }

type fakeRiskStore struct{}

func (f *fakeRiskStore) GetRiskReport(chainID int64, contract string) (*types.RiskReport, error) {
	return nil, nil
}
func (f *fakeRiskStore) UpsertRiskReport(r *types.RiskReport) error { return nil }
func (f *fakeRiskStore) ContractListLookup(chainID int64, address string) (types.ContractListAction, string, error) {
	return "", "", nil
}

type fakeOracle struct{ report types.RiskReport }

func (o *fakeOracle) GetTokenRisk(ctx context.Context, chainID int64, addr string) (*types.RiskReport, error) {
	r := o.report
	return &r, nil
}

type fakeChainClient struct {
	types.ChainClient
	nonceVal uint64
	receipt  *types.Receipt
}

func (f *fakeChainClient) GetTransactionCount(ctx context.Context, addr string, pending bool) (uint64, error) {
	return f.nonceVal, nil
}

func (f *fakeChainClient) EstimateBaseFee(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChainClient) WaitForReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	return f.receipt, nil
}

type fakeSigner struct {
	automatic bool
	hash      string
	err       error
}

func (s *fakeSigner) Type() string      { return "hot-wallet" }
func (s *fakeSigner) IsAutomatic() bool { return s.automatic }
func (s *fakeSigner) Send(ctx context.Context, req types.SendRequest) (string, error) {
	return s.hash, s.err
}

func buildExecutor(chainClient types.ChainClient, txStore *fakeTxStore) *Executor {
	guardrails := guardrail.New(&fakeGuardrailStore{limits: types.DefaultUserLimits("u1")})
	riskEngine := risk.New(&fakeRiskStore{}, &fakeOracle{report: types.RiskReport{RiskLevel: types.RiskLow}}, time.Hour)
	return New(
		txStore,
		lock.New(),
		simulate.New(nil),
		riskEngine,
		guardrails,
		nonce.New(),
		func(chainID int64) (types.ChainClient, error) { return chainClient, nil },
		nil,
		nil,
	)
}

func TestExecuteHappyPathConfirms(t *testing.T) {
	client := &fakeChainClient{nonceVal: 5, receipt: &types.Receipt{Status: "0x1", GasUsed: "0x5208", EffectiveGasPrice: "0x3b9aca00", BlockNumber: "100"}}
	txStore := newFakeTxStore()
	exec := buildExecutor(client, txStore)

	signer := &fakeSigner{automatic: true, hash: "0xhash"}
	tx := types.TransactionRequest{ChainID: 1, From: "0xfrom", To: "0xto", ValueNative: big.NewInt(1e15)}
	result := exec.Execute(context.Background(), tx, signer, types.ExecutorMetadata{UserID: "u1", NativePriceUSD: 2000}, types.ExecutorCallbacks{})

	require.True(t, result.Success, result.Message)
	assert.Equal(t, "0xhash", result.Hash)
	assert.Equal(t, types.StatusConfirmed, txStore.records[result.TxID].Status)
}

func TestExecuteRevertedTransactionFails(t *testing.T) {
	client := &fakeChainClient{nonceVal: 5, receipt: &types.Receipt{Status: "0x0"}}
	txStore := newFakeTxStore()
	exec := buildExecutor(client, txStore)

	signer := &fakeSigner{automatic: true, hash: "0xhash"}
	tx := types.TransactionRequest{ChainID: 1, From: "0xfrom", To: "0xto", ValueNative: big.NewInt(1)}
	result := exec.Execute(context.Background(), tx, signer, types.ExecutorMetadata{UserID: "u1"}, types.ExecutorCallbacks{})

	assert.False(t, result.Success)
	assert.Equal(t, "reverted", result.Message)
	assert.Equal(t, types.StatusFailed, txStore.records[result.TxID].Status)
}

func TestExecuteBroadcastFailureMarksFailed(t *testing.T) {
	client := &fakeChainClient{nonceVal: 1}
	txStore := newFakeTxStore()
	exec := buildExecutor(client, txStore)

	signer := &fakeSigner{automatic: true, err: assertErr{}}
	tx := types.TransactionRequest{ChainID: 1, From: "0xfrom", To: "0xto", ValueNative: big.NewInt(1)}
	result := exec.Execute(context.Background(), tx, signer, types.ExecutorMetadata{UserID: "u1"}, types.ExecutorCallbacks{})

	assert.False(t, result.Success)
	assert.Equal(t, types.StatusFailed, txStore.records[result.TxID].Status)
}

func TestExecuteConfirmationGateRejectsWhenCallbackDeclines(t *testing.T) {
	client := &fakeChainClient{nonceVal: 1}
	txStore := newFakeTxStore()
	exec := buildExecutor(client, txStore)

	signer := &fakeSigner{automatic: true, hash: "0xhash"}
	// value_usd $600 (0.3 native at $2000): above 0.5 * default max_per_tx_usd (1000)
	// so confirmation is required, yet within the per-tx limit itself.
	tx := types.TransactionRequest{ChainID: 1, From: "0xfrom", To: "0xto", ValueNative: big.NewInt(3e17)}
	cb := types.ExecutorCallbacks{OnConfirmationRequired: func(preview, txID string) bool { return false }}
	result := exec.Execute(context.Background(), tx, signer, types.ExecutorMetadata{UserID: "u1", NativePriceUSD: 2000}, cb)

	assert.False(t, result.Success)
	assert.Equal(t, types.StatusRejected, txStore.records[result.TxID].Status)
}

func TestExecuteGuardrailFailureStopsBeforePersist(t *testing.T) {
	client := &fakeChainClient{nonceVal: 1}
	txStore := newFakeTxStore()
	guardrails := guardrail.New(&fakeGuardrailStore{limits: types.UserLimits{MaxPerTxUSD: 1, MaxPerDayUSD: 1000000}})
	riskEngine := risk.New(&fakeRiskStore{}, &fakeOracle{report: types.RiskReport{RiskLevel: types.RiskLow}}, time.Hour)
	exec := New(txStore, lock.New(), simulate.New(nil), riskEngine, guardrails, nonce.New(),
		func(chainID int64) (types.ChainClient, error) { return client, nil }, nil, nil)

	signer := &fakeSigner{automatic: true, hash: "0xhash"}
	tx := types.TransactionRequest{ChainID: 1, From: "0xfrom", To: "0xto", ValueNative: big.NewInt(1e18)}
	result := exec.Execute(context.Background(), tx, signer, types.ExecutorMetadata{UserID: "u1", NativePriceUSD: 2000}, types.ExecutorCallbacks{})

	assert.False(t, result.Success)
	assert.Empty(t, result.TxID, "guardrail failure happens before persist stage")
}

type assertErr struct{}

func (assertErr) Error() string { return "broadcast rejected by node" }
