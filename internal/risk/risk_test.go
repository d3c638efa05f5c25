package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type memStore struct {
	mu      sync.Mutex
	reports map[string]*types.RiskReport
	list    map[string]struct {
		action types.ContractListAction
		reason string
	}
}

func newMemStore() *memStore {
	return &memStore{
		reports: make(map[string]*types.RiskReport),
		list: make(map[string]struct {
			action types.ContractListAction
			reason string
		}),
	}
}

func (m *memStore) key(chainID int64, contract string) string {
	return contract
}

func (m *memStore) GetRiskReport(chainID int64, contract string) (*types.RiskReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reports[m.key(chainID, contract)], nil
}

func (m *memStore) UpsertRiskReport(r *types.RiskReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[m.key(r.ChainID, r.Contract)] = r
	return nil
}

func (m *memStore) ContractListLookup(chainID int64, address string) (types.ContractListAction, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.list[address]
	if !ok {
		return "", "", nil
	}
	return e.action, e.reason, nil
}

func (m *memStore) setList(address string, action types.ContractListAction, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list[address] = struct {
		action types.ContractListAction
		reason string
	}{action, reason}
}

type stubOracle struct {
	calls  int32
	report types.RiskReport
	err    error
}

func (o *stubOracle) GetTokenRisk(ctx context.Context, chainID int64, addr string) (*types.RiskReport, error) {
	atomic.AddInt32(&o.calls, 1)
	if o.err != nil {
		return nil, o.err
	}
	r := o.report
	return &r, nil
}

func TestAnalyzeCachesAcrossCalls(t *testing.T) {
	store := newMemStore()
	oracle := &stubOracle{report: types.RiskReport{RiskLevel: types.RiskLow, OverallScore: 10}}
	e := New(store, oracle, time.Hour)

	r1, err := e.Analyze(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	r2, err := e.Analyze(context.Background(), 1, "0xabc")
	require.NoError(t, err)

	assert.Equal(t, r1.RiskLevel, r2.RiskLevel)
	assert.EqualValues(t, 1, atomic.LoadInt32(&oracle.calls))
}

func TestAnalyzeRefreshesAfterTTL(t *testing.T) {
	store := newMemStore()
	oracle := &stubOracle{report: types.RiskReport{RiskLevel: types.RiskLow}}
	e := New(store, oracle, time.Millisecond)

	_, err := e.Analyze(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = e.Analyze(context.Background(), 1, "0xabc")
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&oracle.calls))
}

func TestAnalyzeNeverRefreshesCriticalOrHoneypotEntries(t *testing.T) {
	store := newMemStore()
	oracle := &stubOracle{report: types.RiskReport{RiskLevel: types.RiskCritical}}
	e := New(store, oracle, time.Millisecond)

	_, err := e.Analyze(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = e.Analyze(context.Background(), 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&oracle.calls), "a critical entry must never be refetched once cached")

	store2 := newMemStore()
	oracle2 := &stubOracle{report: types.RiskReport{RiskLevel: types.RiskLow, Honeypot: true}}
	e2 := New(store2, oracle2, time.Millisecond)

	_, err = e2.Analyze(context.Background(), 1, "0xdef")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = e2.Analyze(context.Background(), 1, "0xdef")
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&oracle2.calls), "a honeypot entry must never be refetched once cached")
}

func TestShouldBlockHonorsBlockList(t *testing.T) {
	store := newMemStore()
	store.setList("0xbad", types.ActionBlock, "known scam")
	e := New(store, &stubOracle{}, time.Hour)

	d, err := e.ShouldBlock(context.Background(), "u1", 1, "0xbad")
	require.NoError(t, err)
	assert.True(t, d.Blocked)
	assert.Equal(t, "known scam", d.Reason)
}

func TestShouldBlockAllowListBypassesRisk(t *testing.T) {
	store := newMemStore()
	store.setList("0xok", types.ActionAllow, "")
	oracle := &stubOracle{report: types.RiskReport{RiskLevel: types.RiskCritical, Honeypot: true}}
	e := New(store, oracle, time.Hour)

	d, err := e.ShouldBlock(context.Background(), "u1", 1, "0xok")
	require.NoError(t, err)
	assert.False(t, d.Blocked)
}

func TestShouldBlockHonoraryHoneypot(t *testing.T) {
	store := newMemStore()
	oracle := &stubOracle{report: types.RiskReport{RiskLevel: types.RiskLow, Honeypot: true}}
	e := New(store, oracle, time.Hour)

	d, err := e.ShouldBlock(context.Background(), "u1", 1, "0xabc")
	require.NoError(t, err)
	assert.True(t, d.Blocked)
}

func TestShouldBlockCriticalRiskLevel(t *testing.T) {
	store := newMemStore()
	oracle := &stubOracle{report: types.RiskReport{RiskLevel: types.RiskCritical}}
	e := New(store, oracle, time.Hour)

	d, err := e.ShouldBlock(context.Background(), "u1", 1, "0xabc")
	require.NoError(t, err)
	assert.True(t, d.Blocked)
}

func TestNeedsWarning(t *testing.T) {
	assert.True(t, NeedsWarning(&types.RiskReport{RiskLevel: types.RiskMedium}))
	assert.True(t, NeedsWarning(&types.RiskReport{RiskLevel: types.RiskHigh}))
	assert.False(t, NeedsWarning(&types.RiskReport{RiskLevel: types.RiskLow}))
	assert.False(t, NeedsWarning(&types.RiskReport{RiskLevel: types.RiskCritical}))
}

func TestFormatReportIsDeterministic(t *testing.T) {
	report := &types.RiskReport{
		Contract:     "0xabc",
		RiskLevel:    types.RiskHigh,
		OverallScore: 72,
		Honeypot:     false,
		BuyTax:       true,
		Dimensions: []types.RiskDimension{
			{Name: "liquidity", Score: 40, Note: "thin"},
			{Name: "ownership", Score: 90, Note: "renounced"},
		},
	}
	out1 := FormatReport(report)
	out2 := FormatReport(report)
	assert.Equal(t, out1, out2)
	assert.Contains(t, out1, "liquidity")
	assert.Contains(t, out1, "buy tax")
}
