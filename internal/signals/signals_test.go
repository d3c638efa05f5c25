package signals

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/internal/delivery"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type memStore struct {
	signals          map[string]*types.Signal
	providers        map[string]*types.SignalProvider
	subscribers      map[string][]string
	deliveries       []types.DeliveryQueueEntry
}

func newMemStore() *memStore {
	return &memStore{
		signals:     make(map[string]*types.Signal),
		providers:   make(map[string]*types.SignalProvider),
		subscribers: make(map[string][]string),
	}
}

func (m *memStore) PublishSignal(sig *types.Signal) (string, error) {
	if sig.ID == "" {
		sig.ID = "s1"
	}
	cp := *sig
	m.signals[cp.ID] = &cp
	return cp.ID, nil
}
func (m *memStore) GetSignal(id string) (*types.Signal, error) {
	sig, ok := m.signals[id]
	if !ok {
		return nil, assertErr("not found")
	}
	cp := *sig
	return &cp, nil
}
func (m *memStore) CloseSignal(id string, exitPrice, pnlPercent float64, now time.Time) (bool, error) {
	sig := m.signals[id]
	if sig.Status != types.SignalOpen {
		return false, nil
	}
	sig.Status = types.SignalClosed
	sig.ExitPrice = &exitPrice
	sig.PnLPercent = &pnlPercent
	sig.ClosedAt = &now
	return true, nil
}
func (m *memStore) ExpireStaleSignals(now time.Time, maxAge time.Duration) (int64, error) { return 0, nil }
func (m *memStore) SignalsSince(afterID string, afterCloseTime time.Time) ([]types.Signal, []types.Signal, error) {
	var published, closed []types.Signal
	for _, sig := range m.signals {
		if sig.ID > afterID {
			published = append(published, *sig)
		}
		if sig.Status == types.SignalClosed && sig.ClosedAt != nil && sig.ClosedAt.After(afterCloseTime) {
			closed = append(closed, *sig)
		}
	}
	return published, closed, nil
}
func (m *memStore) RecomputeProviderStats(provider string, pnlPercent float64) error {
	p, ok := m.providers[provider]
	if !ok {
		p = &types.SignalProvider{Name: provider}
		m.providers[provider] = p
	}
	p.TotalClosed++
	if pnlPercent > 0 {
		p.Wins++
	} else {
		p.Losses++
	}
	return nil
}
func (m *memStore) Leaderboard() ([]types.SignalProvider, error) {
	var out []types.SignalProvider
	for _, p := range m.providers {
		if p.TotalClosed >= 5 {
			out = append(out, *p)
		}
	}
	return out, nil
}
func (m *memStore) SubscribersOf(provider string) ([]string, error) { return m.subscribers[provider], nil }
func (m *memStore) Subscribe(userID, provider string) error {
	m.subscribers[provider] = append(m.subscribers[provider], userID)
	return nil
}

// delivery.Store surface, unused directly by the tests but required to
// build a Queue for Engine construction.
func (m *memStore) EnqueueDelivery(channel, recipientID, message string) (uint, error) { return 1, nil }
func (m *memStore) AckDelivery(id uint) error                                          { return nil }
func (m *memStore) FailDelivery(id uint, errMsg string, maxAttempts int) error          { return nil }
func (m *memStore) ListPendingDeliveries() ([]types.DeliveryQueueEntry, error)          { return nil, nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

func buildEngine(t *testing.T, store *memStore) *Engine {
	t.Helper()
	dq := delivery.New(store, 5)
	e, err := New(store, nil, dq, []string{"0xStable"})
	require.NoError(t, err)
	return e
}

func TestCloseComputesBuyPnl(t *testing.T) {
	store := newMemStore()
	store.signals["s1"] = &types.Signal{ID: "s1", Provider: "alice", Side: types.SideBuy, EntryPrice: 100, Leverage: 2, Status: types.SignalOpen}
	e := buildEngine(t, store)

	err := e.Close("s1", 110)
	require.NoError(t, err)
	assert.Equal(t, types.SignalClosed, store.signals["s1"].Status)
	assert.InDelta(t, 20.0, *store.signals["s1"].PnLPercent, 0.001) // (110-100)/100*100*2
	assert.Equal(t, int64(1), store.providers["alice"].Wins)
}

func TestCloseComputesSellPnl(t *testing.T) {
	store := newMemStore()
	store.signals["s1"] = &types.Signal{ID: "s1", Provider: "alice", Side: types.SideSell, EntryPrice: 100, Leverage: 1, Status: types.SignalOpen}
	e := buildEngine(t, store)

	err := e.Close("s1", 90)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, *store.signals["s1"].PnLPercent, 0.001) // (100-90)/100*100*1
}

func TestCloseIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.signals["s1"] = &types.Signal{ID: "s1", Provider: "alice", Side: types.SideBuy, EntryPrice: 100, Leverage: 1, Status: types.SignalOpen}
	e := buildEngine(t, store)

	require.NoError(t, e.Close("s1", 120))
	require.NoError(t, e.Close("s1", 999)) // already closed: no-op, no second stats update
	assert.Equal(t, int64(1), store.providers["alice"].TotalClosed)
}

func TestLeaderboardFiltersBelowFiveClosed(t *testing.T) {
	store := newMemStore()
	store.providers["alice"] = &types.SignalProvider{Name: "alice", TotalClosed: 3}
	store.providers["bob"] = &types.SignalProvider{Name: "bob", TotalClosed: 6}
	e := buildEngine(t, store)

	board, err := e.Leaderboard()
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "bob", board[0].Name)
}

func TestPollNotifiesSubscribersOfNewSignal(t *testing.T) {
	store := newMemStore()
	store.signals["s1"] = &types.Signal{ID: "s1", Provider: "alice", Side: types.SideBuy, Token: "TOK", EntryPrice: 1, Status: types.SignalOpen}
	store.subscribers["alice"] = []string{"u1"}
	e := buildEngine(t, store)

	var notified []string
	err := e.Poll(context.Background(), func(userID, message string) error {
		notified = append(notified, userID)
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, notified, "u1")
}

func TestExtractEntryPriceRefinesFromStablecoinSettlement(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABIJSON))
	require.NoError(t, err)
	transferEvent := parsed.Events["Transfer"]

	amount := big.NewInt(150_000000) // 150 USDC at 6 decimals
	data, err := transferEvent.Inputs.NonIndexed().Pack(amount)
	require.NoError(t, err)

	store := newMemStore()
	e := buildEngine(t, store) // stablecoins: {"0xStable"}

	sig := &types.Signal{Collateral: 100, EntryPrice: 1} // implies a recorded token quantity of 100
	receipt := &types.Receipt{Logs: []types.Log{
		{
			Address: "0xStable",
			Topics:  []string{transferEvent.ID.Hex()},
			Data:    "0x" + hex.EncodeToString(data),
		},
	}}

	price, ok := e.extractEntryPrice(sig, receipt)
	require.True(t, ok)
	assert.InDelta(t, 1.5, price, 0.0001) // 150 settled stablecoin / 100 token quantity
}

func TestExtractEntryPriceIgnoresNonStablecoinLogs(t *testing.T) {
	store := newMemStore()
	e := buildEngine(t, store)

	sig := &types.Signal{Collateral: 100, EntryPrice: 1}
	receipt := &types.Receipt{Logs: []types.Log{
		{Address: "0xSomeOtherToken", Topics: []string{"0xdeadbeef"}, Data: "0x"},
	}}

	_, ok := e.extractEntryPrice(sig, receipt)
	assert.False(t, ok)
}

func TestSubscribeRegistersUser(t *testing.T) {
	store := newMemStore()
	e := buildEngine(t, store)
	require.NoError(t, e.Subscribe("u1", "alice"))
	assert.Equal(t, []string{"u1"}, store.subscribers["alice"])
}
