package guardrail

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type memStore struct {
	limits     types.UserLimits
	dailySpent float64
	lastSent   time.Time
	sentCalls  int
}

func (m *memStore) GetUserLimits(userID string) (types.UserLimits, error) { return m.limits, nil }
func (m *memStore) SumValueUSDSince(userID string, since time.Time, nativePriceUSD float64) (float64, error) {
	return m.dailySpent, nil
}
func (m *memStore) LastSentAt(userID string) (time.Time, error) { return m.lastSent, nil }
func (m *memStore) RecordTxSent(userID string) error {
	m.sentCalls++
	m.lastSent = time.Now()
	return nil
}

func weiFor(usd float64, nativePriceUSD float64) *big.Int {
	f := new(big.Float).Quo(big.NewFloat(usd), big.NewFloat(nativePriceUSD))
	f.Mul(f, big.NewFloat(1e18))
	wei, _ := f.Int(nil)
	return wei
}

func TestCheckPassesWithinAllLimits(t *testing.T) {
	store := &memStore{limits: types.UserLimits{MaxPerTxUSD: 1000, MaxPerDayUSD: 5000, CooldownSeconds: 30}}
	g := New(store)

	checks, err := g.Check("u1", types.TransactionRequest{ValueNative: weiFor(100, 2000)}, 2000)
	require.NoError(t, err)
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.True(t, c.Passed, c.Rule)
	}
}

func TestCheckFailsMaxPerTx(t *testing.T) {
	store := &memStore{limits: types.UserLimits{MaxPerTxUSD: 100, MaxPerDayUSD: 5000}}
	g := New(store)

	checks, err := g.Check("u1", types.TransactionRequest{ValueNative: weiFor(500, 2000)}, 2000)
	require.NoError(t, err)
	assert.False(t, checks[0].Passed)
	assert.Equal(t, "max_per_tx", checks[0].Rule)
}

func TestCheckFailsMaxPerDay(t *testing.T) {
	store := &memStore{limits: types.UserLimits{MaxPerTxUSD: 10000, MaxPerDayUSD: 1000}, dailySpent: 950}
	g := New(store)

	checks, err := g.Check("u1", types.TransactionRequest{ValueNative: weiFor(100, 2000)}, 2000)
	require.NoError(t, err)
	assert.False(t, checks[1].Passed)
	assert.Equal(t, "max_per_day", checks[1].Rule)
}

func TestCheckFailsCooldown(t *testing.T) {
	store := &memStore{
		limits:   types.UserLimits{MaxPerTxUSD: 10000, MaxPerDayUSD: 100000, CooldownSeconds: 60},
		lastSent: time.Now().Add(-5 * time.Second),
	}
	g := New(store)

	checks, err := g.Check("u1", types.TransactionRequest{ValueNative: weiFor(1, 2000)}, 2000)
	require.NoError(t, err)
	assert.False(t, checks[2].Passed)
	assert.Equal(t, "cooldown", checks[2].Rule)
}

func TestCheckSkipsUSDRulesWhenPriceUnknown(t *testing.T) {
	store := &memStore{limits: types.UserLimits{MaxPerTxUSD: 1}}
	g := New(store)

	checks, err := g.Check("u1", types.TransactionRequest{ValueNative: big.NewInt(1e18)}, 0)
	require.NoError(t, err)
	assert.True(t, checks[0].Passed)
	assert.True(t, checks[1].Passed)
}

func TestRequiresConfirmation(t *testing.T) {
	limits := types.UserLimits{MaxPerTxUSD: 1000}
	assert.True(t, RequiresConfirmation(501, limits))
	assert.False(t, RequiresConfirmation(500, limits))
}

func TestRecordTxSent(t *testing.T) {
	store := &memStore{}
	g := New(store)
	require.NoError(t, g.RecordTxSent("u1"))
	assert.Equal(t, 1, store.sentCalls)
}
