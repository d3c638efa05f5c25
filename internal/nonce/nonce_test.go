package nonce

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type stubChainClient struct {
	types.ChainClient
	pendingNonce uint64
	err          error
	calls        int
}

func (s *stubChainClient) GetTransactionCount(ctx context.Context, addr string, pending bool) (uint64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.pendingNonce, nil
}

func TestNextFetchesOnFirstUse(t *testing.T) {
	m := New()
	client := &stubChainClient{pendingNonce: 7}

	n, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, 1, client.calls)

	n, err = m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 8, n, "second call should reserve the next nonce from cache, not refetch or reissue 7")
	assert.Equal(t, 1, client.calls)
}

func TestNextNeverHandsOutTheSameNonceTwiceConcurrently(t *testing.T) {
	m := New()
	client := &stubChainClient{pendingNonce: 0}

	const callers = 50
	results := make(chan uint64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := m.Next(context.Background(), client, 1, "0xabc")
			require.NoError(t, err)
			results <- n
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool, callers)
	for n := range results {
		assert.False(t, seen[n], "nonce %d handed out more than once", n)
		seen[n] = true
	}
	assert.Len(t, seen, callers)
}

func TestReleaseRollsBackOnlyWhenNothingReservedPastIt(t *testing.T) {
	m := New()
	client := &stubChainClient{pendingNonce: 10}

	n, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	require.EqualValues(t, 10, n)

	m.Release(1, "0xabc", n)
	again, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 10, again, "release should return the unused nonce to the pool")

	// Reserve past it, then a stale Release for the earlier value must not
	// roll back over the newer reservation.
	next, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	require.EqualValues(t, 11, next)

	m.Release(1, "0xabc", 10)
	after, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 12, after, "stale release must not reissue an already-superseded nonce")
}

func TestConfirmAdvancesNonce(t *testing.T) {
	m := New()
	client := &stubChainClient{pendingNonce: 3}
	_, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)

	m.Confirm(1, "0xabc", 3)
	n, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestNextIsolatesByChainAndAccount(t *testing.T) {
	m := New()
	client := &stubChainClient{pendingNonce: 0}
	_, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	m.Confirm(1, "0xabc", 0)

	n, err := m.Next(context.Background(), client, 2, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "different chain id should not share state")
}

func TestResyncRefetchesFromChain(t *testing.T) {
	m := New()
	client := &stubChainClient{pendingNonce: 5}
	_, err := m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)

	client.pendingNonce = 99
	n, err := m.Resync(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 99, n)

	n, err = m.Next(context.Background(), client, 1, "0xabc")
	require.NoError(t, err)
	assert.EqualValues(t, 99, n)
}

func TestNextPropagatesFetchError(t *testing.T) {
	m := New()
	client := &stubChainClient{err: errors.New("rpc down")}
	_, err := m.Next(context.Background(), client, 1, "0xabc")
	assert.Error(t, err)
}
