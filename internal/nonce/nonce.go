// Package nonce is the Nonce Manager (spec.md §4.3): one monotonically
// increasing counter per (chain_id, account), fetched from the chain on
// first use and resynced whenever the chain reports a mismatch.
package nonce

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type key struct {
	chainID int64
	account string
}

// Manager hands out the next nonce to use for a (chain, account) pair and
// tracks it in memory; it never persists, matching spec.md's statement that
// nonce state is process-local and resynced from the chain after a restart.
type Manager struct {
	mu     sync.Mutex
	nonces map[key]uint64
}

// New builds an empty Manager.
func New() *Manager {
	return &Manager{nonces: make(map[key]uint64)}
}

// Next returns the nonce to use for this broadcast, fetching the current
// on-chain pending nonce the first time this (chain, account) is seen. The
// returned value is reserved before Next unlocks, so two concurrent callers
// for the same (chain, account), which spec.md's per-(user, chain, contract)
// locks never serialize against each other since they key on different
// contracts, never receive the same nonce.
func (m *Manager) Next(ctx context.Context, client types.ChainClient, chainID int64, account string) (uint64, error) {
	k := key{chainID, account}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nonces[k]
	if !ok {
		fetched, err := client.GetTransactionCount(ctx, account, true)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch initial nonce for %s on chain %d: %w", account, chainID, err)
		}
		n = fetched
	}
	m.nonces[k] = n + 1
	return n, nil
}

// Confirm is a defensive no-op in the common case: Next already reserved
// `used`+1 before handing `used` out. It only has an effect if the cache
// was somehow behind (e.g. after a manual reset), in which case it catches
// the counter up rather than letting a later Next reissue `used`.
func (m *Manager) Confirm(chainID int64, account string, used uint64) {
	k := key{chainID, account}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.nonces[k]; !ok || used >= current {
		m.nonces[k] = used + 1
	}
}

// Release returns a reserved nonce to the pool when its broadcast never
// made it out (e.g. the signer's Send call itself failed), so the gap
// doesn't strand the counter ahead of on-chain reality forever. It only
// rolls back when nothing has reserved past `used` in the meantime;
// otherwise another in-flight request already depends on the advanced
// counter, and rolling back would hand out a duplicate nonce instead of
// just leaving a harmless gap.
func (m *Manager) Release(chainID int64, account string, used uint64) {
	k := key{chainID, account}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.nonces[k]; ok && current == used+1 {
		m.nonces[k] = used
	}
}

// Resync discards the cached value and re-fetches it from the chain, used
// by the Executor's broadcast stage when broadcast fails with an error that
// mentions the nonce, so the next attempt isn't built on stale state.
func (m *Manager) Resync(ctx context.Context, client types.ChainClient, chainID int64, account string) (uint64, error) {
	fetched, err := client.GetTransactionCount(ctx, account, true)
	if err != nil {
		return 0, fmt.Errorf("failed to resync nonce for %s on chain %d: %w", account, chainID, err)
	}
	k := key{chainID, account}
	m.mu.Lock()
	m.nonces[k] = fetched
	m.mu.Unlock()
	return fetched, nil
}
