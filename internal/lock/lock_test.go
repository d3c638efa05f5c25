package lock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExcludesConcurrentCallers(t *testing.T) {
	m := New()
	key := Key{UserID: "u1", ChainID: 1, Contract: "0xabc"}

	h1, err := m.Acquire(context.Background(), key, time.Second)
	require.NoError(t, err)

	var acquired int32
	go func() {
		h2, err := m.Acquire(context.Background(), key, time.Second)
		if err == nil {
			atomic.StoreInt32(&acquired, 1)
			m.Release(h2)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&acquired), "second acquire must block while first holds the lock")

	m.Release(h1)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&acquired))
}

func TestAcquireTimesOut(t *testing.T) {
	m := New()
	key := Key{UserID: "u1", ChainID: 1, Contract: "0xabc"}
	h1, err := m.Acquire(context.Background(), key, time.Second)
	require.NoError(t, err)
	defer m.Release(h1)

	_, err = m.Acquire(context.Background(), key, 10*time.Millisecond)
	assert.Error(t, err)
	assert.IsType(t, ErrTimeout{}, err)
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	m := New()
	key := Key{UserID: "u1", ChainID: 1, Contract: "0xabc"}
	h1, err := m.Acquire(context.Background(), key, time.Second)
	require.NoError(t, err)
	defer m.Release(h1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDifferentKeysDoNotContend(t *testing.T) {
	m := New()
	h1, err := m.Acquire(context.Background(), Key{UserID: "u1", ChainID: 1, Contract: "0xabc"}, time.Second)
	require.NoError(t, err)
	defer m.Release(h1)

	h2, err := m.Acquire(context.Background(), Key{UserID: "u2", ChainID: 1, Contract: "0xabc"}, time.Second)
	require.NoError(t, err)
	m.Release(h2)
}
