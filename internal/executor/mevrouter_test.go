package executor

import "testing"

import "github.com/stretchr/testify/assert"

func TestStaticMEVRouterRoutesOnlyWhenEnabledAndHasData(t *testing.T) {
	r := NewStaticMEVRouter(true, map[int64]string{1: "https://relayer.example/rpc"})

	url, used := r.RouteRPC(1, true)
	assert.True(t, used)
	assert.Equal(t, "https://relayer.example/rpc", url)

	_, used = r.RouteRPC(1, false)
	assert.False(t, used)
}

func TestStaticMEVRouterDisabledNeverRoutes(t *testing.T) {
	r := NewStaticMEVRouter(false, map[int64]string{1: "https://relayer.example/rpc"})
	_, used := r.RouteRPC(1, true)
	assert.False(t, used)
}

func TestStaticMEVRouterUnconfiguredChainFallsThrough(t *testing.T) {
	r := NewStaticMEVRouter(true, map[int64]string{})
	_, used := r.RouteRPC(999, true)
	assert.False(t, used)
}
