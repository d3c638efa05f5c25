package simulate

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type stubSimClient struct {
	simResult   *types.SimulationResult
	simErr      error
	antiRug     *types.AntiRugResult
	antiRugErr  error
}

func (s *stubSimClient) Simulate(ctx context.Context, req types.TransactionRequest) (*types.SimulationResult, error) {
	return s.simResult, s.simErr
}

func (s *stubSimClient) SimulateSellAfterBuy(ctx context.Context, buy types.TransactionRequest, tokenAddress string) (*types.AntiRugResult, error) {
	return s.antiRug, s.antiRugErr
}

func TestSimulateUsesExternalResultWhenAvailable(t *testing.T) {
	client := &stubSimClient{simResult: &types.SimulationResult{Success: true, GasEstimate: 55000}}
	s := New(client)

	result, err := s.Simulate(context.Background(), types.TransactionRequest{})
	require.NoError(t, err)
	assert.EqualValues(t, 55000, result.GasEstimate)
}

func TestSimulateFallsBackOnClientError(t *testing.T) {
	client := &stubSimClient{simErr: errors.New("service down")}
	s := New(client)

	result, err := s.Simulate(context.Background(), types.TransactionRequest{GasLimit: 0, ValueNative: big.NewInt(1000)})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.EqualValues(t, defaultGasEstimate, result.GasEstimate)
	require.Len(t, result.BalanceChanges, 1)
	assert.Equal(t, types.Out, result.BalanceChanges[0].Direction)
}

func TestSimulateFallsBackWithNilClient(t *testing.T) {
	s := New(nil)
	result, err := s.Simulate(context.Background(), types.TransactionRequest{GasLimit: 90000})
	require.NoError(t, err)
	assert.EqualValues(t, 90000, result.GasEstimate)
	assert.Empty(t, result.BalanceChanges)
}

func TestSimulateSellAfterBuyFallsBackToUnavailableWarning(t *testing.T) {
	s := New(nil)
	result, err := s.SimulateSellAfterBuy(context.Background(), types.TransactionRequest{}, "0xtoken")
	require.NoError(t, err)
	assert.True(t, result.CanSell)
	assert.Equal(t, "unavailable", result.Warning)
}

func TestSimulateSellAfterBuyUsesExternalResult(t *testing.T) {
	client := &stubSimClient{antiRug: &types.AntiRugResult{CanSell: false, SellTaxPct: 99}}
	s := New(client)
	result, err := s.SimulateSellAfterBuy(context.Background(), types.TransactionRequest{}, "0xtoken")
	require.NoError(t, err)
	assert.False(t, result.CanSell)
	assert.Equal(t, 99.0, result.SellTaxPct)
}
