package signer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

type stubChainClient struct {
	types.ChainClient
	hash string
	err  error
	got  types.SendRequest
}

func (c *stubChainClient) BroadcastRaw(ctx context.Context, req types.SendRequest, privateKeyHex string) (string, error) {
	c.got = req
	return c.hash, c.err
}

func TestSendDelegatesToResolvedChainClient(t *testing.T) {
	client := &stubChainClient{hash: "0xdeadbeef"}
	s := New("abc123", func(chainID int64) (types.ChainClient, error) {
		assert.EqualValues(t, 1, chainID)
		return client, nil
	}, true)

	hash, err := s.Send(context.Background(), types.SendRequest{ChainID: 1, To: "0xabc"})
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", hash)
	assert.Equal(t, "0xabc", client.got.To)
}

func TestSendPropagatesChainResolutionError(t *testing.T) {
	s := New("abc123", func(chainID int64) (types.ChainClient, error) {
		return nil, errors.New("no client registered")
	}, false)

	_, err := s.Send(context.Background(), types.SendRequest{ChainID: 99})
	assert.Error(t, err)
}

func TestIsAutomaticReflectsConstructorArg(t *testing.T) {
	s := New("abc123", nil, true)
	assert.True(t, s.IsAutomatic())
	assert.Equal(t, "local", s.Type())

	manual := New("abc123", nil, false)
	assert.False(t, manual.IsAutomatic())
}
