// Package signer implements the sole signing capability the Executor
// consumes: a locally held raw private key, generalizing blackhole.go's
// b.privateKey field (an *ecdsa.PrivateKey passed to every Send/Call site)
// into a package that owns the key and resolves the right chain client per
// request instead of one hard-coded connection.
package signer

import (
	"context"
	"fmt"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// LocalSigner holds an operator-provided raw private key in memory
// (decrypted once at startup via pkg/util.Decrypt, never persisted) and
// broadcasts through whichever chain client the registry resolves for the
// request's chain id.
type LocalSigner struct {
	privateKeyHex string
	chains        func(chainID int64) (types.ChainClient, error)
	automatic     bool
}

// New builds a LocalSigner. automatic controls whether the Executor skips
// the manual-confirmation callback before sending (spec.md §4.8 stage 5);
// an operator-configured wallet used by the background job engines is
// automatic, a user-initiated one-off send typically is not.
func New(privateKeyHex string, chains func(chainID int64) (types.ChainClient, error), automatic bool) *LocalSigner {
	return &LocalSigner{privateKeyHex: privateKeyHex, chains: chains, automatic: automatic}
}

func (s *LocalSigner) Type() string      { return "local" }
func (s *LocalSigner) IsAutomatic() bool { return s.automatic }

// Send resolves req.ChainID's client and delegates signing/broadcast to it,
// since types.ChainClient.BroadcastRaw already owns the raw-key-to-signed-tx
// path the registry's client implements (internal/chainreg.client.BroadcastRaw).
func (s *LocalSigner) Send(ctx context.Context, req types.SendRequest) (string, error) {
	client, err := s.chains(req.ChainID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve chain client for chain %d: %w", req.ChainID, err)
	}
	hash, err := client.BroadcastRaw(ctx, req, s.privateKeyHex)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast signed transaction: %w", err)
	}
	return hash, nil
}
