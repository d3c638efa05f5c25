// Package chainreg is the Chain Client Registry (spec.md §4.2): one
// read/broadcast client per chain id, constructed once at startup, with an
// optional per-chain RPC override.
package chainreg

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/chainclaw-xyz/chainclaw/pkg/contractclient"
	"github.com/chainclaw-xyz/chainclaw/pkg/txlistener"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// client implements types.ChainClient over a single go-ethereum RPC
// connection, generalizing the teacher's one-client-per-contract
// pattern into one client per chain with ABI-aware calls built per request.
type client struct {
	chainID  int64
	rpc      *ethclient.Client
	listener *txlistener.TxListener
}

// Registry maps chain_id to a constructed client, built once at startup
// from config.ChainConfig entries.
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]*client
}

// New builds an empty registry; call Register per configured chain.
func New() *Registry {
	return &Registry{clients: make(map[int64]*client)}
}

// Register dials rpcURL and installs the resulting client for chainID,
// overwriting any previous registration for the same id.
func (r *Registry) Register(ctx context.Context, chainID int64, rpcURL string, pollInterval, receiptTimeout time.Duration) error {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("failed to dial chain %d at %s: %w", chainID, rpcURL, err)
	}
	c := &client{
		chainID: chainID,
		rpc:     rpc,
		listener: txlistener.NewTxListener(rpc,
			txlistener.WithPollInterval(pollInterval),
			txlistener.WithTimeout(receiptTimeout),
		),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[chainID] = c
	return nil
}

// Get returns the registered client for chainID, or an error if absent.
func (r *Registry) Get(chainID int64) (types.ChainClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no chain client registered for chain id %d", chainID)
	}
	return c, nil
}

// Close tears down every underlying RPC connection (shutdown stage (c) in
// spec.md §5).
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.rpc.Close()
	}
}

func (c *client) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	bal, err := c.rpc.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch balance for %s on chain %d: %w", addr, c.chainID, err)
	}
	return bal, nil
}

// ReadContract performs a raw read call without requiring a pre-loaded ABI:
// args are passed through abi.Arguments-free, so callers needing typed
// decoding should build a contractclient.ContractClient directly instead.
// This path supports the simplest case: args already ABI-encoded as the
// single []byte payload (args[0]).
func (c *client) ReadContract(ctx context.Context, addr, fn string, args ...interface{}) ([]interface{}, error) {
	data, ok := encodedCalldata(fn, args)
	if !ok {
		return nil, fmt.Errorf("ReadContract requires pre-encoded calldata as args[0] ([]byte); got %T", argOrNil(args))
	}
	to := common.HexToAddress(addr)
	out, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.%s on chain %d: %w", addr, fn, c.chainID, err)
	}
	return []interface{}{out}, nil
}

func encodedCalldata(_ string, args []interface{}) ([]byte, bool) {
	if len(args) != 1 {
		return nil, false
	}
	b, ok := args[0].([]byte)
	return b, ok
}

func argOrNil(args []interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func (c *client) GetBlockWithTxs(ctx context.Context, tag string) (*types.Block, error) {
	var blockNum *big.Int
	if tag != "" && tag != "latest" {
		n := new(big.Int)
		if _, ok := n.SetString(tag, 10); ok {
			blockNum = n
		}
	}
	block, err := c.rpc.BlockByNumber(ctx, blockNum)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block %q on chain %d: %w", tag, c.chainID, err)
	}
	out := &types.Block{Number: block.Number().Int64()}
	signer := gethtypes.LatestSignerForChainID(big.NewInt(c.chainID))
	for _, tx := range block.Transactions() {
		from, err := gethtypes.Sender(signer, tx)
		fromHex := ""
		if err == nil {
			fromHex = from.Hex()
		}
		toHex := ""
		if tx.To() != nil {
			toHex = tx.To().Hex()
		}
		out.Txs = append(out.Txs, types.BlockTx{
			Hash:  tx.Hash().Hex(),
			From:  fromHex,
			To:    toHex,
			Value: tx.Value(),
			Data:  tx.Data(),
		})
	}
	return out, nil
}

func (c *client) EstimateBaseFee(ctx context.Context) (*big.Int, error) {
	header, err := c.rpc.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest header on chain %d: %w", c.chainID, err)
	}
	if header.BaseFee == nil {
		return nil, fmt.Errorf("chain %d does not report EIP-1559 base fee", c.chainID)
	}
	return header.BaseFee, nil
}

func (c *client) WaitForReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	receipt, err := c.listener.WaitForTransactionContext(ctx, common.HexToHash(hash))
	if err != nil {
		return nil, err
	}
	status := "0x0"
	if receipt.Status == gethtypes.ReceiptStatusSuccessful {
		status = "0x1"
	}
	return &types.Receipt{
		TxHash:            receipt.TxHash.Hex(),
		Status:            status,
		BlockNumber:       receipt.BlockNumber.String(),
		GasUsed:           fmt.Sprintf("0x%x", receipt.GasUsed),
		EffectiveGasPrice: hexBigString(receipt.EffectiveGasPrice),
		Logs:              convertLogs(receipt.Logs),
	}, nil
}

func hexBigString(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}

func convertLogs(logs []*gethtypes.Log) []types.Log {
	out := make([]types.Log, len(logs))
	for i, l := range logs {
		topics := make([]string, len(l.Topics))
		for j, t := range l.Topics {
			topics[j] = t.Hex()
		}
		out[i] = types.Log{Address: l.Address.Hex(), Topics: topics, Data: common.Bytes2Hex(l.Data)}
	}
	return out
}

func (c *client) GetTransactionCount(ctx context.Context, addr string, pending bool) (uint64, error) {
	address := common.HexToAddress(addr)
	if pending {
		return c.rpc.PendingNonceAt(ctx, address)
	}
	return c.rpc.NonceAt(ctx, address, nil)
}

// BroadcastRaw signs and sends a legacy transaction built from req using
// the raw private key hex. EIP-1559 fields, when present, upgrade it to a
// dynamic-fee transaction.
func (c *client) BroadcastRaw(ctx context.Context, req types.SendRequest, privateKeyHex string) (string, error) {
	pk, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	var tx *gethtypes.Transaction
	to := common.HexToAddress(req.To)
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if req.MaxFeePerGas != nil {
		tx = gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   big.NewInt(req.ChainID),
			Nonce:     req.Nonce,
			To:        &to,
			Value:     value,
			Gas:       req.Gas,
			GasFeeCap: req.MaxFeePerGas,
			GasTipCap: req.MaxPriorityFeePerGas,
			Data:      req.Data,
		})
	} else {
		gasPrice, err := c.rpc.SuggestGasPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to suggest gas price on chain %d: %w", c.chainID, err)
		}
		tx = gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    req.Nonce,
			To:       &to,
			Value:    value,
			Gas:      req.Gas,
			GasPrice: gasPrice,
			Data:     req.Data,
		})
	}

	signer := gethtypes.LatestSignerForChainID(big.NewInt(req.ChainID))
	signedTx, err := gethtypes.SignTx(tx, signer, pk)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	rpc := c.rpc
	if req.RPCURL != "" {
		override, err := ethclient.DialContext(ctx, req.RPCURL)
		if err != nil {
			return "", fmt.Errorf("failed to dial override RPC %s: %w", req.RPCURL, err)
		}
		defer override.Close()
		rpc = override
	}

	if err := rpc.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to broadcast transaction on chain %d: %w", c.chainID, err)
	}
	return signedTx.Hash().Hex(), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// NewContractClient is a convenience constructor for ABI-aware Call/Send on
// top of a registered chain's connection. No engine in this repository
// calls it; the Whale Watcher builds its decode-only client with
// contractclient.NewContractClient directly.
func (r *Registry) NewContractClient(chainID int64, address common.Address, contractABI abi.ABI) (*contractclient.ContractClient, error) {
	r.mu.RLock()
	c, ok := r.clients[chainID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no chain client registered for chain id %d", chainID)
	}
	return contractclient.NewContractClient(c.rpc, address, contractABI).WithChainID(chainID), nil
}
