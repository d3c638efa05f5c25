// Package contractclient wraps a single (chain, contract, ABI) triple with
// the read/write/decode operations ChainClaw's engines need, generalizing
// the teacher's per-pool client used throughout blackhole.go.
package contractclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	chaintypes "github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// DecodedTransaction is the ABI-decoded view of a raw calldata blob, used
// by the Whale Watcher to recognize swap calls without a source-specific
// parser per contract.
type DecodedTransaction struct {
	MethodName string                 `json:"methodName"`
	Inputs     map[string]interface{} `json:"inputs"`
}

// ContractClient is the ABI-aware client bound to one contract address.
// Read calls go through Call; state-changing calls go through Send, which
// signs and broadcasts a raw transaction exactly as blackhole.go's
// approve/swap/mint/deposit call sites expect.
type ContractClient struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
	chainID int64
}

// NewContractClient binds an ethclient connection, a contract address, and
// its parsed ABI into one client. client may be nil for pure calldata
// decode/encode usage (e.g. the Whale Watcher decoding swap calldata).
func NewContractClient(client *ethclient.Client, address common.Address, contractABI abi.ABI) *ContractClient {
	return &ContractClient{client: client, address: address, abi: contractABI}
}

// WithChainID records the chain id used to build EIP-155 signatures in Send.
func (c *ContractClient) WithChainID(chainID int64) *ContractClient {
	c.chainID = chainID
	return c
}

func (c *ContractClient) ContractAddress() common.Address { return c.address }
func (c *ContractClient) Abi() abi.ABI                     { return c.abi }

// Call performs a read-only contract call via eth_call, returning the ABI-
// decoded outputs. from may be nil when the method doesn't depend on
// msg.sender.
func (c *ContractClient) Call(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call to %s: %w", method, err)
	}
	msg := ethereumCallMsg(from, &c.address, data)
	out, err := c.client.CallContract(context.Background(), msg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", method, c.address.Hex(), err)
	}
	unpacked, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result of %s: %w", method, err)
	}
	return unpacked, nil
}

// Send signs and broadcasts a state-changing call, estimating gas
// automatically when gasLimit is nil, mirroring the teacher's
// tokenClient.Send(gasStrategy, gasLimit, from, privKey, method, args...)
// call shape.
func (c *ContractClient) Send(
	gasStrategy chaintypes.GasStrategy,
	gasLimit *uint64,
	from *common.Address,
	privKey *ecdsa.PrivateKey,
	method string,
	args ...interface{},
) (common.Hash, error) {
	ctx := context.Background()
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack send to %s: %w", method, err)
	}

	sender := crypto.PubkeyToAddress(privKey.PublicKey)
	if from != nil {
		sender = *from
	}

	nonce, err := c.client.PendingNonceAt(ctx, sender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce for %s: %w", sender.Hex(), err)
	}

	gasPrice, err := gasPriceForStrategy(ctx, c.client, gasStrategy)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas price: %w", err)
	}

	limit := uint64(0)
	if gasLimit != nil {
		limit = *gasLimit
	} else {
		estimated, err := c.client.EstimateGas(ctx, ethereumCallMsg(&sender, &c.address, data))
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to estimate gas for %s: %w", method, err)
		}
		limit = estimated
	}

	chainID := big.NewInt(c.chainID)
	if c.chainID == 0 {
		id, err := c.client.NetworkID(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to resolve chain id: %w", err)
		}
		chainID = id
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    big.NewInt(0),
		Gas:      limit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signer := types.NewEIP155Signer(chainID)
	signedTx, err := types.SignTx(tx, signer, privKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to broadcast %s transaction: %w", method, err)
	}
	return signedTx.Hash(), nil
}

// TransactionData fetches a mined or pending transaction's calldata by hash.
func (c *ContractClient) TransactionData(hash common.Hash) ([]byte, error) {
	tx, _, err := c.client.TransactionByHash(context.Background(), hash)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", hash.Hex(), err)
	}
	return tx.Data(), nil
}

// DecodeTransaction maps raw calldata to its method name and named inputs.
func (c *ContractClient) DecodeTransaction(data []byte) (*DecodedTransaction, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("calldata too short to contain a method selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("failed to resolve method selector: %w", err)
	}
	args := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
		return nil, fmt.Errorf("failed to unpack inputs for %s: %w", method.Name, err)
	}
	return &DecodedTransaction{MethodName: method.Name, Inputs: args}, nil
}

// ParseReceipt scans a receipt's logs for events this client's ABI knows
// about, returning the decoded event name and fields per log. No engine in
// this repository calls it; the Trading-Signals verifier decodes its
// Transfer logs itself.
func (c *ContractClient) ParseReceipt(receipt *types.Receipt) ([]DecodedTransaction, error) {
	var out []DecodedTransaction
	for _, logEntry := range receipt.Logs {
		if len(logEntry.Topics) == 0 {
			continue
		}
		event, err := c.abi.EventByID(logEntry.Topics[0])
		if err != nil {
			continue // log from an event this ABI doesn't declare
		}
		args := make(map[string]interface{})
		if err := event.Inputs.UnpackIntoMap(args, logEntry.Data); err != nil {
			continue
		}
		out = append(out, DecodedTransaction{MethodName: event.Name, Inputs: args})
	}
	return out, nil
}

func gasPriceForStrategy(ctx context.Context, client *ethclient.Client, strategy chaintypes.GasStrategy) (*big.Int, error) {
	base, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	switch strategy {
	case chaintypes.Slow:
		return new(big.Int).Div(new(big.Int).Mul(base, big.NewInt(90)), big.NewInt(100)), nil
	case chaintypes.Fast:
		return new(big.Int).Div(new(big.Int).Mul(base, big.NewInt(130)), big.NewInt(100)), nil
	default:
		return base, nil
	}
}
