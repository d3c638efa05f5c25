package types

import (
	"context"
	"math/big"
)

// Signer is the opaque signing capability the Executor consumes. Besides
// Send, the core only reads the Type and IsAutomatic accessors (spec.md §6).
type Signer interface {
	Type() string
	IsAutomatic() bool
	Send(ctx context.Context, req SendRequest) (string, error) // returns tx hash hex
}

// SendRequest is everything Signer.Send needs to build and submit a raw
// signed transaction.
type SendRequest struct {
	ChainID              int64
	To                   string
	Value                *big.Int
	Data                 []byte
	Gas                  uint64
	Nonce                uint64
	MaxFeePerGas         *big.Int // optional, EIP-1559
	MaxPriorityFeePerGas *big.Int // optional, EIP-1559
	RPCURL               string   // optional override (MEV relayer)
}

// ChainClient is the per-chain-id read/broadcast capability the Chain
// Client Registry hands out.
type ChainClient interface {
	GetBalance(ctx context.Context, addr string) (*big.Int, error)
	ReadContract(ctx context.Context, addr, fn string, args ...interface{}) ([]interface{}, error)
	GetBlockWithTxs(ctx context.Context, tag string) (*Block, error)
	EstimateBaseFee(ctx context.Context) (*big.Int, error)
	WaitForReceipt(ctx context.Context, hash string) (*Receipt, error)
	GetTransactionCount(ctx context.Context, addr string, pending bool) (uint64, error)
	BroadcastRaw(ctx context.Context, req SendRequest, privateKeyHex string) (string, error)
}

// Block is a trimmed read-only view of a chain block used by the Whale
// Watcher.
type Block struct {
	Number int64
	Txs    []BlockTx
}

// BlockTx is one transaction inside a polled block.
type BlockTx struct {
	Hash  string
	From  string
	To    string
	Value *big.Int
	Data  []byte
}

// RiskOracleClient is the external risk-scoring API consumed by the Risk
// Engine on a cache miss.
type RiskOracleClient interface {
	GetTokenRisk(ctx context.Context, chainID int64, addr string) (*RiskReport, error)
}

// SimulationClient is the external dry-run/bundle-simulation service
// consumed by the Simulator.
type SimulationClient interface {
	Simulate(ctx context.Context, req TransactionRequest) (*SimulationResult, error)
	SimulateSellAfterBuy(ctx context.Context, buy TransactionRequest, tokenAddress string) (*AntiRugResult, error)
}

// QuoteAggregator is the external swap-quote router consumed by the DCA
// scheduler, limit-order watcher, whale copy-trade path, and snipe manager.
type QuoteAggregator interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// QuoteRequest asks the aggregator for a swap quote.
type QuoteRequest struct {
	ChainID     int64
	FromToken   string
	ToToken     string
	Amount      *big.Int
	FromAddress string
	SlippageBps int
}

// Quote is the aggregator's best route for a QuoteRequest.
type Quote struct {
	ToAmount *big.Int
	Tx       *TransactionRequest // nil if no route found
}

// PriceOracle supplies native and token USD prices to the DCA scheduler,
// the limit-order watcher, and the whale watcher.
type PriceOracle interface {
	NativePriceUSD(ctx context.Context, chainID int64) (float64, error)
	TokenPriceUSD(ctx context.Context, chainID int64, token string) (float64, error)
}

// ExecutorCallbacks are the optional progress hooks a skill may supply to
// Executor.Execute (spec.md §6). A nil field means "no callback" and the
// corresponding gate proceeds; in particular a nil OnConfirmationRequired
// lets both the confirmation gate and the signer gate proceed.
type ExecutorCallbacks struct {
	OnSimulated           func(result *SimulationResult, preview string)
	OnGuardrails          func(checks []Check)
	OnRiskWarning         func(warning string) bool
	OnConfirmationRequired func(preview string, txID string) bool
	OnBroadcast           func(hash string)
	OnConfirmed           func(hash string, blockNumber uint64)
	OnFailed              func(errorString string)
}

// ExecutorMetadata identifies who is asking and at what price context.
type ExecutorMetadata struct {
	UserID            string
	SkillName         string
	IntentDescription string
	NativePriceUSD    float64 // 0 means "unknown", guardrails degrade to skip USD-based checks
}

// ExecutorResult is the structured, no-panic result the Executor always
// returns (spec.md §7 propagation policy).
type ExecutorResult struct {
	TxID    string
	Hash    string
	Success bool
	Message string
}
