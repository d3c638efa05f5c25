// Package types holds the wire and domain types shared across ChainClaw's
// safety pipeline and the background engines that feed it.
package types

import (
	"math/big"
	"time"
)

// GasStrategy selects the fee tier used when a request doesn't pin exact
// EIP-1559 fields. Mirrors the teacher's types.Standard constant, extended
// to the full slow/standard/fast set spec.md requires.
type GasStrategy int

const (
	Slow GasStrategy = iota
	Standard
	Fast
)

func (g GasStrategy) String() string {
	switch g {
	case Slow:
		return "slow"
	case Fast:
		return "fast"
	default:
		return "standard"
	}
}

// Direction labels a balance change from a simulation as inbound or outbound.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// TransactionRequest is the ephemeral input a skill builds before calling
// Executor.Execute. It never touches the store directly.
type TransactionRequest struct {
	ChainID     int64
	From        string
	To          string
	ValueNative *big.Int // wei / native smallest unit
	Data        []byte
	GasLimit    uint64 // 0 means "estimate"
	GasStrategy GasStrategy
}

// TxStatus is the lifecycle state of a TransactionRecord, following the DAG:
// pending -> simulated -> {approved -> broadcast -> {confirmed|failed}} | rejected | failed
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusSimulated TxStatus = "simulated"
	StatusApproved  TxStatus = "approved"
	StatusRejected  TxStatus = "rejected"
	StatusBroadcast TxStatus = "broadcast"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

// nextAllowed enumerates the single-step transitions permitted from a given
// status. Used by the store to reject out-of-DAG writes.
var nextAllowed = map[TxStatus][]TxStatus{
	StatusPending:   {StatusSimulated, StatusFailed},
	StatusSimulated: {StatusApproved, StatusRejected, StatusFailed},
	StatusApproved:  {StatusBroadcast, StatusFailed},
	StatusBroadcast: {StatusConfirmed, StatusFailed},
}

// CanTransition reports whether moving from `from` to `to` is a single DAG step.
func CanTransition(from, to TxStatus) bool {
	for _, s := range nextAllowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransactionRecord is the persistent, tx_id-keyed audit row for every
// transaction the Executor has ever handled.
type TransactionRecord struct {
	TxID               string
	UserID             string
	SkillName          string
	IntentDescription  string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ChainID            int64
	From               string
	To                 string
	ValueNative        *big.Int
	SimulationResult   string // json snapshot
	GuardrailChecks    string // json snapshot
	Status             TxStatus
	Hash               *string
	GasUsed            *uint64
	EffectiveGasPrice  *big.Int
	GasCostUSD         *float64
	BlockNumber        *uint64
	Error              *string
}

// BalanceChange is one leg of a simulated balance delta.
type BalanceChange struct {
	Token     string
	Amount    *big.Int
	Direction Direction
}

// SimulationResult is what the Simulator returns for a dry-run.
type SimulationResult struct {
	Success       bool
	GasEstimate   uint64
	BalanceChanges []BalanceChange
	Error         string
}

// AntiRugResult is the outcome of simulating buy -> approve -> sell-all
// against a canonical router, used by the Snipe Manager and optionally
// wired into the Executor's simulation stage.
type AntiRugResult struct {
	CanSell     bool
	SellTaxPct  float64
	NetLossPct  float64
	BuyReceived *big.Int
	SellReceived *big.Int
	Warning     string
}

// Check is one guardrail rule outcome.
type Check struct {
	Rule    string
	Passed  bool
	Message string
}

// RiskLevel is the coarse bucket a RiskReport's score falls into.
type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskDimension is a single scored facet of a contract/token risk report
// (e.g. "ownership", "liquidity", "source_verification").
type RiskDimension struct {
	Name  string
	Score int
	Note  string
}

// RiskReport is the cached, (chain_id, contract)-keyed risk analysis.
type RiskReport struct {
	ChainID         int64
	Contract        string
	OverallScore    int
	RiskLevel       RiskLevel
	Dimensions      []RiskDimension
	Honeypot        bool
	BuyTax          bool
	SellTax         bool
	VerifiedSource  bool
	OwnerPrivileges bool
	CachedAt        time.Time
}

// ContractListAction is allow/block precedence for a contract list entry.
type ContractListAction string

const (
	ActionAllow ContractListAction = "allow"
	ActionBlock ContractListAction = "block"
)

// ContractListEntry is one row of the allow/block list. Precedence is
// block > allow > risk-derived decision.
type ContractListEntry struct {
	Address   string
	ChainID   int64
	Action    ContractListAction
	Reason    string
	AddedAt   time.Time
}

// UserLimits governs per-user guardrail thresholds. A missing row means
// the caller should apply DefaultUserLimits.
type UserLimits struct {
	UserID         string
	MaxPerTxUSD    float64
	MaxPerDayUSD   float64
	CooldownSeconds int64
	SlippageBps    int
}

// defaultUserLimits is the fallback applied when no UserLimits row exists
// for a user, seeded from internal/config.Config.DefaultLimits at startup
// (SetDefaultUserLimits) and otherwise holding the values the teacher's
// config shipped as its own built-in defaults.
var defaultUserLimits = UserLimits{
	MaxPerTxUSD:     1000,
	MaxPerDayUSD:    5000,
	CooldownSeconds: 30,
	SlippageBps:     50,
}

// SetDefaultUserLimits overrides the fallback DefaultUserLimits returns,
// called once at startup with the operator's configured defaults.
func SetDefaultUserLimits(l UserLimits) {
	defaultUserLimits = l
}

// DefaultUserLimits are applied when no UserLimits row exists for a user.
func DefaultUserLimits(userID string) UserLimits {
	l := defaultUserLimits
	l.UserID = userID
	return l
}

// Receipt is the chain-client-agnostic shape of an on-chain transaction
// receipt, mirroring the teacher's pkg/types.TxReceipt (hex-string numeric
// fields, decoded lazily by callers that need big.Int math).
type Receipt struct {
	TxHash            string
	Status            string // "0x1" success, "0x0" reverted
	BlockNumber       string
	GasUsed           string
	EffectiveGasPrice string
	Logs              []Log
}

// Log is a single EVM log entry from a receipt.
type Log struct {
	Address string
	Topics  []string
	Data    string
}

// DeliveryQueueEntry is a durable, at-least-once notification row
// (spec.md §3, §4.9).
type DeliveryQueueEntry struct {
	ID          uint
	Channel     string
	RecipientID string
	Message     string
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Fees carries EIP-1559 fee fields once computed by the gas optimizer.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}
