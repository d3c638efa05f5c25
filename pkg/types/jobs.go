package types

import (
	"math/big"
	"time"
)

// JobStatus is the lifecycle of a background-engine-owned job row
// (DcaJob, LimitOrder, WhaleWatch, Snipe/AutoSnipe — spec.md §3).
type JobStatus string

const (
	JobActive    JobStatus = "active"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobExhausted JobStatus = "exhausted"
	JobFilled    JobStatus = "filled"
	JobFailed    JobStatus = "failed"
)

// DcaFrequency is the recurrence cadence of a DcaJob.
type DcaFrequency string

const (
	FreqHourly DcaFrequency = "hourly"
	FreqDaily  DcaFrequency = "daily"
	FreqWeekly DcaFrequency = "weekly"
)

// DcaStrategy selects fixed-amount or value-averaging rounds.
type DcaStrategy string

const (
	StrategyFixed DcaStrategy = "fixed"
	StrategySmart DcaStrategy = "smart"
)

// DcaJob is a recurring swap job (spec.md §3, §4.10).
type DcaJob struct {
	ID              string
	UserID          string
	WalletAddress   string
	FromToken       string
	ToToken         string
	Amount          *big.Int // fixed: base unit per round; smart: target per-round
	ChainID         int64
	Frequency       string
	IntervalMs      int64
	Strategy        string
	Status          JobStatus
	TotalExecutions int64
	MaxExecutions   *int64
	TotalSpent      *big.Int
	AvgPrice        *float64
	LastExecutedAt  *time.Time
	NextExecutionAt time.Time
}

// LimitOrderDirection is whether the trigger fires above or below the
// target price.
type LimitOrderDirection string

const (
	TriggerAbove LimitOrderDirection = "above"
	TriggerBelow LimitOrderDirection = "below"
)

// LimitOrder is a price-trigger swap order (spec.md §3, §4.11).
type LimitOrder struct {
	ID            string
	UserID        string
	WalletAddress string
	ChainID       int64
	FromToken     string
	ToToken       string
	Amount        *big.Int
	TriggerPrice  float64
	Direction     LimitOrderDirection
	Status        JobStatus
	FilledTxHash  string
}

// WhaleWatch tracks a watched address for large transfers, optionally with
// auto-copy-trade enabled (spec.md §3, §4.12).
type WhaleWatch struct {
	ID                 string
	UserID             string
	ChainID            int64
	Address            string
	ThresholdUSD       float64
	AutoCopy           bool
	CopyAmount         *big.Int
	CopyMaxDaily       int
	CopyCountToday     int
	CopyCountDate      string
	LastProcessedBlock int64
	Status             JobStatus
}

// FlowSignal is the Flow Tracker's bucketed-direction classification
// (spec.md §4.12.1).
type FlowSignal string

const (
	FlowAccumulation FlowSignal = "accumulation"
	FlowDistribution FlowSignal = "distribution"
	FlowAcceleration FlowSignal = "acceleration"
	FlowReversal     FlowSignal = "reversal"
	FlowNone         FlowSignal = ""
)

// SignalSide is buy or sell for a published trading signal.
type SignalSide string

const (
	SideBuy  SignalSide = "buy"
	SideSell SignalSide = "sell"
)

// SignalStatus is the lifecycle of a published trading signal.
type SignalStatus string

const (
	SignalOpen      SignalStatus = "open"
	SignalClosed    SignalStatus = "closed"
	SignalExpired   SignalStatus = "expired"
	SignalCancelled SignalStatus = "cancelled"
)

// Signal is a published trading intent (spec.md §3, §4.13).
type Signal struct {
	ID          string
	Provider    string
	Token       string
	ChainID     int64
	Side        SignalSide
	EntryPrice  float64
	ExitPrice   *float64
	TxHash      string
	Collateral  float64
	Leverage    float64
	Status      SignalStatus
	PnLPercent  *float64
	PublishedAt time.Time
	ClosedAt    *time.Time
}

// SignalProvider tracks running performance stats for a signal publisher.
type SignalProvider struct {
	Name                string
	TotalClosed         int64
	Wins                int64
	Losses              int64
	AvgReturnPercent    float64
	LastNotifiedID      string
	LastNotifiedCloseAt time.Time
}

// SignalSubscription is a user's subscription to a provider's signals.
type SignalSubscription struct {
	ID       uint
	UserID   string
	Provider string
}

// SnipeMode distinguishes a one-off manual snipe from an automated one,
// which always carries mandatory risk analysis (spec.md §4.14).
type SnipeMode string

const (
	SnipeManual SnipeMode = "manual"
	SnipeAuto   SnipeMode = "auto"
)

// Snipe is a one-shot buy request (spec.md §3, §4.14).
type Snipe struct {
	ID            string
	UserID        string
	ChainID       int64
	Token         string
	Amount        *big.Int
	Mode          SnipeMode
	Status        JobStatus
	TxHash        string
	FailureReason string
}

// AutoSnipeConfig is a standing auto-buy configuration (spec.md §4.14).
type AutoSnipeConfig struct {
	ID            string
	UserID        string
	Token         string
	ChainID       int64
	Amount        *big.Int
	MaxExecutions int64
	ExecutedCount int64
	Status        JobStatus
}
