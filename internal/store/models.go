package store

import "time"

// Row models below mirror spec.md §6's persisted-state layout. Every table
// has CreatedAt; state tables additionally carry UpdatedAt. Monetary values
// are stored as strings in smallest unit (big.Int.String()); USD values are
// float64, matching spec.md's "All monetary values stored as strings ...
// USD values are floating-point."

type TxLogRow struct {
	TxID              string `gorm:"primaryKey"`
	UserID            string `gorm:"index"`
	SkillName         string
	IntentDescription string
	ChainID           int64
	From              string
	To                string
	ValueNative       string // big.Int string, smallest unit
	SimulationJSON    string
	GuardrailJSON     string
	Status            string `gorm:"index"`
	Hash              string
	GasUsed           uint64
	EffectiveGasPrice string // big.Int string
	GasCostUSD        float64
	BlockNumber       uint64
	Error             string
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
}

type UserLimitsRow struct {
	UserID          string `gorm:"primaryKey"`
	MaxPerTxUSD     float64
	MaxPerDayUSD    float64
	CooldownSeconds int64
	SlippageBps     int
	LastSentAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RiskReportRow struct {
	ChainID         int64  `gorm:"primaryKey"`
	Contract        string `gorm:"primaryKey"`
	OverallScore    int
	RiskLevel       string
	DimensionsJSON  string
	Honeypot        bool
	BuyTax          bool
	SellTax         bool
	VerifiedSource  bool
	OwnerPrivileges bool
	CachedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ContractListRow struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Address   string `gorm:"index"`
	ChainID   int64  `gorm:"index"`
	Action    string
	Reason    string
	AddedAt   time.Time
	CreatedAt time.Time
}

type DeliveryQueueRow struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	Channel     string
	RecipientID string
	Message     string
	Status      string `gorm:"index"`
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DcaJobRow struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	WalletAddress   string
	FromToken       string
	ToToken         string
	Amount          string // base unit for fixed, target per-round for smart
	ChainID         int64
	Frequency       string
	IntervalMs      int64
	Strategy        string
	Status          string `gorm:"index"`
	TotalExecutions int64
	MaxExecutions   *int64
	TotalSpent      string // big.Int string
	AvgPrice        *float64
	LastExecutedAt  *time.Time
	NextExecutionAt time.Time `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type LimitOrderRow struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"index"`
	WalletAddress string
	ChainID       int64
	FromToken     string
	ToToken       string
	Amount        string
	TriggerPrice  float64
	Direction     string // "above" | "below"
	Status        string `gorm:"index"`
	FilledTxHash  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type WhaleWatchRow struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index"`
	ChainID         int64
	Address         string `gorm:"index"`
	ThresholdUSD    float64
	AutoCopy        bool
	CopyAmount      string
	CopyMaxDaily    int
	CopyCountToday  int
	CopyCountDate   string // yyyy-mm-dd UTC, reset key
	LastProcessedBlock int64
	Status          string `gorm:"index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type FlowBucketRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Address   string `gorm:"index"`
	ChainID   int64  `gorm:"index"`
	BucketStart time.Time `gorm:"index"`
	NetFlowUSD  float64
	CreatedAt   time.Time
}

type SignalRow struct {
	ID                string `gorm:"primaryKey"`
	Provider          string `gorm:"uniqueIndex:idx_provider_tx"`
	Token             string
	ChainID           int64
	Side              string // "buy" | "sell"
	EntryPrice        float64
	ExitPrice         *float64
	TxHash            string `gorm:"uniqueIndex:idx_provider_tx"`
	Collateral        float64
	Leverage          float64
	Status            string `gorm:"index"` // open, closed, expired, cancelled
	PnLPercent        *float64 `gorm:"column:pnl_percent"`
	PublishedAt       time.Time
	ClosedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type SignalProviderRow struct {
	Name             string `gorm:"primaryKey"`
	TotalClosed      int64
	Wins             int64
	Losses           int64
	AvgReturnPercent float64
	LastNotifiedID   string
	LastNotifiedCloseAt time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type SignalSubscriptionRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"index"`
	Provider  string `gorm:"index"`
	CreatedAt time.Time
}

type SnipeRow struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"index"`
	ChainID       int64
	Token         string
	Amount        string
	Mode          string // "manual" | "auto"
	Status        string `gorm:"index"`
	TxHash        string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AutoSnipeRow struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"index"`
	Token         string
	ChainID       int64
	Amount        string
	MaxExecutions int64
	ExecutedCount int64
	Status        string `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PrivacyDepositRow exists in the persisted-state layout (spec.md §6) but
// privacy deposits are outside the spec's in-scope operations; the table is
// carried so the schema matches §6 exactly and future skills can use it
// without a migration.
type PrivacyDepositRow struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	ChainID   int64
	Amount    string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}
