// Package signals is the Trading-Signals Engine (spec.md §4.13): provider
// publish/verify/close lifecycle, subscriber notification polling, and the
// performance leaderboard.
package signals

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/chainclaw-xyz/chainclaw/internal/delivery"
	"github.com/chainclaw-xyz/chainclaw/pkg/types"
	"github.com/chainclaw-xyz/chainclaw/pkg/util"
)

const expiryAge = 7 * 24 * time.Hour

// stablecoinDecimals assumes the common 6-decimal stablecoin convention
// (USDC/USDT) for the settlement leg this engine recognizes; a token with a
// different decimals count would need its own lookup, which this engine
// doesn't track.
const stablecoinDecimals = 6

// erc20TransferABIJSON is the minimal ERC-20 Transfer event declaration
// used to spot a stablecoin leg in a signal's settlement receipt.
const erc20TransferABIJSON = `[
  {"type":"event","name":"Transfer","inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"value","type":"uint256","indexed":false}
  ]}
]`

// Store is the persistence surface Signals needs, satisfied by
// internal/store.Store.
type Store interface {
	PublishSignal(sig *types.Signal) (string, error)
	GetSignal(id string) (*types.Signal, error)
	CloseSignal(id string, exitPrice, pnlPercent float64, now time.Time) (bool, error)
	ExpireStaleSignals(now time.Time, maxAge time.Duration) (int64, error)
	SignalsSince(afterID string, afterCloseTime time.Time) (newlyPublished []types.Signal, newlyClosed []types.Signal, err error)
	RecomputeProviderStats(provider string, pnlPercent float64) error
	Leaderboard() ([]types.SignalProvider, error)
	SubscribersOf(provider string) ([]string, error)
	Subscribe(userID, provider string) error
}

// Engine wires Store, a chain client lookup, and the Delivery Queue
// together for the signals lifecycle.
type Engine struct {
	store       Store
	chains      func(chainID int64) (types.ChainClient, error)
	deliveries  *delivery.Queue
	stablecoins map[string]bool // lowercased address set, cross-chain
	erc20ABI    abi.ABI

	lastNotifiedID        string
	lastNotifiedCloseTime time.Time
}

// New builds an Engine. stablecoinAddresses is used to recognize the
// settlement leg of a verified signal when extracting an effective entry
// price.
func New(store Store, chains func(int64) (types.ChainClient, error), deliveries *delivery.Queue, stablecoinAddresses []string) (*Engine, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20TransferABIJSON))
	if err != nil {
		return nil, err
	}
	stables := make(map[string]bool, len(stablecoinAddresses))
	for _, addr := range stablecoinAddresses {
		stables[strings.ToLower(addr)] = true
	}
	return &Engine{store: store, chains: chains, deliveries: deliveries, stablecoins: stables, erc20ABI: parsed}, nil
}

// Publish records a new signal, or updates an already-published one in
// place (identity is (provider, tx_hash)).
func (e *Engine) Publish(sig *types.Signal) (string, error) {
	if sig.Status == "" {
		sig.Status = types.SignalOpen
	}
	id, err := e.store.PublishSignal(sig)
	if err != nil {
		return "", fmt.Errorf("failed to publish signal for provider %s: %w", sig.Provider, err)
	}
	return id, nil
}

// Verify confirms a published signal's settlement transaction actually
// happened: the receipt must report success and the wallet address must
// appear as some log's address or inside some log's topics/data; the tx's
// own from address is not checked. When a
// stablecoin transfer log is present, it is used to refine the signal's
// entry price.
func (e *Engine) Verify(ctx context.Context, signalID, walletAddress string) error {
	sig, err := e.store.GetSignal(signalID)
	if err != nil {
		return fmt.Errorf("failed to load signal %s: %w", signalID, err)
	}
	client, err := e.chains(sig.ChainID)
	if err != nil {
		return fmt.Errorf("no chain client for signal %s on chain %d: %w", signalID, sig.ChainID, err)
	}
	receipt, err := client.WaitForReceipt(ctx, sig.TxHash)
	if err != nil {
		return fmt.Errorf("failed to fetch receipt for signal %s: %w", signalID, err)
	}
	if receipt.Status != "0x1" {
		return fmt.Errorf("signal %s settlement tx reverted", signalID)
	}
	if !receiptMentionsWallet(receipt, walletAddress) {
		return fmt.Errorf("signal %s settlement tx does not reference wallet %s", signalID, walletAddress)
	}

	if price, ok := e.extractEntryPrice(sig, receipt); ok {
		sig.EntryPrice = price
		if _, err := e.store.PublishSignal(sig); err != nil {
			return fmt.Errorf("failed to record refined entry price for signal %s: %w", signalID, err)
		}
	}
	return nil
}

func receiptMentionsWallet(receipt *types.Receipt, wallet string) bool {
	wallet = strings.ToLower(wallet)
	for _, logEntry := range receipt.Logs {
		if strings.ToLower(logEntry.Address) == wallet {
			return true
		}
		for _, topic := range logEntry.Topics {
			if strings.Contains(strings.ToLower(topic), strings.TrimPrefix(wallet, "0x")) {
				return true
			}
		}
		if strings.Contains(strings.ToLower(logEntry.Data), strings.TrimPrefix(wallet, "0x")) {
			return true
		}
	}
	return false
}

// extractEntryPrice scans the receipt for a Transfer event from a known
// stablecoin contract and, when found, refines the signal's entry price as
// the settled stablecoin amount divided by the token quantity implied by
// the signal's originally recorded collateral and entry price, so the
// stored price reflects the actual settlement instead of an off-chain
// estimate.
func (e *Engine) extractEntryPrice(sig *types.Signal, receipt *types.Receipt) (float64, bool) {
	if sig.Collateral == 0 || sig.EntryPrice == 0 {
		return 0, false
	}
	tokenQty := decimal.NewFromFloat(sig.Collateral).Div(decimal.NewFromFloat(sig.EntryPrice))
	if tokenQty.IsZero() {
		return 0, false
	}

	for _, logEntry := range receipt.Logs {
		if !e.stablecoins[strings.ToLower(logEntry.Address)] {
			continue
		}
		if len(logEntry.Topics) == 0 {
			continue
		}
		event, err := e.erc20ABI.EventByID(common.HexToHash(logEntry.Topics[0]))
		if err != nil || event.Name != "Transfer" {
			continue
		}
		data := util.Hex2Bytes(logEntry.Data)
		if data == nil {
			continue
		}
		args := make(map[string]interface{})
		if err := event.Inputs.UnpackIntoMap(args, data); err != nil {
			continue
		}
		amount, ok := args["value"].(*big.Int)
		if !ok || amount.Sign() == 0 {
			continue
		}
		settled := decimal.NewFromBigInt(amount, -stablecoinDecimals)
		refined, _ := settled.Div(tokenQty).Float64()
		return refined, true
	}
	return 0, false
}

// Poll notifies subscribers of newly published and newly closed signals,
// and expires stale ones. notify is called once per subscriber and message.
func (e *Engine) Poll(ctx context.Context, notify func(userID, message string) error) error {
	now := time.Now().UTC()
	if _, err := e.store.ExpireStaleSignals(now, expiryAge); err != nil {
		return fmt.Errorf("failed to expire stale signals: %w", err)
	}

	published, closed, err := e.store.SignalsSince(e.lastNotifiedID, e.lastNotifiedCloseTime)
	if err != nil {
		return fmt.Errorf("failed to list new signals: %w", err)
	}
	for _, sig := range published {
		e.notifySubscribers(sig.Provider, fmt.Sprintf("new signal from %s: %s %s @ %.4f", sig.Provider, sig.Side, sig.Token, sig.EntryPrice), notify)
		if sig.ID > e.lastNotifiedID {
			e.lastNotifiedID = sig.ID
		}
	}
	for _, sig := range closed {
		e.notifySubscribers(sig.Provider, fmt.Sprintf("signal closed by %s: %s %s pnl %.2f%%", sig.Provider, sig.Side, sig.Token, valueOr(sig.PnLPercent)), notify)
		if sig.ClosedAt != nil && sig.ClosedAt.After(e.lastNotifiedCloseTime) {
			e.lastNotifiedCloseTime = *sig.ClosedAt
		}
	}
	return nil
}

func (e *Engine) notifySubscribers(provider, message string, notify func(userID, message string) error) {
	subscribers, err := e.store.SubscribersOf(provider)
	if err != nil {
		return
	}
	for _, userID := range subscribers {
		_ = notify(userID, message)
	}
}

func valueOr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Close settles an open signal at exitPrice, computing PnL per spec.md
// §4.13's buy/sell formula, and recomputes the provider's running stats.
func (e *Engine) Close(signalID string, exitPrice float64) error {
	sig, err := e.store.GetSignal(signalID)
	if err != nil {
		return fmt.Errorf("failed to load signal %s: %w", signalID, err)
	}
	if sig.EntryPrice == 0 {
		return fmt.Errorf("signal %s has no entry price to close against", signalID)
	}
	pnl := pnlPercent(sig.Side, sig.EntryPrice, exitPrice, sig.Leverage)

	now := time.Now().UTC()
	changed, err := e.store.CloseSignal(signalID, exitPrice, pnl, now)
	if err != nil {
		return fmt.Errorf("failed to close signal %s: %w", signalID, err)
	}
	if !changed {
		return nil // already closed: idempotent no-op
	}
	if err := e.store.RecomputeProviderStats(sig.Provider, pnl); err != nil {
		return fmt.Errorf("failed to recompute stats for provider %s: %w", sig.Provider, err)
	}
	return nil
}

// pnlPercent computes the provider's percentage return via shopspring/decimal
// rather than float64, since repeated division/multiplication on a public
// leaderboard's ranking figures should not accumulate binary-float error.
func pnlPercent(side types.SignalSide, entry, exit, leverage float64) float64 {
	if leverage == 0 {
		leverage = 1
	}
	entryD := decimal.NewFromFloat(entry)
	exitD := decimal.NewFromFloat(exit)
	leverageD := decimal.NewFromFloat(leverage)
	hundred := decimal.NewFromInt(100)

	var diff decimal.Decimal
	if side == types.SideSell {
		diff = entryD.Sub(exitD)
	} else {
		diff = exitD.Sub(entryD)
	}
	pnl := diff.Div(entryD).Mul(hundred).Mul(leverageD)
	result, _ := pnl.Float64()
	return result
}

// Leaderboard passes through Store's ranked, ≥5-closed-signal provider list.
func (e *Engine) Leaderboard() ([]types.SignalProvider, error) {
	return e.store.Leaderboard()
}

// Subscribe registers userID to receive notifications for provider's signals.
func (e *Engine) Subscribe(userID, provider string) error {
	if err := e.store.Subscribe(userID, provider); err != nil {
		return fmt.Errorf("failed to subscribe %s to %s: %w", userID, provider, err)
	}
	return nil
}
