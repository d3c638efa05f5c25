// Package guardrail is the Guardrails component (spec.md §4.7): three
// fixed-order spend/frequency checks plus the confirmation threshold and
// the last-send bookkeeping the cooldown rule reads.
package guardrail

import (
	"fmt"
	"math/big"
	"time"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// Store is the persistence surface Guardrails needs, satisfied by
// internal/store.Store.
type Store interface {
	GetUserLimits(userID string) (types.UserLimits, error)
	SumValueUSDSince(userID string, since time.Time, nativePriceUSD float64) (float64, error)
	LastSentAt(userID string) (time.Time, error)
	RecordTxSent(userID string) error
}

// Guardrails evaluates spend and frequency limits for a user before the
// Executor lets a transaction proceed.
type Guardrails struct {
	store Store
}

// New builds a Guardrails over store.
func New(store Store) *Guardrails {
	return &Guardrails{store: store}
}

// Check runs the three rules in fixed order against tx for userID,
// converting tx's native value to USD via nativePriceUSD (0 means
// "unknown", in which case USD-based rules are skipped rather than
// spuriously failed).
func (g *Guardrails) Check(userID string, tx types.TransactionRequest, nativePriceUSD float64) ([]types.Check, error) {
	limits, err := g.store.GetUserLimits(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load limits for %s: %w", userID, err)
	}

	valueUSD := weiToUSD(tx.ValueNative, nativePriceUSD)
	checks := make([]types.Check, 0, 3)

	checks = append(checks, g.checkMaxPerTx(valueUSD, limits, nativePriceUSD))
	dayCheck, err := g.checkMaxPerDay(userID, valueUSD, limits, nativePriceUSD)
	if err != nil {
		return nil, err
	}
	checks = append(checks, dayCheck)
	cooldownCheck, err := g.checkCooldown(userID, limits)
	if err != nil {
		return nil, err
	}
	checks = append(checks, cooldownCheck)

	return checks, nil
}

func (g *Guardrails) checkMaxPerTx(valueUSD float64, limits types.UserLimits, nativePriceUSD float64) types.Check {
	if nativePriceUSD == 0 {
		return types.Check{Rule: "max_per_tx", Passed: true, Message: "native price unknown, skipped"}
	}
	if valueUSD <= limits.MaxPerTxUSD {
		return types.Check{Rule: "max_per_tx", Passed: true, Message: fmt.Sprintf("$%.2f <= $%.2f", valueUSD, limits.MaxPerTxUSD)}
	}
	return types.Check{Rule: "max_per_tx", Passed: false, Message: fmt.Sprintf("$%.2f exceeds per-tx limit of $%.2f", valueUSD, limits.MaxPerTxUSD)}
}

func (g *Guardrails) checkMaxPerDay(userID string, valueUSD float64, limits types.UserLimits, nativePriceUSD float64) (types.Check, error) {
	if nativePriceUSD == 0 {
		return types.Check{Rule: "max_per_day", Passed: true, Message: "native price unknown, skipped"}, nil
	}
	spent, err := g.store.SumValueUSDSince(userID, time.Now().Add(-24*time.Hour), nativePriceUSD)
	if err != nil {
		return types.Check{}, fmt.Errorf("failed to compute daily spend for %s: %w", userID, err)
	}
	total := spent + valueUSD
	if total <= limits.MaxPerDayUSD {
		return types.Check{Rule: "max_per_day", Passed: true, Message: fmt.Sprintf("$%.2f <= $%.2f", total, limits.MaxPerDayUSD)}, nil
	}
	return types.Check{Rule: "max_per_day", Passed: false, Message: fmt.Sprintf("$%.2f would exceed daily limit of $%.2f", total, limits.MaxPerDayUSD)}, nil
}

func (g *Guardrails) checkCooldown(userID string, limits types.UserLimits) (types.Check, error) {
	last, err := g.store.LastSentAt(userID)
	if err != nil {
		return types.Check{}, fmt.Errorf("failed to load last-send time for %s: %w", userID, err)
	}
	if last.IsZero() {
		return types.Check{Rule: "cooldown", Passed: true, Message: "no prior send"}, nil
	}
	elapsed := time.Since(last)
	required := time.Duration(limits.CooldownSeconds) * time.Second
	if elapsed >= required {
		return types.Check{Rule: "cooldown", Passed: true, Message: fmt.Sprintf("%.0fs since last send >= %ds", elapsed.Seconds(), limits.CooldownSeconds)}, nil
	}
	return types.Check{Rule: "cooldown", Passed: false, Message: fmt.Sprintf("only %.0fs since last send, need %ds", elapsed.Seconds(), limits.CooldownSeconds)}, nil
}

// Limits exposes the user's configured thresholds, used by the Executor's
// confirmation gate to evaluate RequiresConfirmation against the same
// limits Check used (spec.md §4.8 stage 5).
func (g *Guardrails) Limits(userID string) (types.UserLimits, error) {
	return g.store.GetUserLimits(userID)
}

// RequiresConfirmation reports whether valueUSD crosses half the user's
// per-tx limit.
func RequiresConfirmation(valueUSD float64, limits types.UserLimits) bool {
	return valueUSD > 0.5*limits.MaxPerTxUSD
}

// RecordTxSent stamps the last-send time for userID, called immediately
// after broadcast (spec.md §4.7, §4.8 stage 10).
func (g *Guardrails) RecordTxSent(userID string) error {
	return g.store.RecordTxSent(userID)
}

func weiToUSD(wei *big.Int, nativePriceUSD float64) float64 {
	if wei == nil || nativePriceUSD == 0 {
		return 0
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, big.NewFloat(1e18))
	f.Mul(f, big.NewFloat(nativePriceUSD))
	v, _ := f.Float64()
	return v
}
