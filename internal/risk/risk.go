// Package risk is the Risk Engine (spec.md §4.5): a read-through cache in
// front of an external risk oracle, plus the allow/block decision and the
// deterministic report formatter confirmations show the user.
package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// Store is the persistence surface the Risk Engine needs, satisfied by
// internal/store.Store.
type Store interface {
	GetRiskReport(chainID int64, contract string) (*types.RiskReport, error)
	UpsertRiskReport(r *types.RiskReport) error
	ContractListLookup(chainID int64, address string) (types.ContractListAction, string, error)
}

// Engine wires a Store and an external oracle together, collapsing
// concurrent cache misses for the same key with singleflight the way a
// read-through cache should.
type Engine struct {
	store  Store
	oracle types.RiskOracleClient
	ttl    time.Duration
	group  singleflight.Group
}

// New builds an Engine. ttl bounds how long a cached RiskReport is trusted
// before analyze forces a refetch.
func New(store Store, oracle types.RiskOracleClient, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Engine{store: store, oracle: oracle, ttl: ttl}
}

// Analyze returns a fresh-enough RiskReport, fetching from the oracle and
// persisting on a cache miss or stale entry. Concurrent Analyze calls for
// the same (chain_id, contract) share one oracle round trip.
func (e *Engine) Analyze(ctx context.Context, chainID int64, contract string) (*types.RiskReport, error) {
	cached, err := e.store.GetRiskReport(chainID, contract)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk cache for %d/%s: %w", chainID, contract, err)
	}
	if cached != nil && (cached.RiskLevel == types.RiskCritical || cached.Honeypot) {
		return cached, nil
	}
	if cached != nil && time.Since(cached.CachedAt) < e.ttl {
		return cached, nil
	}

	key := fmt.Sprintf("%d:%s", chainID, contract)
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		if e.oracle == nil {
			return nil, fmt.Errorf("no risk oracle configured for %d/%s", chainID, contract)
		}
		report, err := e.oracle.GetTokenRisk(ctx, chainID, contract)
		if err != nil {
			return nil, fmt.Errorf("risk oracle call failed for %d/%s: %w", chainID, contract, err)
		}
		report.ChainID = chainID
		report.Contract = contract
		report.CachedAt = time.Now().UTC()
		if err := e.store.UpsertRiskReport(report); err != nil {
			return nil, fmt.Errorf("failed to persist risk report for %d/%s: %w", chainID, contract, err)
		}
		return report, nil
	})
	if err != nil {
		if cached != nil {
			return cached, nil
		}
		return nil, err
	}
	return v.(*types.RiskReport), nil
}

// BlockDecision is the outcome of ShouldBlock.
type BlockDecision struct {
	Blocked bool
	Reason  string
}

// ShouldBlock consults the contract allow/block list first: a block entry
// blocks, and an allow entry returns not-blocked without consulting the
// RiskReport. Only a contract on neither list is checked against the
// RiskReport, where honeypot or risk_level=critical blocks.
func (e *Engine) ShouldBlock(ctx context.Context, userID string, chainID int64, contract string) (BlockDecision, error) {
	action, reason, err := e.store.ContractListLookup(chainID, contract)
	if err != nil {
		return BlockDecision{}, fmt.Errorf("failed to consult contract list for %d/%s: %w", chainID, contract, err)
	}
	if action == types.ActionBlock {
		return BlockDecision{Blocked: true, Reason: reason}, nil
	}
	if action == types.ActionAllow {
		return BlockDecision{Blocked: false}, nil
	}

	report, err := e.Analyze(ctx, chainID, contract)
	if err != nil {
		return BlockDecision{}, err
	}
	if report.Honeypot {
		return BlockDecision{Blocked: true, Reason: "contract flagged as honeypot"}, nil
	}
	if report.RiskLevel == types.RiskCritical {
		return BlockDecision{Blocked: true, Reason: "contract risk level is critical"}, nil
	}
	return BlockDecision{Blocked: false}, nil
}

// NeedsWarning reports whether report's risk level should be surfaced to
// the user before proceeding, without being an outright block.
func NeedsWarning(report *types.RiskReport) bool {
	return report.RiskLevel == types.RiskMedium || report.RiskLevel == types.RiskHigh
}

// FormatReport renders a stable, deterministic human summary of a
// RiskReport for confirmation prompts. Dimensions are sorted by name so
// the same report always formats identically.
func FormatReport(report *types.RiskReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk: %s (score %d/100) for %s\n", report.RiskLevel, report.OverallScore, report.Contract)

	var flags []string
	if report.Honeypot {
		flags = append(flags, "honeypot")
	}
	if report.BuyTax {
		flags = append(flags, "buy tax")
	}
	if report.SellTax {
		flags = append(flags, "sell tax")
	}
	if !report.VerifiedSource {
		flags = append(flags, "unverified source")
	}
	if report.OwnerPrivileges {
		flags = append(flags, "owner privileges")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, "Flags: %s\n", strings.Join(flags, ", "))
	}

	dims := append([]types.RiskDimension(nil), report.Dimensions...)
	sort.Slice(dims, func(i, j int) bool { return dims[i].Name < dims[j].Name })
	for _, d := range dims {
		fmt.Fprintf(&b, "- %s: %d (%s)\n", d.Name, d.Score, d.Note)
	}
	return b.String()
}
