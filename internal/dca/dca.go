// Package dca is the DCA Scheduler (spec.md §4.10): a poll loop over due
// recurring-buy jobs, computing each round's swap amount per the job's
// fixed or value-averaging ("smart") strategy before submitting through
// the Executor.
//
// Dollar-denominated job fields (Amount, TotalSpent) are stored as
// micro-USD fixed point (big.Int scaled by 1e6) so they share the same
// big.Int-based arithmetic the rest of the store uses for on-chain wei
// amounts, rather than introducing a float column.
package dca

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

const usdScale = 1e6

// Store is the persistence surface the Scheduler needs, satisfied by
// internal/store.Store.
type Store interface {
	DueDcaJobs(now time.Time) ([]types.DcaJob, error)
	AdvanceDcaJob(id string, now time.Time, spentThisRound *big.Int, priceThisRound float64, skipped bool) error
	SetDcaJobStatus(id string, status types.JobStatus) error
}

// Executor is the subset of internal/executor.Executor the Scheduler
// depends on, kept narrow so tests can fake it without the full pipeline.
type Executor interface {
	Execute(ctx context.Context, tx types.TransactionRequest, signer types.Signer, meta types.ExecutorMetadata, cb types.ExecutorCallbacks) types.ExecutorResult
}

// SignerFor resolves the signer to use for a job's wallet.
type SignerFor func(job types.DcaJob) (types.Signer, error)

// Scheduler runs the DCA poll loop.
type Scheduler struct {
	store        Store
	aggregator   types.QuoteAggregator
	prices       types.PriceOracle
	executor     Executor
	signerFor    SignerFor
	pollInterval time.Duration
}

// New builds a Scheduler. pollInterval defaults to 60s when zero.
func New(store Store, aggregator types.QuoteAggregator, prices types.PriceOracle, executor Executor, signerFor SignerFor, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 60 * time.Second
	}
	return &Scheduler{store: store, aggregator: aggregator, prices: prices, executor: executor, signerFor: signerFor, pollInterval: pollInterval}
}

// Run polls every pollInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce processes every job due at the current time, returning per-job
// errors keyed by job id (a job error never stops the others).
func (s *Scheduler) RunOnce(ctx context.Context) map[string]error {
	errs := make(map[string]error)
	now := time.Now().UTC()
	jobs, err := s.store.DueDcaJobs(now)
	if err != nil {
		errs["*"] = fmt.Errorf("failed to list due DCA jobs: %w", err)
		return errs
	}
	for _, job := range jobs {
		if err := s.processJob(ctx, job, now); err != nil {
			errs[job.ID] = err
		}
	}
	return errs
}

func (s *Scheduler) processJob(ctx context.Context, job types.DcaJob, now time.Time) error {
	usdAmount, skip, err := computeRoundAmount(job, s.prices, ctx)
	if err != nil {
		// price lookup failed: fall back to fixed, per spec.md §4.10.
		usdAmount = microToUSD(job.Amount)
		skip = false
	}
	if skip {
		return s.store.AdvanceDcaJob(job.ID, now, big.NewInt(0), 0, true)
	}

	amountBase := usdToMicro(usdAmount)
	quote, err := s.aggregator.Quote(ctx, types.QuoteRequest{
		ChainID:     job.ChainID,
		FromToken:   job.FromToken,
		ToToken:     job.ToToken,
		Amount:      amountBase,
		FromAddress: job.WalletAddress,
	})
	if err != nil || quote == nil || quote.Tx == nil {
		// transient quote failure: do not advance, retry next poll.
		return nil
	}

	signer, err := s.signerFor(job)
	if err != nil {
		return fmt.Errorf("failed to resolve signer for job %s: %w", job.ID, err)
	}

	result := s.executor.Execute(ctx, *quote.Tx, signer, types.ExecutorMetadata{
		UserID:    job.UserID,
		SkillName: "dca",
	}, types.ExecutorCallbacks{})
	if !result.Success {
		return nil
	}

	priceThisRound, _ := s.prices.TokenPriceUSD(ctx, job.ChainID, job.ToToken)
	return s.store.AdvanceDcaJob(job.ID, now, amountBase, priceThisRound, false)
}

// computeRoundAmount implements spec.md §4.10's fixed/smart round sizing,
// returning the USD amount to buy this round and whether to skip it.
func computeRoundAmount(job types.DcaJob, prices types.PriceOracle, ctx context.Context) (usdAmount float64, skip bool, err error) {
	perRound := microToUSD(job.Amount)
	if job.Strategy != string(types.StrategySmart) {
		return perRound, false, nil
	}

	currentPrice, err := prices.TokenPriceUSD(ctx, job.ChainID, job.ToToken)
	if err != nil || currentPrice <= 0 {
		return perRound, false, fmt.Errorf("current price unavailable for %s", job.ToToken)
	}
	if job.AvgPrice == nil || *job.AvgPrice <= 0 {
		return perRound, false, nil
	}

	n := float64(job.TotalExecutions + 1)
	targetValue := perRound * n
	totalSpentUSD := microToUSD(job.TotalSpent)
	holdingsTokens := totalSpentUSD / *job.AvgPrice
	currentValue := holdingsTokens * currentPrice
	deficit := targetValue - currentValue
	if deficit <= 0 {
		return 0, true, nil
	}
	cap := 2 * perRound
	if deficit > cap {
		deficit = cap
	}
	return deficit, false, nil
}

func microToUSD(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	f.Quo(f, big.NewFloat(usdScale))
	out, _ := f.Float64()
	return out
}

func usdToMicro(usd float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(usd), big.NewFloat(usdScale))
	out, _ := f.Int(nil)
	return out
}
