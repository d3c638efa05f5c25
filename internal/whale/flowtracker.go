package whale

import (
	"fmt"
	"time"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

const (
	bucketWidth  = 15 * time.Minute
	retention    = 24 * time.Hour
	sampleWindow = 3
)

// FlowStore is the persistence surface the Flow Tracker needs, satisfied
// by internal/store.Store.
type FlowStore interface {
	RecordFlowSample(chainID int64, address string, bucketStart time.Time, netFlowUSD float64) error
	RecentFlowBuckets(chainID int64, address string, n int) ([]float64, error)
	PruneFlowBuckets(olderThan time.Time) error
}

// FlowTracker buckets signed flow per watched address into 15-minute
// windows and classifies the trend over the last three buckets
// (spec.md §4.12.1).
type FlowTracker struct {
	store FlowStore
}

// NewFlowTracker builds a FlowTracker over store.
func NewFlowTracker(store FlowStore) *FlowTracker {
	return &FlowTracker{store: store}
}

// bucketStart floors t to the enclosing 15-minute window.
func bucketStart(t time.Time) time.Time {
	return t.Truncate(bucketWidth)
}

// Record appends a signed flow sample (positive = inbound to the address,
// negative = outbound) and returns the classification of the resulting
// trend, after pruning samples older than the retention window.
func (f *FlowTracker) Record(chainID int64, address string, at time.Time, signedFlowUSD float64) (types.FlowSignal, error) {
	if err := f.store.RecordFlowSample(chainID, address, bucketStart(at), signedFlowUSD); err != nil {
		return types.FlowNone, fmt.Errorf("failed to record flow sample for %s: %w", address, err)
	}
	if err := f.store.PruneFlowBuckets(at.Add(-retention)); err != nil {
		return types.FlowNone, fmt.Errorf("failed to prune flow buckets: %w", err)
	}
	buckets, err := f.store.RecentFlowBuckets(chainID, address, sampleWindow)
	if err != nil {
		return types.FlowNone, fmt.Errorf("failed to load recent flow buckets for %s: %w", address, err)
	}
	return Classify(buckets), nil
}

// Classify implements the three-bucket trend rule: same-sign across all
// three is accumulation/distribution, strictly increasing magnitude is
// acceleration, and a sign flip relative to the prior bucket is reversal.
// Fewer than three buckets yields no signal.
func Classify(buckets []float64) types.FlowSignal {
	if len(buckets) < sampleWindow {
		return types.FlowNone
	}
	a, b, c := buckets[len(buckets)-3], buckets[len(buckets)-2], buckets[len(buckets)-1]

	if sign(b) != 0 && sign(c) != 0 && sign(b) != sign(c) {
		return types.FlowReversal
	}
	if sign(a) == sign(b) && sign(b) == sign(c) && sign(a) != 0 {
		if abs(c) > abs(b) && abs(b) > abs(a) {
			return types.FlowAcceleration
		}
		if c > 0 {
			return types.FlowAccumulation
		}
		return types.FlowDistribution
	}
	return types.FlowNone
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
