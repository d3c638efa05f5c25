package executor

import (
	"context"
	"math/big"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// multiplier and tip are the per-strategy EIP-1559 fee bump table from
// spec.md §4.8 stage 7: slow adds a 1 gwei tip at 1.10x base fee, standard
// 1.5 gwei at 1.25x, fast 3 gwei at 2.00x.
var feeTable = map[types.GasStrategy]struct {
	multiplierNum int64
	multiplierDen int64
	tipGwei       int64
}{
	types.Slow:     {11, 10, 1},
	types.Standard: {5, 4, 15}, // 1.25x, 1.5 gwei (expressed as 15 tenths)
	types.Fast:     {2, 1, 3},
}

// StaticGasOptimizer implements Executor.GasOptimizer with the fixed
// multiplier table, no external gas-price feed.
type StaticGasOptimizer struct{}

// NewStaticGasOptimizer builds the fixed-table optimizer.
func NewStaticGasOptimizer() *StaticGasOptimizer { return &StaticGasOptimizer{} }

// EstimateFees applies strategy's multiplier/tip to baseFee.
func (StaticGasOptimizer) EstimateFees(ctx context.Context, chainID int64, strategy types.GasStrategy, baseFee *big.Int) types.Fees {
	row, ok := feeTable[strategy]
	if !ok {
		strategy = types.Standard
		row = feeTable[strategy]
	}
	if baseFee == nil {
		baseFee = big.NewInt(0)
	}

	maxFee := new(big.Int).Mul(baseFee, big.NewInt(row.multiplierNum))
	maxFee.Div(maxFee, big.NewInt(row.multiplierDen))

	var tip *big.Int
	if strategy == types.Standard {
		tip = new(big.Int).Mul(big.NewInt(row.tipGwei), big.NewInt(1e8)) // tenths of a gwei -> wei
	} else {
		tip = new(big.Int).Mul(big.NewInt(row.tipGwei), big.NewInt(1e9))
	}
	maxFee.Add(maxFee, tip)

	return types.Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}
}
