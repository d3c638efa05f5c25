package util

import (
	"errors"
	"math/big"
	"strings"

	"github.com/chainclaw-xyz/chainclaw/pkg/types"
)

// ExtractGasCost returns gas_used * effective_gas_price from a mined
// receipt, the value the Executor converts to gas_cost_usd when it records a
// confirmed transaction. gas_used and effective_gas_price arrive as the hex
// strings ChainClaw's ChainClient returns rather than go-ethereum's native
// uint64/*big.Int receipt, so this parses them as hex directly instead of
// assuming a caller already decoded them.
func ExtractGasCost(receipt *types.Receipt) (*big.Int, error) {
	if receipt == nil {
		return nil, errors.New("nil receipt")
	}
	gasUsed, ok := new(big.Int).SetString(trimHexPrefix(receipt.GasUsed), 16)
	if !ok {
		return nil, errors.New("malformed gas_used field")
	}
	price := big.NewInt(0)
	if receipt.EffectiveGasPrice != "" {
		parsed, ok := new(big.Int).SetString(trimHexPrefix(receipt.EffectiveGasPrice), 16)
		if !ok {
			return nil, errors.New("malformed effective_gas_price field")
		}
		price = parsed
	}
	return new(big.Int).Mul(gasUsed, price), nil
}

func trimHexPrefix(s string) string {
	return strings.TrimPrefix(s, "0x")
}
