package whale

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainclaw-xyz/chainclaw/pkg/contractclient"
)

// routerSwapABIJSON declares the subset of the Uniswap-V2-style router
// interface used to recognize a swap call well enough to pull the target
// token out of its calldata. Every major EVM router (Uniswap, Sushi,
// PancakeSwap, blackhole's own RouterV2) ships a function with this
// "swapExact...For...(...,address[] path,...)" shape, so one shared ABI
// covers them all for decode purposes.
const routerSwapABIJSON = `[
  {"name":"swapExactTokensForTokens","type":"function","inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}
  ]},
  {"name":"swapExactETHForTokens","type":"function","inputs":[
    {"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}
  ]},
  {"name":"swapExactTokensForETH","type":"function","inputs":[
    {"name":"amountIn","type":"uint256"},
    {"name":"amountOutMin","type":"uint256"},
    {"name":"path","type":"address[]"},
    {"name":"to","type":"address"},
    {"name":"deadline","type":"uint256"}
  ]}
]`

// RouterRegistry recognizes known DEX router addresses and decodes their
// swap calldata to find the token a whale is buying.
type RouterRegistry struct {
	routers map[string]*contractclient.ContractClient
}

// NewRouterRegistry builds a registry over the given router addresses
// (lowercase-insensitive), all decoded against the shared swap ABI.
func NewRouterRegistry(routerAddresses []string) (*RouterRegistry, error) {
	parsed, err := abi.JSON(strings.NewReader(routerSwapABIJSON))
	if err != nil {
		return nil, err
	}
	reg := &RouterRegistry{routers: make(map[string]*contractclient.ContractClient)}
	for _, addr := range routerAddresses {
		reg.routers[strings.ToLower(addr)] = contractclient.NewContractClient(nil, common.HexToAddress(addr), parsed)
	}
	return reg, nil
}

// TargetToken returns the last hop of a swap's path if to is a known
// router and data decodes as one of the registered swap methods. ok is
// false when to isn't a known router or the calldata doesn't decode.
func (r *RouterRegistry) TargetToken(to string, data []byte) (token string, ok bool) {
	client, known := r.routers[strings.ToLower(to)]
	if !known || len(data) < 4 {
		return "", false
	}
	decoded, err := client.DecodeTransaction(data)
	if err != nil {
		return "", false
	}
	path, ok := decoded.Inputs["path"].([]common.Address)
	if !ok || len(path) == 0 {
		return "", false
	}
	return path[len(path)-1].Hex(), true
}
