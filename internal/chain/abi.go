package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20JSON = `[
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// Some older tokens (MKR, SAI) return symbol as bytes32.
const erc20Bytes32SymbolJSON = `[
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]}
]`

const bondFactoryJSON = `[
  {"type":"function","name":"createBond","stateMutability":"nonpayable","inputs":[
    {"name":"name","type":"string"},
    {"name":"symbol","type":"string"},
    {"name":"maturity","type":"uint256"},
    {"name":"paymentToken","type":"address"},
    {"name":"collateralToken","type":"address"},
    {"name":"collateralTokenAmount","type":"uint256"},
    {"name":"convertibleTokenAmount","type":"uint256"},
    {"name":"bonds","type":"uint256"}
  ],"outputs":[{"name":"clone","type":"address"}]},
  {"type":"event","name":"BondCreated","anonymous":false,"inputs":[
    {"name":"newBond","type":"address","indexed":false},
    {"name":"name","type":"string","indexed":false},
    {"name":"symbol","type":"string","indexed":false},
    {"name":"owner","type":"address","indexed":true},
    {"name":"maturity","type":"uint256","indexed":false},
    {"name":"paymentToken","type":"address","indexed":true},
    {"name":"collateralToken","type":"address","indexed":true},
    {"name":"collateralTokenAmount","type":"uint256","indexed":false},
    {"name":"convertibleTokenAmount","type":"uint256","indexed":false},
    {"name":"bonds","type":"uint256","indexed":false}
  ]}
]`

const bondJSON = `[
  {"type":"function","name":"pay","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"withdrawExcessCollateral","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"receiver","type":"address"}],"outputs":[]},
  {"type":"function","name":"convert","stateMutability":"nonpayable","inputs":[{"name":"bonds","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"redeem","stateMutability":"nonpayable","inputs":[{"name":"bonds","type":"uint256"}],"outputs":[]}
]`

var (
	erc20ABI        = mustParse("erc20", erc20JSON)
	erc20Bytes32ABI = mustParse("erc20 bytes32", erc20Bytes32SymbolJSON)
	bondFactoryABI  = mustParse("bond factory", bondFactoryJSON)
	bondABI         = mustParse("bond", bondJSON)
)

func mustParse(name, def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("chain: parsing %s abi: %v", name, err))
	}
	return parsed
}
