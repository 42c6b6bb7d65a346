package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ERC-20 plus the WETH withdraw entry point
const erc20ABIJSON = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"},
{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function","stateMutability":"view"},
{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function","stateMutability":"view"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function","stateMutability":"nonpayable"},
{"constant":false,"inputs":[{"name":"wad","type":"uint256"}],"name":"withdraw","outputs":[],"type":"function","stateMutability":"nonpayable"}
]`

// MoonX router entry points
const moonXABIJSON = `[
{"inputs":[{"name":"tokenOut","type":"address"},{"name":"slippagePercentage","type":"uint8"},{"name":"referrer","type":"address"}],"name":"moonXBuy","outputs":[],"type":"function","stateMutability":"payable"},
{"inputs":[{"name":"tokenIn","type":"address"},{"name":"amountIns","type":"uint256[2]"},{"name":"slippagePercentage","type":"uint8"},{"name":"referrer","type":"address"}],"name":"moonXSell","outputs":[],"type":"function","stateMutability":"nonpayable"}
]`

// Wow bonding-curve token and order router
const wowABIJSON = `[
{"inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"isBuy","type":"bool"}],"name":"placeOrder","outputs":[],"type":"function","stateMutability":"payable"},
{"inputs":[],"name":"marketType","outputs":[{"name":"","type":"uint8"}],"type":"function","stateMutability":"view"},
{"inputs":[{"name":"ethOrderSize","type":"uint256"}],"name":"getEthBuyQuote","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"},
{"inputs":[{"name":"tokenOrderSize","type":"uint256"}],"name":"getTokenBuyQuote","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"},
{"inputs":[{"name":"tokenOrderSize","type":"uint256"}],"name":"getTokenSellQuote","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"}
]`

// Uniswap v3 factory
const factoryABIJSON = `[
{"inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"fee","type":"uint24"}],"name":"getPool","outputs":[{"name":"","type":"address"}],"type":"function","stateMutability":"view"}
]`

// Uniswap v3 QuoterV2
const quoterABIJSON = `[
{"inputs":[{"components":[{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"fee","type":"uint24"},{"name":"sqrtPriceLimitX96","type":"uint160"}],"name":"params","type":"tuple"}],"name":"quoteExactInputSingle","outputs":[{"name":"amountOut","type":"uint256"},{"name":"sqrtPriceX96After","type":"uint160"},{"name":"initializedTicksCrossed","type":"uint32"},{"name":"gasEstimate","type":"uint256"}],"type":"function","stateMutability":"nonpayable"}
]`

// Parsed contract ABIs
var (
	ERC20   = mustParse(erc20ABIJSON)
	MoonX   = mustParse(moonXABIJSON)
	Wow     = mustParse(wowABIJSON)
	Factory = mustParse(factoryABIJSON)
	Quoter  = mustParse(quoterABIJSON)
)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("invalid contract ABI: " + err.Error())
	}
	return parsed
}
