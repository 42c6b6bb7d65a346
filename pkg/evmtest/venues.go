package evmtest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"moonx-swap/pkg/contracts"
)

// Pool configures one fee tier of an emulated AMM
type Pool struct {
	Address   common.Address
	AmountOut *big.Int
	Revert    bool
}

// InstallAMM emulates a v3 factory and quoter. Pools are keyed by fee tier
// and answer for any token pair.
func (b *Backend) InstallAMM(factory, quoter common.Address, pools map[uint32]Pool) {
	b.Handle(factory, contracts.Factory, "getPool", func(args []interface{}) ([]interface{}, error) {
		fee := args[2].(*big.Int)
		return []interface{}{pools[uint32(fee.Uint64())].Address}, nil
	})
	b.Handle(quoter, contracts.Quoter, "quoteExactInputSingle", func(args []interface{}) ([]interface{}, error) {
		params := *abi.ConvertType(args[0], new(contracts.QuoteExactInputSingleParams)).(*contracts.QuoteExactInputSingleParams)
		pool, ok := pools[uint32(params.Fee.Uint64())]
		if !ok || pool.Revert || pool.AmountOut == nil {
			return nil, NewRevertError("SPL")
		}
		return []interface{}{new(big.Int).Set(pool.AmountOut), big.NewInt(0), uint32(1), big.NewInt(80000)}, nil
	})
}

// InstallWowToken emulates a bonding-curve token with fixed quotes
func (b *Backend) InstallWowToken(addr common.Address, symbol string, marketType uint8, buyQuote, sellQuote *big.Int) *Token {
	tok := b.AddToken(addr, symbol, 18)
	b.Handle(addr, contracts.Wow, "marketType", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{marketType}, nil
	})
	b.Handle(addr, contracts.Wow, "getEthBuyQuote", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{new(big.Int).Set(buyQuote)}, nil
	})
	b.Handle(addr, contracts.Wow, "getTokenSellQuote", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{new(big.Int).Set(sellQuote)}, nil
	})
	return tok
}
