package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"moonx-swap/pkg/types"
)

// Call packs method, runs a read-only call against to and unpacks the outputs
func Call(ctx context.Context, caller ethereum.ContractCaller, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}

	return values, nil
}

// CallBig runs a call whose first output is a uint256
func CallBig(ctx context.Context, caller ethereum.ContractCaller, contract abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	values, err := Call(ctx, caller, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want uint256", method, values[0])
	}
	return v, nil
}

// TokenMetadata describes an ERC-20 token for display
type TokenMetadata struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TokenReader reads ERC-20 state through a contract caller
type TokenReader struct {
	caller ethereum.ContractCaller
}

// NewTokenReader creates a token reader
func NewTokenReader(caller ethereum.ContractCaller) *TokenReader {
	return &TokenReader{caller: caller}
}

// Metadata returns symbol and decimals. The native coin reads as ETH/18.
func (r *TokenReader) Metadata(ctx context.Context, token common.Address) (TokenMetadata, error) {
	meta := TokenMetadata{Address: token}
	if types.IsNative(token) {
		meta.Symbol = "ETH"
		meta.Decimals = 18
		return meta, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := Call(gctx, r.caller, ERC20, token, "symbol")
		if err != nil {
			return err
		}
		meta.Symbol, _ = values[0].(string)
		return nil
	})
	g.Go(func() error {
		values, err := Call(gctx, r.caller, ERC20, token, "decimals")
		if err != nil {
			return err
		}
		meta.Decimals, _ = values[0].(uint8)
		return nil
	})
	if err := g.Wait(); err != nil {
		return TokenMetadata{}, types.Classify(types.KindInvalidToken, fmt.Errorf("token %s: %w", token.Hex(), err))
	}

	return meta, nil
}

// BalanceOf returns the ERC-20 balance of account
func (r *TokenReader) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return CallBig(ctx, r.caller, ERC20, token, "balanceOf", account)
}

// Allowance returns how much spender may move on behalf of owner
func (r *TokenReader) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return CallBig(ctx, r.caller, ERC20, token, "allowance", owner, spender)
}

// PackApprove encodes approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20.Pack("approve", spender, amount)
}

// PackWithdraw encodes the WETH withdraw(wad) call
func PackWithdraw(amount *big.Int) ([]byte, error) {
	return ERC20.Pack("withdraw", amount)
}

// PackMoonXBuy encodes moonXBuy(tokenOut, slippage, referrer)
func PackMoonXBuy(tokenOut common.Address, slippage uint8, referrer common.Address) ([]byte, error) {
	return MoonX.Pack("moonXBuy", tokenOut, slippage, referrer)
}

// PackMoonXSell encodes moonXSell(tokenIn, [0, amount], slippage, referrer)
func PackMoonXSell(tokenIn common.Address, amount *big.Int, slippage uint8, referrer common.Address) ([]byte, error) {
	return MoonX.Pack("moonXSell", tokenIn, [2]*big.Int{big.NewInt(0), amount}, slippage, referrer)
}

// PackPlaceOrder encodes the Wow placeOrder(token, amount, isBuy) call
func PackPlaceOrder(token common.Address, amount *big.Int, isBuy bool) ([]byte, error) {
	return Wow.Pack("placeOrder", token, amount, isBuy)
}

// QuoteExactInputSingleParams mirrors the QuoterV2 params tuple
type QuoteExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}
