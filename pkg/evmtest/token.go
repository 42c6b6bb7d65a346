package evmtest

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"moonx-swap/pkg/contracts"
)

// Token is an emulated ERC-20 living in a Backend
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8

	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// AddToken deploys an emulated ERC-20 at addr
func (b *Backend) AddToken(addr common.Address, symbol string, decimals uint8) *Token {
	tok := &Token{
		Address:    addr,
		Symbol:     symbol,
		Decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}

	b.mu.Lock()
	b.tokens[addr] = tok
	b.mu.Unlock()

	b.Handle(addr, contracts.ERC20, "symbol", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{tok.Symbol}, nil
	})
	b.Handle(addr, contracts.ERC20, "decimals", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{tok.Decimals}, nil
	})
	b.Handle(addr, contracts.ERC20, "balanceOf", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{tok.BalanceOf(args[0].(common.Address))}, nil
	})
	b.Handle(addr, contracts.ERC20, "allowance", func(args []interface{}) ([]interface{}, error) {
		return []interface{}{tok.Allowance(args[0].(common.Address), args[1].(common.Address))}, nil
	})
	return tok
}

// BalanceOf returns the balance of account
func (t *Token) BalanceOf(account common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bal, ok := t.balances[account]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// SetBalance overwrites the balance of account
func (t *Token) SetBalance(account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[account] = new(big.Int).Set(amount)
}

// Allowance returns how much spender may move for owner
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return big.NewInt(0)
}

// SetAllowance overwrites the allowance of spender for owner
func (t *Token) SetAllowance(owner, spender common.Address, amount *big.Int) {
	t.setAllowance(owner, spender, amount)
}

func (t *Token) setAllowance(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

func (t *Token) addBalance(account common.Address, delta *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal, ok := t.balances[account]
	if !ok {
		bal = big.NewInt(0)
	}
	t.balances[account] = new(big.Int).Add(bal, delta)
}
