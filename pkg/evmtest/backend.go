// Package evmtest provides an in-memory chain backend for tests.
package evmtest

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"moonx-swap/pkg/contracts"
)

// Handler answers a contract call with already decoded arguments
type Handler func(args []interface{}) ([]interface{}, error)

// SentTx records a transaction accepted by the backend
type SentTx struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Hash  common.Hash
	Tx    *types.Transaction
}

// Method returns the 4-byte selector of the call data
func (s SentTx) Method() []byte {
	if len(s.Data) < 4 {
		return nil
	}
	return s.Data[:4]
}

type handlerKey struct {
	to       common.Address
	selector [4]byte
}

type registered struct {
	method  abi.Method
	handler Handler
}

// Backend is a programmable chain.Backend
type Backend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	GasPrice     *big.Int
	TipCap       *big.Int
	BaseFee      *big.Int
	GasEstimate  uint64
	EstimateErr  error
	SendErr      error

	// PendingPolls is the number of receipt polls answered with NotFound
	PendingPolls int
	// Revert decides whether a sent transaction reverts once mined
	Revert func(SentTx) bool
	// OnSend runs after a transaction is accepted and applied
	OnSend func(SentTx)

	handlers  map[handlerKey]registered
	tokens    map[common.Address]*Token
	native    map[common.Address]*big.Int
	receipts  map[common.Hash]uint64
	polls     map[common.Hash]int
	sent      []SentTx
	calls     int
	estimates []ethereum.CallMsg
}

// NewBackend creates a backend for chainID with 1 gwei fees
func NewBackend(chainID int64) *Backend {
	return &Backend{
		ChainIDValue: big.NewInt(chainID),
		GasPrice:     big.NewInt(1_000_000_000),
		TipCap:       big.NewInt(1_000_000_000),
		BaseFee:      big.NewInt(1_000_000_000),
		GasEstimate:  100_000,
		handlers:     make(map[handlerKey]registered),
		tokens:       make(map[common.Address]*Token),
		native:       make(map[common.Address]*big.Int),
		receipts:     make(map[common.Hash]uint64),
		polls:        make(map[common.Hash]int),
	}
}

// Handle registers a handler for method of contract deployed at to
func (b *Backend) Handle(to common.Address, contract abi.ABI, method string, h Handler) {
	m, ok := contract.Methods[method]
	if !ok {
		panic("evmtest: unknown method " + method)
	}
	var sel [4]byte
	copy(sel[:], m.ID)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[handlerKey{to: to, selector: sel}] = registered{method: m, handler: h}
}

// SetNativeBalance sets the native coin balance of account
func (b *Backend) SetNativeBalance(account common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.native[account] = new(big.Int).Set(amount)
}

// Calls returns how many backend methods have been invoked
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Sent returns the accepted transactions in submission order
func (b *Backend) Sent() []SentTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SentTx, len(b.sent))
	copy(out, b.sent)
	return out
}

// Estimates returns the messages passed to EstimateGas
func (b *Backend) Estimates() []ethereum.CallMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ethereum.CallMsg, len(b.estimates))
	copy(out, b.estimates)
	return out
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.calls++
	if msg.To == nil || len(msg.Data) < 4 {
		b.mu.Unlock()
		return nil, fmt.Errorf("execution reverted")
	}
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	reg, ok := b.handlers[handlerKey{to: *msg.To, selector: sel}]
	b.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %s %x", msg.To.Hex(), sel)
	}

	args, err := reg.method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("evmtest: decode %s: %w", reg.method.Name, err)
	}
	out, err := reg.handler(args)
	if err != nil {
		return nil, err
	}
	return reg.method.Outputs.Pack(out...)
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.estimates = append(b.estimates, msg)
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasEstimate, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return new(big.Int).Set(b.TipCap), nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	h := &types.Header{Number: big.NewInt(1)}
	if b.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(b.BaseFee)
	}
	return h, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	var n uint64
	for _, s := range b.sent {
		if s.From == account {
			n++
		}
	}
	return n, nil
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if bal, ok := b.native[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

// SendTransaction accepts a signed transaction
func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return fmt.Errorf("evmtest: invalid signature: %w", err)
	}
	to := common.Address{}
	if tx.To() != nil {
		to = *tx.To()
	}
	_, err = b.Submit(SentTx{From: from, To: to, Data: tx.Data(), Value: tx.Value(), Hash: tx.Hash(), Tx: tx})
	return err
}

// Submit records a transaction as if it had been broadcast. Hash is derived
// when unset. Used directly by the fake browser wallet.
func (b *Backend) Submit(s SentTx) (common.Hash, error) {
	b.mu.Lock()
	b.calls++
	if b.SendErr != nil {
		err := b.SendErr
		b.mu.Unlock()
		return common.Hash{}, err
	}
	if s.Value == nil {
		s.Value = big.NewInt(0)
	}
	if s.Hash == (common.Hash{}) {
		s.Hash = crypto.Keccak256Hash(s.From.Bytes(), s.To.Bytes(), s.Data, s.Value.Bytes(), big.NewInt(int64(len(b.sent))).Bytes())
	}

	status := types.ReceiptStatusSuccessful
	if b.Revert != nil && b.Revert(s) {
		status = types.ReceiptStatusFailed
	}
	b.receipts[s.Hash] = status
	b.sent = append(b.sent, s)
	if status == types.ReceiptStatusSuccessful {
		b.apply(s)
	}
	onSend := b.OnSend
	b.mu.Unlock()

	if onSend != nil {
		onSend(s)
	}
	return s.Hash, nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	status, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if b.polls[txHash] < b.PendingPolls {
		b.polls[txHash]++
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: status, TxHash: txHash, BlockNumber: big.NewInt(1)}, nil
}

// apply mutates emulated token state for successful transactions
func (b *Backend) apply(s SentTx) {
	tok, ok := b.tokens[s.To]
	if !ok || len(s.Data) < 4 {
		return
	}
	switch {
	case bytes.Equal(s.Data[:4], contracts.ERC20.Methods["approve"].ID):
		args, err := contracts.ERC20.Methods["approve"].Inputs.Unpack(s.Data[4:])
		if err != nil {
			return
		}
		tok.setAllowance(s.From, args[0].(common.Address), args[1].(*big.Int))
	case bytes.Equal(s.Data[:4], contracts.ERC20.Methods["withdraw"].ID):
		args, err := contracts.ERC20.Methods["withdraw"].Inputs.Unpack(s.Data[4:])
		if err != nil {
			return
		}
		amount := args[0].(*big.Int)
		tok.addBalance(s.From, new(big.Int).Neg(amount))
		bal := b.native[s.From]
		if bal == nil {
			bal = big.NewInt(0)
		}
		b.native[s.From] = new(big.Int).Add(bal, amount)
	}
}

// RevertError mimics a JSON-RPC error carrying Error(string) revert data
type RevertError struct {
	Message string
	Reason  string
}

// NewRevertError builds a revert with an ABI encoded reason
func NewRevertError(reason string) *RevertError {
	return &RevertError{Message: "execution reverted", Reason: reason}
}

func (e *RevertError) Error() string  { return e.Message }
func (e *RevertError) ErrorCode() int { return 3 }

// ErrorData returns the hex encoded Error(string) payload
func (e *RevertError) ErrorData() interface{} {
	return hexutil.Encode(EncodeRevert(e.Reason))
}

// EncodeRevert ABI encodes reason as Error(string)
func EncodeRevert(reason string) []byte {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	return append(crypto.Keccak256([]byte("Error(string)"))[:4], packed...)
}
