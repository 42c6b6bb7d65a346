package evmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RPCError is a JSON-RPC error with a numeric code
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// Wallet emulates an EIP-1193 wallet endpoint backed by a Backend
type Wallet struct {
	mu sync.Mutex

	Backend *Backend
	Account common.Address
	ChainID int64

	// Known lists chains the wallet can switch to; empty means all
	Known map[int64]bool
	// SwitchErr, when set, is returned by wallet_switchEthereumChain
	SwitchErr error
	// RejectSends makes eth_sendTransaction fail with code 4001
	RejectSends bool

	Requests []string
	SentArgs []map[string]interface{}
}

// NewWallet creates a wallet connected to chainID
func NewWallet(backend *Backend, account common.Address, chainID int64) *Wallet {
	return &Wallet{Backend: backend, Account: account, ChainID: chainID}
}

// CallContext implements the JSON-RPC client surface used by browser sessions
func (w *Wallet) CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	w.mu.Lock()
	w.Requests = append(w.Requests, method)
	w.mu.Unlock()

	switch method {
	case "eth_accounts", "eth_requestAccounts":
		return respond(result, []common.Address{w.Account})

	case "eth_chainId":
		w.mu.Lock()
		id := w.ChainID
		w.mu.Unlock()
		return respond(result, hexutil.Uint64(id))

	case "wallet_switchEthereumChain":
		var params []struct {
			ChainID hexutil.Uint64 `json:"chainId"`
		}
		if err := roundTrip(args, &params); err != nil || len(params) != 1 {
			return &RPCError{Code: -32602, Message: "invalid params"}
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.SwitchErr != nil {
			return w.SwitchErr
		}
		if len(w.Known) > 0 && !w.Known[int64(params[0].ChainID)] {
			return &RPCError{Code: 4902, Message: "Unrecognized chain ID"}
		}
		w.ChainID = int64(params[0].ChainID)
		return respond(result, nil)

	case "eth_sendTransaction":
		w.mu.Lock()
		reject := w.RejectSends
		w.mu.Unlock()
		if reject {
			return &RPCError{Code: 4001, Message: "User rejected the request."}
		}

		var params []struct {
			From  common.Address  `json:"from"`
			To    *common.Address `json:"to"`
			Data  hexutil.Bytes   `json:"data"`
			Value *hexutil.Big    `json:"value"`
		}
		var raw []map[string]interface{}
		if err := roundTrip(args, &params); err != nil || len(params) != 1 {
			return &RPCError{Code: -32602, Message: "invalid params"}
		}
		_ = roundTrip(args, &raw)
		p := params[0]
		if p.From != w.Account {
			return &RPCError{Code: 4100, Message: "unauthorized account"}
		}

		w.mu.Lock()
		w.SentArgs = append(w.SentArgs, raw[0])
		w.mu.Unlock()

		s := SentTx{From: p.From, Data: p.Data, Value: big.NewInt(0)}
		if p.To != nil {
			s.To = *p.To
		}
		if p.Value != nil {
			s.Value = p.Value.ToInt()
		}
		hash, err := w.Backend.Submit(s)
		if err != nil {
			return &RPCError{Code: -32000, Message: err.Error()}
		}
		return respond(result, hash)
	}

	return &RPCError{Code: -32601, Message: fmt.Sprintf("method %s not supported", method)}
}

func respond(result interface{}, v interface{}) error {
	if result == nil {
		return nil
	}
	return roundTrip(v, result)
}

func roundTrip(in interface{}, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
