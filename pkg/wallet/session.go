// Package wallet abstracts the signer that submits trades: either an external
// browser-style wallet reached over JSON-RPC or a raw private key.
package wallet

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"moonx-swap/pkg/chain"
)

// Mode identifies the signer implementation behind a session
type Mode string

const (
	ModeBrowser Mode = "browser"
	ModeRawKey  Mode = "raw-key"
)

// DefaultPollInterval is how often receipts are polled while confirming
const DefaultPollInterval = 2 * time.Second

// Handle is the public view of a connected session
type Handle struct {
	Address common.Address `json:"address"`
	Mode    Mode           `json:"mode"`
	ChainID int64          `json:"chain_id"`
}

// GasParams are explicit fee settings. The zero value defers to the wallet.
type GasParams struct {
	GasLimit             uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// IsZero reports whether no gas field is set
func (g GasParams) IsZero() bool {
	return g.GasLimit == 0 && g.GasPrice == nil && g.MaxFeePerGas == nil && g.MaxPriorityFeePerGas == nil
}

// IsDynamic reports whether EIP-1559 caps are set
func (g GasParams) IsDynamic() bool {
	return g.MaxFeePerGas != nil && g.MaxPriorityFeePerGas != nil
}

// TxRequest is a transaction template before signing
type TxRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   GasParams
}

// Session is the active signer. Exactly one implementation backs a session;
// switching modes means closing it and creating a new one.
type Session interface {
	Handle() Handle
	Address() common.Address
	Mode() Mode
	// Backend is the read side used for calls, estimation and receipts
	Backend() chain.Backend
	EnsureNetwork(ctx context.Context, chainID int64) error
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	AwaitConfirmation(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}
