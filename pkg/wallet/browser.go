package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"moonx-swap/pkg/chain"
	mtypes "moonx-swap/pkg/types"
)

// WalletRPC is the JSON-RPC surface of an external wallet. *rpc.Client
// satisfies it.
type WalletRPC interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// BrowserSession signs through an external wallet that owns the key
type BrowserSession struct {
	wallet  WalletRPC
	backend chain.Backend
	logger  zerolog.Logger

	// PollInterval overrides DefaultPollInterval when confirming
	PollInterval time.Duration

	mu      sync.RWMutex
	address common.Address
	chainID int64
}

type switchChainParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

type sendTxArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Data                 hexutil.Bytes   `json:"data,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Gas                  *hexutil.Uint64 `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

// NewBrowserSession connects to the wallet's first account
func NewBrowserSession(ctx context.Context, wallet WalletRPC, backend chain.Backend, logger zerolog.Logger) (*BrowserSession, error) {
	var accounts []common.Address
	if err := wallet.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("failed to read wallet accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("wallet has no connected account")
	}

	s := &BrowserSession{
		wallet:  wallet,
		backend: backend,
		logger:  logger.With().Str("component", "wallet").Str("mode", string(ModeBrowser)).Logger(),
		address: accounts[0],
	}

	chainID, err := s.walletChainID(ctx)
	if err != nil {
		return nil, err
	}
	s.chainID = chainID

	return s, nil
}

func (s *BrowserSession) Handle() Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Handle{Address: s.address, Mode: ModeBrowser, ChainID: s.chainID}
}

func (s *BrowserSession) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

func (s *BrowserSession) Mode() Mode { return ModeBrowser }

func (s *BrowserSession) Backend() chain.Backend { return s.backend }

func (s *BrowserSession) walletChainID(ctx context.Context) (int64, error) {
	var id hexutil.Uint64
	if err := s.wallet.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, fmt.Errorf("failed to read wallet chain: %w", err)
	}
	return int64(id), nil
}

// EnsureNetwork asks the wallet to switch to chainID when it is elsewhere
func (s *BrowserSession) EnsureNetwork(ctx context.Context, chainID int64) error {
	current, err := s.walletChainID(ctx)
	if err != nil {
		return mtypes.Classify(mtypes.KindNetworkSwitchRejected, err)
	}
	if current == chainID {
		s.setChain(chainID)
		return nil
	}

	s.logger.Info().Int64("from", current).Int64("to", chainID).Msg("requesting network switch")

	params := switchChainParams{ChainID: hexutil.Uint64(chainID)}
	if err := s.wallet.CallContext(ctx, nil, "wallet_switchEthereumChain", params); err != nil {
		if code, ok := rpcCode(err); ok && code == codeUnrecognizedChain {
			return mtypes.NewError(mtypes.KindChainNotRegisteredInWallet,
				fmt.Sprintf("add chain %d to your wallet and try again", chainID), err)
		}
		return mtypes.Classify(mtypes.KindNetworkSwitchRejected, err)
	}

	s.setChain(chainID)
	return nil
}

func (s *BrowserSession) setChain(chainID int64) {
	s.mu.Lock()
	s.chainID = chainID
	s.mu.Unlock()
}

// SendTransaction hands the request to the wallet. Gas fields are advisory
// and only forwarded when set.
func (s *BrowserSession) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	to := req.To
	args := sendTxArgs{
		From: s.Address(),
		To:   &to,
		Data: req.Data,
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(new(big.Int).Set(req.Value))
	}
	if req.Gas.GasLimit > 0 {
		limit := hexutil.Uint64(req.Gas.GasLimit)
		args.Gas = &limit
	}
	if req.Gas.IsDynamic() {
		args.MaxFeePerGas = (*hexutil.Big)(req.Gas.MaxFeePerGas)
		args.MaxPriorityFeePerGas = (*hexutil.Big)(req.Gas.MaxPriorityFeePerGas)
	} else if req.Gas.GasPrice != nil {
		args.GasPrice = (*hexutil.Big)(req.Gas.GasPrice)
	}

	var hash common.Hash
	if err := s.wallet.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		if isUserRejection(err) {
			return common.Hash{}, mtypes.NewError(mtypes.KindTransactionRejectedByUser, "", err)
		}
		return common.Hash{}, mtypes.Classify(mtypes.KindTransactionReverted, WithRevertReason(err))
	}

	s.logger.Info().Str("tx", hash.Hex()).Str("to", req.To.Hex()).Msg("transaction submitted")
	return hash, nil
}

// AwaitConfirmation waits for the receipt through the chain backend
func (s *BrowserSession) AwaitConfirmation(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return awaitReceipt(ctx, s.backend, hash, s.PollInterval, s.logger)
}

// Close releases the wallet connection when it supports closing
func (s *BrowserSession) Close() {
	if c, ok := s.wallet.(interface{ Close() }); ok {
		c.Close()
	}
}
