package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"moonx-swap/pkg/chain"
	mtypes "moonx-swap/pkg/types"
)

var privateKeyPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)

// ValidPrivateKey reports whether s looks like a hex encoded secp256k1 key
func ValidPrivateKey(s string) bool {
	return privateKeyPattern.MatchString(strings.TrimSpace(s))
}

// RawKeySession signs locally with a private key bound to one RPC backend.
// The key never leaves this type.
type RawKeySession struct {
	backend    chain.Backend
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	logger     zerolog.Logger

	// PollInterval overrides DefaultPollInterval when confirming
	PollInterval time.Duration
}

// NewRawKeySession parses hexKey and binds it to backend's chain
func NewRawKeySession(ctx context.Context, backend chain.Backend, hexKey string, logger zerolog.Logger) (*RawKeySession, error) {
	hexKey = strings.TrimSpace(hexKey)
	if !ValidPrivateKey(hexKey) {
		return nil, fmt.Errorf("invalid private key format")
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		// The parse error can echo key material
		return nil, fmt.Errorf("invalid private key")
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	return &RawKeySession{
		backend:    backend,
		privateKey: privateKey,
		address:    address,
		chainID:    chainID,
		logger:     logger.With().Str("component", "wallet").Str("mode", string(ModeRawKey)).Str("address", address.Hex()).Logger(),
	}, nil
}

// String never includes key material
func (s *RawKeySession) String() string {
	return fmt.Sprintf("raw-key session %s on chain %s", s.address.Hex(), s.chainID)
}

func (s *RawKeySession) Handle() Handle {
	return Handle{Address: s.address, Mode: ModeRawKey, ChainID: s.chainID.Int64()}
}

func (s *RawKeySession) Address() common.Address { return s.address }

func (s *RawKeySession) Mode() Mode { return ModeRawKey }

func (s *RawKeySession) Backend() chain.Backend { return s.backend }

// EnsureNetwork cannot switch a bound RPC; the session must be rebuilt
func (s *RawKeySession) EnsureNetwork(ctx context.Context, chainID int64) error {
	if s.chainID.Int64() == chainID {
		return nil
	}
	return mtypes.Errorf(mtypes.KindNetworkSwitchRejected,
		"private key session is connected to chain %s; reconnect for chain %d", s.chainID, chainID)
}

// SendTransaction signs and broadcasts req. Gas must be fully specified.
func (s *RawKeySession) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if req.Gas.GasLimit == 0 || (req.Gas.GasPrice == nil && !req.Gas.IsDynamic()) {
		return common.Hash{}, mtypes.Errorf(mtypes.KindFeeEstimationFailed, "gas parameters must be resolved before signing")
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	// Get nonce
	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	// Build the transaction in the fee model the gas policy chose
	to := req.To
	var txData types.TxData
	if req.Gas.IsDynamic() {
		txData = &types.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			GasTipCap: req.Gas.MaxPriorityFeePerGas,
			GasFeeCap: req.Gas.MaxFeePerGas,
			Gas:       req.Gas.GasLimit,
			To:        &to,
			Value:     value,
			Data:      req.Data,
		}
	} else {
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: req.Gas.GasPrice,
			Gas:      req.Gas.GasLimit,
			To:       &to,
			Value:    value,
			Data:     req.Data,
		}
	}

	// Sign transaction
	signedTx, err := types.SignNewTx(s.privateKey, types.LatestSignerForChainID(s.chainID), txData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	// Send transaction
	if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, mtypes.Classify(mtypes.KindTransactionReverted, WithRevertReason(fmt.Errorf("failed to send transaction: %w", err)))
	}

	s.logger.Info().
		Str("tx", signedTx.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", req.Gas.GasLimit).
		Msg("transaction submitted")

	return signedTx.Hash(), nil
}

// AwaitConfirmation polls the bound backend for the receipt
func (s *RawKeySession) AwaitConfirmation(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return awaitReceipt(ctx, s.backend, hash, s.PollInterval, s.logger)
}

// Close drops the reference to the key
func (s *RawKeySession) Close() {
	s.privateKey = nil
	if c, ok := s.backend.(interface{ Close() }); ok {
		c.Close()
	}
}
