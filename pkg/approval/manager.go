// Package approval raises ERC-20 allowances ahead of trades.
package approval

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"moonx-swap/pkg/contracts"
	"moonx-swap/pkg/gas"
	mtypes "moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

// Manager checks and raises allowances. It never caches allowance reads.
type Manager struct {
	gas    gas.Policy
	logger zerolog.Logger
}

// NewManager creates an approval manager using policy for approval gas
func NewManager(policy gas.Policy, logger zerolog.Logger) *Manager {
	return &Manager{
		gas:    policy,
		logger: logger.With().Str("component", "approval").Logger(),
	}
}

// EnsureAllowance makes sure spender may move required of token on behalf
// of owner, approving exactly required when the current allowance is lower.
// It returns the approval transaction hash, or the zero hash when the
// existing allowance already covers required.
func (m *Manager) EnsureAllowance(ctx context.Context, token, owner, spender common.Address, required *big.Int, session wallet.Session) (common.Hash, error) {
	reader := contracts.NewTokenReader(session.Backend())

	allowance, err := reader.Allowance(ctx, token, owner, spender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read allowance: %w", err)
	}

	log := m.logger.With().
		Str("token", token.Hex()).
		Str("spender", spender.Hex()).
		Str("allowance", allowance.String()).
		Str("required", required.String()).
		Logger()

	if allowance.Cmp(required) >= 0 {
		log.Debug().Msg("allowance sufficient")
		return common.Hash{}, nil
	}

	data, err := contracts.PackApprove(spender, required)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}
	req := wallet.TxRequest{To: token, Data: data, Value: big.NewInt(0)}

	req.Gas, err = m.gas.Resolve(ctx, session, req)
	if err != nil {
		return common.Hash{}, err
	}

	log.Info().Msg("requesting approval")
	hash, err := session.SendTransaction(ctx, req)
	if err != nil {
		if kind, ok := mtypes.KindOf(err); ok && kind == mtypes.KindTimeout {
			return common.Hash{}, err
		}
		return common.Hash{}, mtypes.NewError(mtypes.KindApprovalRejected, mtypes.Reason(err), err)
	}

	if _, err := session.AwaitConfirmation(ctx, hash); err != nil {
		if kind, ok := mtypes.KindOf(err); ok && kind == mtypes.KindTimeout {
			return hash, err
		}
		return hash, mtypes.NewError(mtypes.KindApprovalTransactionReverted, "approval "+hash.Hex()+" reverted", err)
	}

	log.Info().Str("tx", hash.Hex()).Msg("approval confirmed")
	return hash, nil
}
