package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"moonx-swap/pkg/chain"
	mtypes "moonx-swap/pkg/types"
)

// awaitReceipt polls for the receipt of hash until it is mined or ctx ends
func awaitReceipt(ctx context.Context, backend chain.Backend, hash common.Hash, interval time.Duration, logger zerolog.Logger) (*types.Receipt, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, mtypes.Errorf(mtypes.KindTransactionReverted, "transaction %s reverted", hash.Hex())
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet
		case ctx.Err() != nil:
			// Reported below
		default:
			logger.Debug().Err(err).Str("tx", hash.Hex()).Msg("receipt poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, mtypes.NewError(mtypes.KindTimeout, "timed out waiting for "+hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
