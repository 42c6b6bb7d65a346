package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"moonx-swap/pkg/store"
	"moonx-swap/pkg/wallet"
)

const connectedWalletKey = "connected-wallet"

// SaveConnectedWallet remembers the connected session's public handle
func SaveConnectedWallet(s *store.Store, h wallet.Handle) error {
	return s.Set(connectedWalletKey, h)
}

// ConnectedWallet returns the remembered handle, if any
func ConnectedWallet(s *store.Store) (wallet.Handle, bool, error) {
	var h wallet.Handle
	ok, err := s.Get(connectedWalletKey, &h)
	if err != nil || !ok || h.Address == (common.Address{}) {
		return wallet.Handle{}, false, err
	}
	return h, true, nil
}

// ForgetConnectedWallet clears the remembered handle
func ForgetConnectedWallet(s *store.Store) error {
	return s.Delete(connectedWalletKey)
}
