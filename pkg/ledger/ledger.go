// Package ledger keeps the locally remembered purchased tokens, the connected
// wallet and the trade history on top of the state store.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"moonx-swap/pkg/store"
	"moonx-swap/pkg/types"
)

const tokensKeyPrefix = "purchased-tokens:"

// Ledger is the purchased-token set of one venue namespace
type Ledger struct {
	store *store.Store
	key   string
}

// New returns the ledger for venue
func New(s *store.Store, venue types.Venue) *Ledger {
	return &Ledger{store: s, key: tokensKeyPrefix + string(venue)}
}

func decodeTokens(raw json.RawMessage) ([]types.PurchasedToken, error) {
	if raw == nil {
		return nil, nil
	}
	var tokens []types.PurchasedToken
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode token list: %w", err)
	}
	return tokens, nil
}

// List returns the remembered tokens in insertion order
func (l *Ledger) List() ([]types.PurchasedToken, error) {
	var tokens []types.PurchasedToken
	if _, err := l.store.Get(l.key, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Contains reports whether addr is remembered
func (l *Ledger) Contains(addr common.Address) (bool, error) {
	tokens, err := l.List()
	if err != nil {
		return false, err
	}
	for _, t := range tokens {
		if t.Address == addr {
			return true, nil
		}
	}
	return false, nil
}

// Add remembers token. An existing entry keeps its position and gets the
// new symbol.
func (l *Ledger) Add(token types.PurchasedToken) error {
	token.Symbol = strings.TrimSpace(token.Symbol)
	return l.store.Update(l.key, func(raw json.RawMessage) (interface{}, error) {
		tokens, err := decodeTokens(raw)
		if err != nil {
			return nil, err
		}
		for i, t := range tokens {
			if t.Address == token.Address {
				if token.Symbol != "" {
					tokens[i].Symbol = token.Symbol
				}
				return tokens, nil
			}
		}
		return append(tokens, token), nil
	})
}

// Remove forgets addr. Removing an unknown token is not an error.
func (l *Ledger) Remove(addr common.Address) error {
	return l.store.Update(l.key, func(raw json.RawMessage) (interface{}, error) {
		tokens, err := decodeTokens(raw)
		if err != nil {
			return nil, err
		}
		kept := make([]types.PurchasedToken, 0, len(tokens))
		for _, t := range tokens {
			if t.Address != addr {
				kept = append(kept, t)
			}
		}
		return kept, nil
	})
}

// Clear forgets every token of this venue
func (l *Ledger) Clear() error {
	return l.store.Delete(l.key)
}
