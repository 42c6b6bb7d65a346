package ledger

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moonx-swap/pkg/store"
	"moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

var (
	tokA = common.HexToAddress("0x000000000000000000000000000000000000a001")
	tokB = common.HexToAddress("0x000000000000000000000000000000000000a002")
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	return s
}

func TestLedgerSetSemantics(t *testing.T) {
	l := New(newStore(t), types.VenueConstantProduct)

	require.NoError(t, l.Add(types.PurchasedToken{Address: tokA, Symbol: "AAA"}))
	require.NoError(t, l.Add(types.PurchasedToken{Address: tokB, Symbol: "BBB"}))
	require.NoError(t, l.Add(types.PurchasedToken{Address: tokA, Symbol: "AAA2"}))

	tokens, err := l.List()
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "AAA2", tokens[0].Symbol)
	assert.Equal(t, tokB, tokens[1].Address)

	require.NoError(t, l.Remove(tokA))
	require.NoError(t, l.Remove(tokA))

	ok, err := l.Contains(tokA)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Clear())
	tokens, err = l.List()
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestLedgerNamespacesByVenue(t *testing.T) {
	s := newStore(t)
	moonx := New(s, types.VenueConstantProduct)
	wow := New(s, types.VenueOrderBook)

	require.NoError(t, moonx.Add(types.PurchasedToken{Address: tokA, Symbol: "AAA"}))

	ok, err := wow.Contains(tokA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerSharedFileNoLostUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s1, err := store.NewStore(path)
	require.NoError(t, err)
	s2, err := store.NewStore(path)
	require.NoError(t, err)

	require.NoError(t, New(s1, types.VenueAggregator).Add(types.PurchasedToken{Address: tokA}))
	require.NoError(t, New(s2, types.VenueAggregator).Add(types.PurchasedToken{Address: tokB}))

	tokens, err := New(s1, types.VenueAggregator).List()
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestConnectedWallet(t *testing.T) {
	s := newStore(t)

	_, ok, err := ConnectedWallet(s)
	require.NoError(t, err)
	assert.False(t, ok)

	h := wallet.Handle{Address: tokA, Mode: wallet.ModeBrowser, ChainID: 8453}
	require.NoError(t, SaveConnectedWallet(s, h))

	got, ok, err := ConnectedWallet(s)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h, got)

	require.NoError(t, ForgetConnectedWallet(s))
	_, ok, err = ConnectedWallet(s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHistory(t *testing.T) {
	h := NewHistory(newStore(t))

	intent := types.TradeIntent{Mode: types.ModeBuy, ChainID: 8453, Amount: big.NewInt(5), Venue: types.VenueOrderBook}
	first := NewExecution(intent)
	first.State = "Settled"
	second := NewExecution(intent)
	second.State = "Failed"
	assert.NotEqual(t, first.ID, second.ID)

	require.NoError(t, h.Record(first))
	require.NoError(t, h.Record(second))

	entries, err := h.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, "5", entries[1].Amount)

	got, err := h.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Settled", got.State)

	_, err = h.Get("missing")
	assert.Error(t, err)

	limited, err := h.List(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
