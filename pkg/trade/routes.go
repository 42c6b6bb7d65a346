package trade

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"moonx-swap/pkg/chain"
	"moonx-swap/pkg/contracts"
	mtypes "moonx-swap/pkg/types"
	"moonx-swap/pkg/wallet"
)

// route builds the settlement transaction for the intent's venue
func (e *Executor) route(ctx context.Context, r *run) (*plan, error) {
	switch r.intent.Venue {
	case mtypes.VenueAggregator:
		return e.routeAggregator(ctx, r)
	case mtypes.VenueConstantProduct:
		return e.routeMoonX(r)
	case mtypes.VenueOrderBook:
		return e.routeWow(r)
	}
	return nil, mtypes.Errorf(mtypes.KindInvalidIntent, "unknown venue %q", r.intent.Venue)
}

// tracked is the meme token side of the trade
func tracked(intent mtypes.TradeIntent) common.Address {
	if intent.Mode == mtypes.ModeBuy {
		return intent.DestinationToken
	}
	return intent.SourceToken
}

func paysNative(cfg chain.Config, token common.Address) bool {
	return mtypes.IsNative(token) || cfg.IsWrappedNative(token)
}

// routeAggregator re-quotes and settles through the platform wallet with the
// calldata the rate API returned
func (e *Executor) routeAggregator(ctx context.Context, r *run) (*plan, error) {
	if e.settings.PlatformWallet == (common.Address{}) {
		return nil, mtypes.Errorf(mtypes.KindVenueUnavailable, "aggregator platform wallet is not configured")
	}
	if e.quoter == nil {
		return nil, mtypes.Errorf(mtypes.KindVenueUnavailable, "aggregator quoter is not configured")
	}

	e.transition(r, StateQuoting, nil)
	var q *mtypes.QuoteResult
	if err := e.call(ctx, func(ctx context.Context) error {
		var err error
		q, err = e.quoter.Quote(ctx, r.intent)
		return err
	}); err != nil {
		return nil, err
	}
	if len(q.Calldata) == 0 {
		return nil, mtypes.Errorf(mtypes.KindVenueUnavailable, "aggregator returned no transaction data")
	}

	p := &plan{
		tx:       wallet.TxRequest{To: e.settings.PlatformWallet, Data: q.Calldata, Value: big.NewInt(0)},
		quote:    q,
		tracked:  tracked(r.intent),
		bookkeep: true,
	}

	// Buys pay the quoted amount, sells pay exactly intent.Amount
	pay := r.intent.Amount
	if r.intent.Mode == mtypes.ModeBuy {
		pay = q.ExpectedOutput
	}
	switch {
	case mtypes.IsNative(r.intent.SourceToken),
		r.intent.Mode == mtypes.ModeBuy && r.cfg.IsWrappedNative(r.intent.SourceToken):
		p.tx.Value = new(big.Int).Set(pay)
	default:
		p.approve = &allowanceNeed{token: r.intent.SourceToken, spender: e.settings.PlatformWallet, amount: pay}
	}
	return p, nil
}

// routeMoonX trades against the MoonX router, paying or receiving native
func (e *Executor) routeMoonX(r *run) (*plan, error) {
	router := e.settings.MoonXRouter
	if router == (common.Address{}) {
		return nil, mtypes.Errorf(mtypes.KindVenueUnavailable, "MoonX router is not configured")
	}
	slippage := uint8(r.intent.Slippage)
	p := &plan{tracked: tracked(r.intent), bookkeep: true}

	switch r.intent.Mode {
	case mtypes.ModeBuy:
		if !paysNative(r.cfg, r.intent.SourceToken) {
			return nil, mtypes.Errorf(mtypes.KindInvalidIntent, "MoonX buys are paid in the native token")
		}
		data, err := contracts.PackMoonXBuy(r.intent.DestinationToken, slippage, e.settings.Referrer)
		if err != nil {
			return nil, fmt.Errorf("failed to pack moonXBuy data: %w", err)
		}
		p.tx = wallet.TxRequest{To: router, Data: data, Value: new(big.Int).Set(r.intent.Amount)}
	default:
		if !paysNative(r.cfg, r.intent.DestinationToken) {
			return nil, mtypes.Errorf(mtypes.KindInvalidIntent, "MoonX sells settle in the native token")
		}
		data, err := contracts.PackMoonXSell(r.intent.SourceToken, r.intent.Amount, slippage, e.settings.Referrer)
		if err != nil {
			return nil, fmt.Errorf("failed to pack moonXSell data: %w", err)
		}
		p.tx = wallet.TxRequest{To: router, Data: data, Value: big.NewInt(0)}
		p.approve = &allowanceNeed{token: r.intent.SourceToken, spender: router, amount: r.intent.Amount}
	}
	return p, nil
}

// routeWow places a bonding-curve order on the Wow router
func (e *Executor) routeWow(r *run) (*plan, error) {
	router := e.settings.WowRouter
	if router == (common.Address{}) {
		return nil, mtypes.Errorf(mtypes.KindVenueUnavailable, "Wow router is not configured")
	}
	p := &plan{tracked: tracked(r.intent), bookkeep: true}

	switch r.intent.Mode {
	case mtypes.ModeBuy:
		if !paysNative(r.cfg, r.intent.SourceToken) {
			return nil, mtypes.Errorf(mtypes.KindInvalidIntent, "Wow buys are paid in the native token")
		}
		data, err := contracts.PackPlaceOrder(r.intent.DestinationToken, r.intent.Amount, true)
		if err != nil {
			return nil, fmt.Errorf("failed to pack placeOrder data: %w", err)
		}
		p.tx = wallet.TxRequest{To: router, Data: data, Value: new(big.Int).Set(r.intent.Amount)}
	default:
		if !paysNative(r.cfg, r.intent.DestinationToken) {
			return nil, mtypes.Errorf(mtypes.KindInvalidIntent, "Wow sells settle in the native token")
		}
		data, err := contracts.PackPlaceOrder(r.intent.SourceToken, r.intent.Amount, false)
		if err != nil {
			return nil, fmt.Errorf("failed to pack placeOrder data: %w", err)
		}
		p.tx = wallet.TxRequest{To: router, Data: data, Value: big.NewInt(0)}
		p.approve = &allowanceNeed{token: r.intent.SourceToken, spender: router, amount: r.intent.Amount}
	}
	return p, nil
}
