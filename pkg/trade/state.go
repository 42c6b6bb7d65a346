// Package trade runs the quote, approve, submit and confirm sequence for a
// single wallet session.
package trade

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	mtypes "moonx-swap/pkg/types"
)

// State is a step of the execution state machine
type State string

const (
	StateIdle       State = "Idle"
	StateQuoting    State = "Quoting"
	StateValidating State = "Validating"
	StateApproving  State = "Approving"
	StateSubmitting State = "Submitting"
	StateConfirming State = "Confirming"
	StateSettled    State = "Settled"
	StateFailed     State = "Failed"
)

// Terminal reports whether s ends an execution
func (s State) Terminal() bool {
	return s == StateSettled || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:       {StateValidating},
	StateValidating: {StateQuoting, StateApproving, StateSubmitting},
	StateQuoting:    {StateApproving, StateSubmitting},
	StateApproving:  {StateSubmitting},
	StateSubmitting: {StateConfirming},
	StateConfirming: {StateSettled},
	StateSettled:    {StateIdle},
	StateFailed:     {StateIdle},
}

// CanTransition reports whether the state machine allows from -> to.
// Every non-terminal state may fail.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition is reported to observers on every state change
type Transition struct {
	ExecutionID string
	From        State
	To          State
	Err         error
}

// Result describes a finished execution
type Result struct {
	ExecutionID string
	Intent      mtypes.TradeIntent
	State       State
	Quote       *mtypes.QuoteResult
	ApprovalTx  common.Hash
	TxHash      common.Hash
	Receipt     *types.Receipt
	// Balance is the wallet's balance of the traded token after settlement
	Balance *big.Int
	Err     error
	// Reason is the most specific human readable failure message
	Reason string
}
