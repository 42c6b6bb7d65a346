package types

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures surfaced by the trading core
type ErrorKind string

const (
	KindUnknownChain                ErrorKind = "UnknownChain"
	KindInvalidIntent               ErrorKind = "InvalidIntent"
	KindNetworkSwitchRejected       ErrorKind = "NetworkSwitchRejected"
	KindChainNotRegisteredInWallet  ErrorKind = "ChainNotRegisteredInWallet"
	KindVenueUnavailable            ErrorKind = "VenueUnavailable"
	KindNoLiquidity                 ErrorKind = "NoLiquidity"
	KindInvalidToken                ErrorKind = "InvalidToken"
	KindApprovalRejected            ErrorKind = "ApprovalRejected"
	KindApprovalTransactionReverted ErrorKind = "ApprovalTransactionReverted"
	KindFeeEstimationFailed         ErrorKind = "FeeEstimationFailed"
	KindTransactionRejectedByUser   ErrorKind = "TransactionRejectedByUser"
	KindTransactionReverted         ErrorKind = "TransactionReverted"
	KindTimeout                     ErrorKind = "Timeout"
	KindExecutionInProgress         ErrorKind = "ExecutionInProgress"
)

// Sentinels for errors.Is checks. Any *Error with the same kind matches.
var (
	ErrUnknownChain                = &Error{Kind: KindUnknownChain}
	ErrInvalidIntent               = &Error{Kind: KindInvalidIntent}
	ErrNetworkSwitchRejected       = &Error{Kind: KindNetworkSwitchRejected}
	ErrChainNotRegisteredInWallet  = &Error{Kind: KindChainNotRegisteredInWallet}
	ErrVenueUnavailable            = &Error{Kind: KindVenueUnavailable}
	ErrNoLiquidity                 = &Error{Kind: KindNoLiquidity}
	ErrInvalidToken                = &Error{Kind: KindInvalidToken}
	ErrApprovalRejected            = &Error{Kind: KindApprovalRejected}
	ErrApprovalTransactionReverted = &Error{Kind: KindApprovalTransactionReverted}
	ErrFeeEstimationFailed         = &Error{Kind: KindFeeEstimationFailed}
	ErrTransactionRejectedByUser   = &Error{Kind: KindTransactionRejectedByUser}
	ErrTransactionReverted         = &Error{Kind: KindTransactionReverted}
	ErrTimeout                     = &Error{Kind: KindTimeout}
	ErrExecutionInProgress         = &Error{Kind: KindExecutionInProgress}
)

// Error is a classified trading error. Detail carries the most specific
// diagnostic available (revert reason, response body, ...).
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

// NewError creates a classified error
func NewError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Errorf creates a classified error with a formatted detail
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in the chain.
// Context deadlines are reported as Timeout.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout, true
	}
	return "", false
}

// Classify wraps err with kind unless it is already classified.
// A context deadline always becomes Timeout.
func Classify(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: kind, Err: err}
}

// Reasoner is implemented by errors that carry an on-chain revert reason
type Reasoner interface {
	Reason() string
}

// Reason returns a human readable message for err, preferring an explicit
// revert reason, then the classified detail, then the short error text.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var r Reasoner
	if errors.As(err, &r) && r.Reason() != "" {
		return r.Reason()
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Detail != "" {
			return e.Detail
		}
		if e.Err != nil {
			return shortMessage(e.Err)
		}
		return genericMessage(e.Kind)
	}
	return shortMessage(err)
}

func shortMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		return "transaction failed"
	}
	return msg
}

func genericMessage(kind ErrorKind) string {
	switch kind {
	case KindTimeout:
		return "operation timed out"
	case KindTransactionRejectedByUser, KindApprovalRejected:
		return "request rejected in wallet"
	case KindTransactionReverted, KindApprovalTransactionReverted:
		return "transaction reverted"
	case KindExecutionInProgress:
		return "another trade is already in progress"
	}
	return "transaction failed"
}
