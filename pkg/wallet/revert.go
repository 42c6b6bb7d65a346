package wallet

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Codes returned by EIP-1193 wallets
const (
	codeUserRejected      = 4001
	codeUnrecognizedChain = 4902
)

// RevertError wraps a failed call with its decoded revert reason
type RevertError struct {
	Err    error
	reason string
}

func (e *RevertError) Error() string {
	if e.reason != "" {
		return "execution reverted: " + e.reason
	}
	return e.Err.Error()
}

func (e *RevertError) Unwrap() error { return e.Err }

// Reason returns the decoded revert string, if any
func (e *RevertError) Reason() string { return e.reason }

// WithRevertReason attaches the revert reason carried by err, if it has one
func WithRevertReason(err error) error {
	if err == nil {
		return nil
	}
	if reason := RevertReason(err); reason != "" {
		return &RevertError{Err: err, reason: reason}
	}
	return err
}

// RevertReason extracts an Error(string) reason from a JSON-RPC data error
func RevertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}

	var raw []byte
	switch data := dataErr.ErrorData().(type) {
	case string:
		decoded, decErr := hexutil.Decode(data)
		if decErr != nil {
			return ""
		}
		raw = decoded
	case []byte:
		raw = data
	default:
		return ""
	}

	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil {
		return ""
	}
	return reason
}

// rpcCode returns the JSON-RPC error code carried by err
func rpcCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// isUserRejection matches wallet rejections that arrive without a code
func isUserRejection(err error) bool {
	if code, ok := rpcCode(err); ok {
		return code == codeUserRejected
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}
