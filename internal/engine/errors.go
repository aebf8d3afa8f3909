package engine

import (
	"errors"
	"fmt"
)

// Code is a stable error code surfaced to clients as an ERROR event.
type Code string

const (
	// Validation
	CodeInvalidAmount  Code = "INVALID_AMOUNT"
	CodeInvalidRaise   Code = "INVALID_RAISE"
	CodeRaiseTooSmall  Code = "RAISE_TOO_SMALL"
	CodeCannotCheck    Code = "CANNOT_CHECK"
	CodeBuyInTooSmall  Code = "BUYIN_TOO_SMALL"
	CodeBuyInTooLarge  Code = "BUYIN_TOO_LARGE"
	CodeRebuyExceeds   Code = "REBUY_EXCEEDS_MAX"
	CodeInvalidAction  Code = "INVALID_ACTION"

	// State
	CodeNotYourTurn    Code = "NOT_YOUR_TURN"
	CodeAlreadyFolded  Code = "ALREADY_FOLDED"
	CodeDealingBoard   Code = "DEALING_BOARD"
	CodeNoHandRunning  Code = "NO_HAND_RUNNING"
	CodeHandInProgress Code = "HAND_IN_PROGRESS"

	// Resource
	CodeTableNotFound     Code = "TABLE_NOT_FOUND"
	CodeSeatNotFound      Code = "SEAT_NOT_FOUND"
	CodeSeatTaken         Code = "SEAT_TAKEN"
	CodeNotSeated         Code = "NOT_SEATED"
	CodeWalletNotFound    Code = "WALLET_NOT_FOUND"
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientStack Code = "INSUFFICIENT_STACK"
)

// Error is a coded engine failure. It never mutates state and is surfaced
// only to the originating socket.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds a coded error.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an engine error, or empty.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// ErrNoRuntime is returned by runtime stores when no hand is stored for a
// table.
var ErrNoRuntime = errors.New("no runtime stored")
