// Package kvdberr defines the typed error kinds surfaced across the request
// pipeline, from wire decoding down to WAL durability failures.
package kvdberr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Config             Kind = "CONFIG"
	Wire               Kind = "WIRE"
	UnknownCommand     Kind = "UNKNOWN_COMMAND"
	NotReady           Kind = "NOT_READY"
	NoSuchDB           Kind = "NO_SUCH_DB"
	DBExists           Kind = "DB_EXISTS"
	ArgInvalid         Kind = "ARG_INVALID"
	BatchState         Kind = "BATCH_STATE"
	BatchSizeMismatch  Kind = "BATCH_SIZE_MISMATCH"
	BatchTooLarge      Kind = "BATCH_TOO_LARGE"
	Engine             Kind = "ENGINE"
	WAL                Kind = "WAL"
	ClusterMismatch    Kind = "CLUSTER_MISMATCH"
	Internal           Kind = "INTERNAL"
)

// Error is a typed error carrying one of the kinds above, so executors and
// the cluster handshake can branch on failure class without string matching.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, defaulting to
// Internal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
