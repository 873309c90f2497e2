package common

import (
	"errors"

	"github.com/go-logr/logr"
)

// ErrInvariant is logged when a call order or state invariant is violated.
var ErrInvariant = errors.New("invariant violated")

// Assert checks an invariant. A failed check panics in builds tagged
// debugassert and is logged at Error level otherwise.
//
// Parameters:
//   - log: the logger receiving the failure
//   - cond: the invariant
//   - msg: a description of the violation
//   - keysAndValues: extra structured log values
//
// Returns:
//   - bool: cond
func Assert(log logr.Logger, cond bool, msg string, keysAndValues ...any) bool {
	if cond {
		return true
	}
	if assertPanics {
		panic(msg)
	}
	log.Error(ErrInvariant, msg, keysAndValues...)
	return false
}
