// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrClientNotFound is returned when a client lookup by name or id fails.
	ErrClientNotFound = errors.New("congo: client not found")

	// ErrMutexPoisoned reports an internal invariant break in the shared state region.
	ErrMutexPoisoned = errors.New("congo: mutex poisoned")

	// ErrEmptyStream reports an adapter with no transport bound.
	ErrEmptyStream = errors.New("congo: empty stream")

	// ErrTooLong reports a frame whose declared body length exceeds the
	// configured MaxBodyLen limit.
	ErrTooLong = errors.New("congo: message too long")

	// ErrInvalidAddress reports an address that the transport selector could
	// not route to either supported family.
	ErrInvalidAddress = errors.New("congo: invalid address")
)

// IOError wraps a transport I/O failure with the operation that produced it.
// Cause() unwraps to the underlying error, so callers may still compare it
// against io.EOF and friends with errors.Is.
func IOError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return pkgerrors.Wrap(cause, "congo: "+op)
}
