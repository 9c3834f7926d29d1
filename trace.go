// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"context"
	"log"
)

// unique type to prevent assignment from outside this package.
type traceContextKey struct{}

// Trace defines a structure for handling observability events raised by a
// Server or Client. Every field is optional; a nil field is simply skipped.
// This is how the reference corpus carries logging without coupling the
// core to a specific logging library: callers inject hooks through a
// context, the core never imports a logging package itself.
type Trace struct {
	// ListenStart is called before a listener begins accepting on address.
	ListenStart func(address string)

	// ListenError is called when a listener's accept loop terminates.
	ListenError func(address string, err error)

	// ClientAccepted is called after a new client is admitted and registered.
	ClientAccepted func(clientID string)

	// Handshaked is called once a client's handshake completes, with the
	// label the client chose (possibly empty).
	Handshaked func(clientID string, name string)

	// ClientRemoved is called when a reader observes EOF or an error and the
	// client record is removed from the registry.
	ClientRemoved func(clientID string, err error)

	// HandlerPanic is called when a handler goroutine recovers from a panic.
	HandlerPanic func(msgName string, clientID string, recovered any)

	// WriteError is called when a best-effort outbound write (broadcast,
	// send, or reply) fails. The write is not retried.
	WriteError func(op string, clientID string, err error)
}

// ContextTrace returns the Trace associated with ctx, or a Trace with all
// hooks nil (every call below is a no-op) if none was set.
func ContextTrace(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceContextKey{}).(*Trace)
	if t == nil {
		return &Trace{}
	}
	return t
}

// WithTrace returns a context carrying trace, for use with Server.Listen,
// Server.ListenAll, and Client.Connect.
func WithTrace(ctx context.Context, trace *Trace) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// DefaultTrace logs every event via the standard log package. No example in
// this corpus actually imports a third-party logging library from
// application code (logging libraries only appear as transitive tooling
// dependencies) — see DESIGN.md — so the standard library is the grounded
// choice for the one trace implementation the core itself ships.
var DefaultTrace = &Trace{
	ListenStart: func(address string) {
		log.Printf("congo: listening on %s", address)
	},
	ListenError: func(address string, err error) {
		log.Printf("congo: listener %s stopped: %v", address, err)
	},
	ClientAccepted: func(clientID string) {
		log.Printf("congo: client %s accepted", clientID)
	},
	Handshaked: func(clientID string, name string) {
		log.Printf("congo: client %s handshaked as %q", clientID, name)
	},
	ClientRemoved: func(clientID string, err error) {
		log.Printf("congo: client %s removed: %v", clientID, err)
	},
	HandlerPanic: func(msgName string, clientID string, recovered any) {
		log.Printf("congo: handler for %q (client %s) panicked: %v", msgName, clientID, recovered)
	},
	WriteError: func(op string, clientID string, err error) {
		log.Printf("congo: %s to %s failed: %v", op, clientID, err)
	},
}

func (t *Trace) listenStart(address string) {
	if t != nil && t.ListenStart != nil {
		t.ListenStart(address)
	}
}

func (t *Trace) listenError(address string, err error) {
	if t != nil && t.ListenError != nil {
		t.ListenError(address, err)
	}
}

func (t *Trace) clientAccepted(clientID string) {
	if t != nil && t.ClientAccepted != nil {
		t.ClientAccepted(clientID)
	}
}

func (t *Trace) handshaked(clientID, name string) {
	if t != nil && t.Handshaked != nil {
		t.Handshaked(clientID, name)
	}
}

func (t *Trace) clientRemoved(clientID string, err error) {
	if t != nil && t.ClientRemoved != nil {
		t.ClientRemoved(clientID, err)
	}
}

func (t *Trace) handlerPanic(msgName, clientID string, recovered any) {
	if t != nil && t.HandlerPanic != nil {
		t.HandlerPanic(msgName, clientID, recovered)
	}
}

func (t *Trace) writeError(op, clientID string, err error) {
	if t != nil && t.WriteError != nil {
		t.WriteError(op, clientID, err)
	}
}
