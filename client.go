// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"context"
	"sync"
)

// ClientHandlerFunc is a client-side handler: it receives the dispatched
// message, the Client (for issuing further Send/Req/Disconnect calls), and
// the opaque application payload threaded through every handler invocation.
type ClientHandlerFunc func(msg Message, cli *Client, app any)

// clientHandler is one entry in the client's handler registry. Unlike the
// server registry, matching never considers a client identity: the client
// has exactly one peer.
type clientHandler struct {
	fn      ClientHandlerFunc
	ans     chan []byte // non-nil for a pending Req's reply sink
	once    bool
	called  bool
	msgID   *ID
	msgName *string
}

func clientHandlerMatches(h *clientHandler, msg Message) bool {
	if h.msgID != nil && *h.msgID != msg.ID {
		return false
	}
	if h.msgName != nil && *h.msgName != msg.Name {
		return false
	}
	return true
}

// Client is one connection to a Server: a synchronous handshake followed by
// a permanent reader goroutine and a handler registry shared between that
// reader and the Send/Req/On/Once methods.
type Client struct {
	mu       sync.Mutex
	handlers []*clientHandler

	id   string // connection id assigned by the server's handshake reply
	name string // the label this client chose, possibly empty

	stream Stream
	app    any
	opts   Options
}

// Connect dials address, performs the synchronous handshake (writing a
// request frame named "handshake" carrying name as its body, then blocking
// on reads until a frame also named "handshake" arrives, skipping any other
// frame that precedes it), and only then spawns the permanent reader
// goroutine that serves Send/Req/On/Once for the returned Client's
// lifetime. app is threaded unmodified into every ClientHandlerFunc call.
func Connect(ctx context.Context, address string, app any, name string, opts ...Option) (*Client, error) {
	trace := ContextTrace(ctx)

	conn, err := dial(address)
	if err != nil {
		return nil, err
	}
	stream := NewStream(conn)
	readerStream, err := stream.Clone()
	if err != nil {
		_ = stream.Shutdown()
		return nil, err
	}

	c := &Client{
		stream: stream,
		app:    app,
		name:   name,
		opts:   resolveOptions(opts...),
	}

	frame := Encode(NewMsgID(), MetaReq|MetaWithBody, HandshakeMsgName, []byte(name))
	if _, err := stream.Write(frame); err != nil {
		_ = stream.Shutdown()
		return nil, IOError("handshake-write", err)
	}

	chunkSize := c.opts.ReadChunkSize
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	dec := NewDecoder()
	dec.MaxBodyLen = c.opts.MaxBodyLen
	scratch := make([]byte, chunkSize)

	for c.id == "" {
		n, rerr := readerStream.Read(scratch)
		if n > 0 {
			_, derr := dec.Feed(scratch[:n], func(msg Message) MsgReading {
				if msg.Name != HandshakeMsgName {
					return Continue
				}
				c.id = string(msg.Body)
				return Stop
			})
			if derr != nil {
				_ = stream.Shutdown()
				return nil, derr
			}
		}
		if c.id == "" && rerr != nil {
			_ = stream.Shutdown()
			return nil, IOError("handshake-read", rerr)
		}
	}

	trace.handshaked(c.id, name)
	go c.readLoop(ctx, readerStream, dec)
	return c, nil
}

// ID returns the connection id the server assigned during handshake.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) readLoop(ctx context.Context, stream Stream, dec *Decoder) {
	err := decodeStreamWithDecoder(stream, dec, c.opts.ReadChunkSize, func(msg Message) MsgReading {
		c.dispatch(msg)
		return Continue
	})
	_ = stream.Shutdown()
	ContextTrace(ctx).clientRemoved(c.id, err)
}

// dispatch matches msg against the handler registry under the state lock,
// flips `called` for once-handlers that fire, then releases the lock before
// delivering to reply sinks and invoking handler functions inline on the
// reader goroutine. Handlers that themselves call On/Once/Req/Send may
// safely re-enter the lock because it is not held during invocation.
func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	var matched []*clientHandler
	for _, h := range c.handlers {
		if !clientHandlerMatches(h, msg) {
			continue
		}
		if h.once {
			if h.called {
				continue
			}
			h.called = true
		}
		matched = append(matched, h)
	}
	c.mu.Unlock()

	for _, h := range matched {
		if h.ans != nil {
			h.ans <- msg.Body
		}
		if h.fn != nil {
			h.fn(msg, c, c.app)
		}
	}
}

// Send writes a fire-and-forget message to the server; no reply is
// expected or tracked.
func (c *Client) Send(name string, body []byte) error {
	frame := Encode(NewMsgID(), metaFor(false, body != nil), name, body)
	if _, err := c.stream.Write(frame); err != nil {
		return IOError("write", err)
	}
	return nil
}

// Req writes a request frame and blocks until the reply matching its
// message id and name arrives, or ctx is done. A peer that disconnects
// before replying leaves this call blocked on ctx alone: callers that need
// a deadline must carry one on ctx, matching the reference implementation's
// contract that request correlation never times out on its own.
func (c *Client) Req(ctx context.Context, name string, body []byte) ([]byte, error) {
	id := NewMsgID()
	msgName := name
	ans := make(chan []byte, 1)

	c.mu.Lock()
	c.handlers = append(c.handlers, &clientHandler{
		ans:     ans,
		once:    true,
		msgID:   &id,
		msgName: &msgName,
	})
	c.mu.Unlock()

	frame := Encode(id, metaFor(true, body != nil), name, body)
	if _, err := c.stream.Write(frame); err != nil {
		return nil, IOError("write", err)
	}

	select {
	case reply := <-ans:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// On registers a handler that fires every time a message matches msgName.
func (c *Client) On(msgName MsgNameFilter, h ClientHandlerFunc) {
	c.subscribe(msgName, false, h)
}

// Once registers a handler that fires at most once across the client's
// lifetime for messages matching msgName.
func (c *Client) Once(msgName MsgNameFilter, h ClientHandlerFunc) {
	c.subscribe(msgName, true, h)
}

func (c *Client) subscribe(msgName MsgNameFilter, once bool, h ClientHandlerFunc) {
	entry := &clientHandler{fn: h, once: once}
	if !msgName.any {
		name := msgName.value
		entry.msgName = &name
	}

	c.mu.Lock()
	c.handlers = append(c.handlers, entry)
	c.mu.Unlock()
}

// Disconnect shuts down the connection, causing the reader goroutine to
// observe EOF, synthesize the terminal disconnect message, and exit after
// delivering it to any handler registered with AnyMsgName() or
// MsgNameIs("disconnect").
func (c *Client) Disconnect() error {
	return c.stream.Shutdown()
}
