// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"context"
	"net"
	"sync"
)

// ClientName selects which connected client(s) a server-side subscription or
// Send targets: AnyClient() for no restriction, or ClientIs(name) to bind to
// a specific (possibly not-yet-connected) client label.
type ClientName struct {
	any   bool
	value string
}

// AnyClient matches every client.
func AnyClient() ClientName { return ClientName{any: true} }

// ClientIs matches only the client whose handshake label equals name.
func ClientIs(name string) ClientName { return ClientName{value: name} }

// MsgNameFilter selects which message name a subscription matches:
// AnyMsgName() for no restriction, or MsgNameIs(name) for an exact match.
type MsgNameFilter struct {
	any   bool
	value string
}

// AnyMsgName matches every message name.
func AnyMsgName() MsgNameFilter { return MsgNameFilter{any: true} }

// MsgNameIs matches only messages named name.
func MsgNameIs(name string) MsgNameFilter { return MsgNameFilter{value: name} }

// ServerHandlerFunc is a server-side handler: it receives the dispatched
// message, the Server (for issuing further Broadcast/Send/Disconnect calls),
// and the opaque application payload threaded through every handler
// invocation. A non-nil return value becomes the reply body when msg was a
// request; it is ignored otherwise.
type ServerHandlerFunc func(msg Message, srv *Server, app any) []byte

// serverHandler is one entry in the server's handler registry. Insertion
// order equals dispatch order.
type serverHandler struct {
	fn         ServerHandlerFunc
	once       bool
	called     bool
	msgID      *ID
	msgName    *string
	clientID   *string
	clientName *string
}

// ConnectedClient is a live client session as tracked by the server.
type ConnectedClient struct {
	ID     string
	Name   string // empty until handshake
	stream Stream
}

// Server multiplexes many client connections, dispatching decoded messages
// to a registry of handlers filtered by client identity and message name.
type Server struct {
	mu       sync.Mutex
	clients  []*ConnectedClient
	handlers []*serverHandler

	app  any
	opts Options
}

// NewServer constructs a server with its mandatory handshake handler
// already registered as the first (and only) entry.
func NewServer(app any, opts ...Option) *Server {
	s := &Server{
		app:  app,
		opts: resolveOptions(opts...),
	}
	handshakeName := HandshakeMsgName
	s.handlers = append(s.handlers, &serverHandler{
		fn:      s.handleHandshake,
		msgName: &handshakeName,
	})
	return s
}

// Listen opens address (selecting the Unix or TCP family per the address
// string) and runs its accept loop until the listener fails or ctx is
// canceled. It blocks the calling goroutine; use ListenAll to run several
// listeners concurrently.
func (s *Server) Listen(ctx context.Context, address string) error {
	trace := ContextTrace(ctx)
	l, err := listen(address)
	if err != nil {
		trace.listenError(address, err)
		return err
	}
	defer l.Close()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	trace.listenStart(address)
	for {
		conn, err := l.Accept()
		if err != nil {
			trace.listenError(address, err)
			return err
		}
		s.admit(ctx, conn)
	}
}

// ListenAll spawns one listener goroutine per address; each runs an
// independent accept loop. Accept failures terminate only that listener's
// goroutine. ListenAll returns immediately without waiting for any listener
// to stop.
func (s *Server) ListenAll(ctx context.Context, addresses []string) {
	for _, address := range addresses {
		address := address
		go func() {
			_ = s.Listen(ctx, address)
		}()
	}
}

func (s *Server) admit(ctx context.Context, conn net.Conn) {
	stream := NewStream(conn)
	readerStream, err := stream.Clone()
	if err != nil {
		ContextTrace(ctx).writeError("accept-clone", "", err)
		_ = stream.Shutdown()
		return
	}

	client := &ConnectedClient{ID: NewConnID(), stream: stream}

	go s.readLoop(ctx, client.ID, readerStream)

	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()

	ContextTrace(ctx).clientAccepted(client.ID)
}

func (s *Server) readLoop(ctx context.Context, clientID string, stream Stream) {
	err := DecodeStream(stream, s.opts.ReadChunkSize, s.opts.MaxBodyLen, func(msg Message) MsgReading {
		msg.Client = clientID
		s.dispatch(ctx, msg)
		return Continue
	})

	s.mu.Lock()
	for i, c := range s.clients {
		if c.ID == clientID {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	_ = stream.Shutdown()

	ContextTrace(ctx).clientRemoved(clientID, err)
}

// dispatch matches msg against the handler registry under the state lock,
// flips `called` for once-handlers that fire, then releases the lock before
// running the matched handlers, one after another in registration order, on
// a goroutine of their own so user code never blocks the reader.
func (s *Server) dispatch(ctx context.Context, msg Message) {
	s.mu.Lock()
	var matched []*serverHandler
	for _, h := range s.handlers {
		if !serverHandlerMatches(h, msg) {
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
	s.mu.Unlock()

	if len(matched) == 0 {
		return
	}
	go func() {
		for _, h := range matched {
			s.runHandler(ctx, h, msg)
		}
	}()
}

func serverHandlerMatches(h *serverHandler, msg Message) bool {
	if h.msgID != nil && *h.msgID != msg.ID {
		return false
	}
	if h.msgName != nil && *h.msgName != msg.Name {
		return false
	}
	if h.clientName != nil {
		if h.clientID == nil || *h.clientID != msg.Client {
			return false
		}
	}
	return true
}

// runHandler invokes a matched handler and, for requests, writes the reply
// frame back to the originating client. Panics are recovered so a single
// bad handler cannot take down the reader that dispatched it.
func (s *Server) runHandler(ctx context.Context, h *serverHandler, msg Message) {
	trace := ContextTrace(ctx)
	var reply []byte
	func() {
		defer func() {
			if r := recover(); r != nil {
				trace.handlerPanic(msg.Name, msg.Client, r)
			}
		}()
		reply = h.fn(msg, s, s.app)
	}()

	if msg.Name == HandshakeMsgName {
		trace.handshaked(msg.Client, string(msg.Body))
	}

	if !msg.Req() {
		return
	}

	s.mu.Lock()
	client := s.findClientLocked(msg.Client)
	s.mu.Unlock()
	if client == nil {
		// Peer disconnected between request and reply: drop silently.
		return
	}

	w, err := client.stream.Clone()
	if err != nil {
		trace.writeError("reply", msg.Client, err)
		return
	}
	// The reply always sets WITH_BODY, even for an empty body: this is the
	// wire contract callers correlate replies against, not an optimization
	// target.
	frame := Encode(msg.ID, MetaWithBody, msg.Name, reply)
	if _, err := w.Write(frame); err != nil {
		trace.writeError("reply", msg.Client, err)
	}
}

func (s *Server) findClientLocked(id string) *ConnectedClient {
	for _, c := range s.clients {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Server) findClientByNameLocked(name string) *ConnectedClient {
	for _, c := range s.clients {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// On registers a handler that fires every time a message matches clientName
// and msgName.
func (s *Server) On(clientName ClientName, msgName MsgNameFilter, h ServerHandlerFunc) {
	s.subscribe(clientName, msgName, false, h)
}

// Once registers a handler that fires at most once across the server's
// lifetime for messages matching clientName and msgName.
func (s *Server) Once(clientName ClientName, msgName MsgNameFilter, h ServerHandlerFunc) {
	s.subscribe(clientName, msgName, true, h)
}

func (s *Server) subscribe(clientName ClientName, msgName MsgNameFilter, once bool, h ServerHandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &serverHandler{fn: h, once: once}

	if !msgName.any {
		name := msgName.value
		entry.msgName = &name
	}

	if !clientName.any {
		name := clientName.value
		entry.clientName = &name
		if c := s.findClientByNameLocked(name); c != nil {
			id := c.ID
			entry.clientID = &id
		}
	}

	s.handlers = append(s.handlers, entry)
}

// Broadcast writes msgName/body to every currently connected client. It
// takes a snapshot of the client list under lock, then writes outside the
// lock; write failures are best-effort and reported via trace, never
// returned, matching the reference implementation's contract.
func (s *Server) Broadcast(ctx context.Context, msgName string, body []byte) {
	s.mu.Lock()
	targets := make([]*ConnectedClient, len(s.clients))
	copy(targets, s.clients)
	s.mu.Unlock()

	id := NewMsgID()
	meta := metaFor(false, body != nil)
	frame := Encode(id, meta, msgName, body)

	trace := ContextTrace(ctx)
	for _, c := range targets {
		w, err := c.stream.Clone()
		if err != nil {
			trace.writeError("broadcast", c.ID, err)
			continue
		}
		if _, err := w.Write(frame); err != nil {
			trace.writeError("broadcast", c.ID, err)
		}
	}
}

// Send writes msgName/body to the first client whose handshake label equals
// clientName. It silently no-ops when no such client is connected.
func (s *Server) Send(ctx context.Context, clientName string, msgName string, body []byte) {
	s.mu.Lock()
	client := s.findClientByNameLocked(clientName)
	s.mu.Unlock()
	if client == nil {
		return
	}

	id := NewMsgID()
	meta := metaFor(false, body != nil)
	frame := Encode(id, meta, msgName, body)

	w, err := client.stream.Clone()
	if err != nil {
		ContextTrace(ctx).writeError("send", client.ID, err)
		return
	}
	if _, err := w.Write(frame); err != nil {
		ContextTrace(ctx).writeError("send", client.ID, err)
	}
}

// Disconnect shuts down the stream of the client matching ref by either name
// or connection id, which causes that peer's reader to observe EOF.
func (s *Server) Disconnect(clientRef string) error {
	s.mu.Lock()
	var target *ConnectedClient
	for _, c := range s.clients {
		if c.ID == clientRef || c.Name == clientRef {
			target = c
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return ErrClientNotFound
	}
	return target.stream.Shutdown()
}

// handleHandshake is the server's mandatory first handler: it records the
// client's chosen label, resolves any handler that was registered against
// that label before the client connected, then replies with the connection
// id so the dispatcher's normal request/reply path delivers it to the
// client.
func (s *Server) handleHandshake(msg Message, _ *Server, _ any) []byte {
	newName := ""
	if msg.Body != nil {
		newName = string(msg.Body)
	}

	s.mu.Lock()
	if c := s.findClientLocked(msg.Client); c != nil {
		c.Name = newName
	}
	for _, h := range s.handlers {
		if h.clientName != nil && *h.clientName == newName {
			id := msg.Client
			h.clientID = &id
		}
	}
	s.mu.Unlock()

	return []byte(msg.Client)
}
