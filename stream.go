// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"net"
)

// Stream is the capability surface the core requires from a transport
// connection: read, write, flush, shutdown-both, clone, and non-blocking
// toggle. The reference implementation unifies TCP and Unix stream sockets
// behind a sum type; Go's net.Conn interface already abstracts both families
// (and is safe for concurrent use by a reader goroutine and a writer
// goroutine simultaneously — see the net package docs), so netStream is a
// thin wrapper rather than a second enum layer. See DESIGN.md for why
// Clone/SetNonblocking are no-ops here without losing the contract they
// describe.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Shutdown() error
	Clone() (Stream, error)
	SetNonblocking(nonblocking bool) error
}

// netStream adapts a net.Conn (TCP or Unix stream) to Stream.
type netStream struct {
	conn net.Conn
}

// NewStream wraps an already-established net.Conn.
func NewStream(conn net.Conn) Stream {
	return &netStream{conn: conn}
}

func (s *netStream) Read(p []byte) (int, error) {
	if s == nil || s.conn == nil {
		return 0, ErrEmptyStream
	}
	return s.conn.Read(p)
}

func (s *netStream) Write(p []byte) (int, error) {
	if s == nil || s.conn == nil {
		return 0, ErrEmptyStream
	}
	return s.conn.Write(p)
}

// Flush is a no-op: Encode always hands the frame codec one contiguous
// buffer to a single Write call, so there is no internal write buffer to
// drain. Kept to satisfy the capability surface described by the spec.
func (s *netStream) Flush() error {
	if s == nil || s.conn == nil {
		return ErrEmptyStream
	}
	return nil
}

// closeWriter/closeReader are implemented by *net.TCPConn and *net.UnixConn;
// shutting down both directions is the canonical disconnect signal and must
// cause the peer's next read to observe EOF.
type closeWriter interface {
	CloseWrite() error
}

type closeReader interface {
	CloseRead() error
}

func (s *netStream) Shutdown() error {
	if s == nil || s.conn == nil {
		return ErrEmptyStream
	}
	var firstErr error
	if cw, ok := s.conn.(closeWriter); ok {
		if err := cw.CloseWrite(); err != nil {
			firstErr = err
		}
	}
	if cr, ok := s.conn.(closeReader); ok {
		if err := cr.CloseRead(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Clone returns an independent handle over the same underlying connection.
// Unlike the Rust original (where try_clone duplicates the OS file
// descriptor so reader and writer threads each own a handle), Go's net.Conn
// is already safe to Read from one goroutine and Write from another
// concurrently, so Clone just wraps the same conn again — the contract
// ("reader gets its own handle before the record is published") is honored
// without a second descriptor.
func (s *netStream) Clone() (Stream, error) {
	if s == nil || s.conn == nil {
		return nil, ErrEmptyStream
	}
	return &netStream{conn: s.conn}, nil
}

// SetNonblocking is a documented no-op: the Go runtime's netpoller already
// multiplexes blocking-looking Read/Write calls over non-blocking file
// descriptors, so there is no user-visible blocking mode to toggle. Kept so
// Stream matches the capability surface the spec describes.
func (s *netStream) SetNonblocking(bool) error {
	if s == nil || s.conn == nil {
		return ErrEmptyStream
	}
	return nil
}
