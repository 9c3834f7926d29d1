// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package congo

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, srv *Server) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			conn, aerr := ln.Accept()
			if aerr != nil {
				return
			}
			srv.admit(ctx, conn)
		}
	}()

	return ln.Addr().String(), func() {
		cancel()
		_ = ln.Close()
	}
}

// Property 9: a freshly constructed server has exactly one handler
// (handshake); on(Any, Any, ...) brings it to two.
func TestNewServerHasOneHandlerThenTwo(t *testing.T) {
	srv := NewServer(nil)
	require.Len(t, srv.handlers, 1)

	srv.On(AnyClient(), AnyMsgName(), func(Message, *Server, any) []byte { return nil })
	require.Len(t, srv.handlers, 2)
}

// Property 4: handlers registered in order h1, h2, h3 matching the same
// message are invoked in that order.
func TestHandlerRegistryOrdering(t *testing.T) {
	srv := NewServer(nil)

	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, 3)
	record := func(i int) ServerHandlerFunc {
		return func(Message, *Server, any) []byte {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			done <- struct{}{}
			return nil
		}
	}
	srv.On(AnyClient(), MsgNameIs("ping"), record(1))
	srv.On(AnyClient(), MsgNameIs("ping"), record(2))
	srv.On(AnyClient(), MsgNameIs("ping"), record(3))

	srv.dispatch(context.Background(), Message{Name: "ping", Client: "c"})

	for i := 0; i < 3; i++ {
		<-done
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3}, order)
}

// Property 5: a once handler matching N qualifying messages fires exactly
// once, and called is monotonic false->true.
func TestOnceHandlerFiresExactlyOnce(t *testing.T) {
	srv := NewServer(nil)

	var calls int32
	fired := make(chan struct{}, 1)
	srv.Once(AnyClient(), MsgNameIs("ping"), func(Message, *Server, any) []byte {
		calls++
		fired <- struct{}{}
		return nil
	})

	require.False(t, srv.handlers[1].called)

	for i := 0; i < 5; i++ {
		srv.dispatch(context.Background(), Message{Name: "ping", Client: "c"})
	}
	<-fired

	time.Sleep(20 * time.Millisecond) // let any stray goroutine land
	require.Equal(t, int32(1), calls)
	require.True(t, srv.handlers[1].called)
}

// Property 7: registering a handler for client_name="X" before X connects
// routes X's later messages to the handler once its handshake completes.
func TestNameFilterBindingAcrossHandshake(t *testing.T) {
	srv := NewServer(nil)

	fired := make(chan Message, 1)
	srv.On(ClientIs("c3"), MsgNameIs("msg"), func(msg Message, _ *Server, _ any) []byte {
		fired <- msg
		return nil
	})

	addr, stop := startServer(t, srv)
	defer stop()

	cli, err := Connect(context.Background(), addr, nil, "c3")
	require.NoError(t, err)
	defer cli.Disconnect()

	require.NoError(t, cli.Send("msg", []byte("hi")))

	select {
	case msg := <-fired:
		require.Equal(t, "msg", msg.Name)
		require.Equal(t, []byte("hi"), msg.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}
}

// Property 8: after disconnect(target), the server's client list no
// longer contains target, and a subsequent send(target, ...) is a silent
// no-op.
func TestDisconnectRemovesClient(t *testing.T) {
	srv := NewServer(nil)
	addr, stop := startServer(t, srv)
	defer stop()

	cli, err := Connect(context.Background(), addr, nil, "c1")
	require.NoError(t, err)
	defer cli.Disconnect()

	disc := make(chan struct{}, 1)
	cli.On(MsgNameIs(DisconnectMsgName), func(Message, *Client, any) {
		disc <- struct{}{}
	})

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var id string
	srv.mu.Lock()
	id = srv.clients[0].ID
	srv.mu.Unlock()

	require.NoError(t, srv.Disconnect(id))

	select {
	case <-disc:
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed disconnect")
	}

	require.Eventually(t, func() bool {
		srv.mu.Lock()
		defer srv.mu.Unlock()
		return len(srv.clients) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// A subsequent send to the now-gone client name is a silent no-op.
	srv.Send(context.Background(), "c1", "hi", nil)
}
