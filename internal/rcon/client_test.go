package rcon

import (
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubemc/mcbridge/internal/testutil"
)

// fakeServer is a minimal RCON server for client tests.
type fakeServer struct {
	password string
	respond  func(cmd string) string

	mu       sync.Mutex
	commands []string
	conns    []net.Conn
}

func startFakeServer(t *testing.T, password string, respond func(cmd string) string) (*fakeServer, string) {
	t.Helper()

	ln, addr := testutil.ListenTCP(t)
	srv := &fakeServer{password: password, respond: respond}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.mu.Lock()
			srv.conns = append(srv.conns, conn)
			srv.mu.Unlock()
			go srv.handle(conn)
		}
	}()

	t.Cleanup(srv.closeAll)
	return srv, addr
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	for {
		id, typ, payload, err := readPacket(conn)
		if err != nil {
			return
		}
		switch typ {
		case TypeAuth:
			respID := id
			if payload != s.password {
				respID = -1
			}
			if err := writePacket(conn, respID, TypeAuthResponse, ""); err != nil {
				return
			}
		case TypeExec:
			s.mu.Lock()
			s.commands = append(s.commands, payload)
			s.mu.Unlock()
			if err := writePacket(conn, id, TypeResponse, s.respond(payload)); err != nil {
				return
			}
		}
	}
}

func (s *fakeServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func TestClient_ExecEcho(t *testing.T) {
	_, addr := startFakeServer(t, "secret", func(cmd string) string {
		return "echo: " + cmd
	})

	c := New(addr, "secret")
	defer c.Close()

	resp, err := c.Exec("list")
	require.NoError(t, err)
	assert.Equal(t, "echo: list", resp)

	// Session is reused for the second call.
	resp, err = c.Exec("getstats")
	require.NoError(t, err)
	assert.Equal(t, "echo: getstats", resp)
}

func TestClient_AuthFailed(t *testing.T) {
	_, addr := startFakeServer(t, "secret", func(string) string { return "" })

	c := New(addr, "wrong")
	defer c.Close()

	_, err := c.Exec("list")
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestClient_Unreachable(t *testing.T) {
	// Grab a port and close it so nothing is listening.
	ln, addr := testutil.ListenTCP(t)
	require.NoError(t, ln.Close())

	c := New(addr, "secret")
	defer c.Close()

	_, err := c.Exec("list")
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	srv, addr := startFakeServer(t, "secret", func(string) string { return "ok" })

	c := New(addr, "secret")
	defer c.Close()

	_, err := c.Exec("first")
	require.NoError(t, err)

	// Kill the session behind the client's back.
	srv.closeAll()

	// The in-flight session is gone; this call fails...
	_, err = c.Exec("second")
	require.ErrorIs(t, err, ErrDisconnected)

	// ...and the next one re-establishes.
	resp, err := c.Exec("third")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Contains(t, srv.received(), "third")
}

func TestClient_ConcurrentExecSerialized(t *testing.T) {
	srv, addr := startFakeServer(t, "secret", func(cmd string) string { return cmd })

	c := New(addr, "secret")
	defer c.Close()

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	for w := range workers {
		wg.Go(func() {
			for i := range perWorker {
				cmd := fmt.Sprintf("cmd-%d-%d", w, i)
				resp, err := c.Exec(cmd)
				// Each caller must get its own response back, never a
				// neighbour's.
				assert.NoError(t, err)
				assert.Equal(t, cmd, resp)
			}
		})
	}
	wg.Wait()

	assert.Len(t, srv.received(), workers*perWorker)
}

func TestClient_CloseIdempotent(t *testing.T) {
	_, addr := startFakeServer(t, "secret", func(string) string { return "" })

	c := New(addr, "secret")
	_, err := c.Exec("list")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// Exec after close reconnects.
	_, err = c.Exec("list")
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
