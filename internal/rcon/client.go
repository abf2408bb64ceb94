// Package rcon implements a persistent, authenticated client for the
// game's remote-command port. One client holds one TCP session; Exec
// calls are serialized by an internal mutex and the session is reused
// until a socket error forces a reconnect.
package rcon

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

var (
	// ErrUnreachable means the game could not be dialed.
	ErrUnreachable = errors.New("rcon: server unreachable")
	// ErrAuthFailed means the game rejected the password. Not retried.
	ErrAuthFailed = errors.New("rcon: authentication failed")
	// ErrDisconnected means the session broke mid-exchange. The next
	// Exec attempts a fresh connect.
	ErrDisconnected = errors.New("rcon: disconnected")
	// ErrProtocol means a malformed packet was received.
	ErrProtocol = errors.New("rcon: protocol error")
)

const (
	dialTimeout = 10 * time.Second
	execTimeout = 30 * time.Second

	authPacketID = 1
	execPacketID = 2
)

// Client executes commands on the game over a persistent RCON session.
// Safe for concurrent use; calls are serialized.
type Client struct {
	addr     string
	password string

	mu        sync.Mutex // held across the full send/recv cycle
	conn      net.Conn
	connected bool

	onReconnect func() // optional, for instrumentation
}

// New creates a client for the given address. No connection is made
// until the first Exec.
func New(addr, password string) *Client {
	return &Client{
		addr:     addr,
		password: password,
	}
}

// OnReconnect registers a hook invoked each time a new session is
// established. Must be called before the first Exec.
func (c *Client) OnReconnect(fn func()) {
	c.onReconnect = fn
}

// Exec runs command on the game and returns its response payload.
// At most one exchange is in flight at a time; partial responses never
// leak between callers.
func (c *Client) Exec(command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		if err := c.connect(); err != nil {
			return "", err
		}
	}

	if err := c.conn.SetDeadline(time.Now().Add(execTimeout)); err != nil {
		c.dropLocked()
		return "", fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	if err := writePacket(c.conn, execPacketID, TypeExec, command); err != nil {
		c.dropLocked()
		return "", fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	_, _, payload, err := readPacket(c.conn)
	if err != nil {
		if errors.Is(err, ErrProtocol) {
			c.dropLocked()
			return "", err
		}
		c.dropLocked()
		return "", fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	return payload, nil
}

// connect dials and authenticates. Caller holds the mutex.
func (c *Client) connect() error {
	c.dropLocked()

	conn, err := net.DialTimeout("tcp", c.addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if err := writePacket(conn, authPacketID, TypeAuth, c.password); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	id, _, _, err := readPacket(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if id == -1 {
		conn.Close()
		slog.Error("rcon authentication failed, check password", "addr", c.addr)
		return ErrAuthFailed
	}

	c.conn = conn
	c.connected = true
	slog.Info("rcon session established", "addr", c.addr)
	if c.onReconnect != nil {
		c.onReconnect()
	}
	return nil
}

// dropLocked closes the socket and clears session state. Caller holds
// the mutex.
func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// Close tears down the session. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked()
	return nil
}
