// Package peerconn wraps a single TCP connection to a peer with the
// request/response discipline the wire protocol requires: one request
// in flight at a time, and a connection that goes permanently dead the
// first time it fails an I/O, the way the teacher's peer.Conn wraps a
// raw BitTorrent connection.
package peerconn

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mccartykim/swarmd/internal/codec"
)

// ErrPoisoned is returned by every call on a Conn after its first I/O
// or decode failure. The caller is expected to drop the connection and,
// for a Downloader, reselect a different peer.
var ErrPoisoned = errors.New("peerconn: connection poisoned by prior error")

// Conn serializes request/response exchanges over a single net.Conn.
// Exactly one sendAndReceive runs at a time; concurrent callers block on
// mu, which does not guarantee they proceed in arrival order.
type Conn struct {
	mu       sync.Mutex
	conn     net.Conn
	addr     string
	poisoned bool
	lastErr  error
}

// Dial connects to addr (host:port) with the given timeout and wraps the
// resulting connection.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("peerconn: dial %s: %w", addr, err)
	}
	return Wrap(c), nil
}

// Wrap adapts an already-open net.Conn, e.g. one accepted by a listener.
func Wrap(c net.Conn) *Conn {
	return &Conn{conn: c, addr: c.RemoteAddr().String()}
}

// Addr returns the remote address this connection targets.
func (c *Conn) Addr() string {
	return c.addr
}

// SendAndReceive writes req and reads exactly one response, holding the
// connection's lock for the full round trip so two callers never
// interleave frames on the wire. Any I/O or decode error poisons the
// connection: every later call returns ErrPoisoned without touching the
// network.
func (c *Conn) SendAndReceive(req codec.Message, deadline time.Duration) (codec.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		return nil, fmt.Errorf("%w: %v", ErrPoisoned, c.lastErr)
	}

	if deadline > 0 {
		c.conn.SetDeadline(time.Now().Add(deadline))
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := codec.Encode(req, c.conn); err != nil {
		return nil, c.poison(fmt.Errorf("peerconn: encode to %s: %w", c.addr, err))
	}

	resp, err := codec.Decode(c.conn)
	if err != nil {
		return nil, c.poison(fmt.Errorf("peerconn: decode from %s: %w", c.addr, err))
	}
	return resp, nil
}

// Send writes a one-way message with no expected response, e.g. a
// seeder streaming unsolicited Have-style updates. Not used by the
// current protocol but kept symmetric with SendAndReceive for callers
// that only need half the exchange.
func (c *Conn) Send(msg codec.Message, deadline time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		return fmt.Errorf("%w: %v", ErrPoisoned, c.lastErr)
	}
	if deadline > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(deadline))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := codec.Encode(msg, c.conn); err != nil {
		return c.poison(fmt.Errorf("peerconn: encode to %s: %w", c.addr, err))
	}
	return nil
}

// poison marks the connection dead and returns err unchanged, so callers
// can write "return nil, c.poison(err)".
func (c *Conn) poison(err error) error {
	c.poisoned = true
	c.lastErr = err
	return err
}

// Poisoned reports whether a prior error already killed this connection.
func (c *Conn) Poisoned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poisoned
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Conn) Close() error {
	return c.conn.Close()
}
