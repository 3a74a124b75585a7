// Package connection provides TCP connection management for the Soulseek
// protocol: framed message I/O plus the state machine, identity, and
// inactivity-timeout bookkeeping shared across server, peer, transfer,
// and distributed connections.
package connection

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxMessageSize is the maximum allowed message size to prevent OOM attacks.
const maxMessageSize = 100 * 1024 * 1024 // 100MB

// ID opaquely identifies a connection for the lifetime of the process.
// It has no relation to any wire-level token; it exists purely so
// diagnostics and internal maps can refer to "this connection" without
// aliasing on remote address, which is not unique across NAT'd peers.
type ID = uuid.UUID

// ErrInactivityTimeout is the error delivered on the Disconnected channel
// when a connection is closed for exceeding its InactivityTimeout.
var ErrInactivityTimeout = errors.New("connection: inactivity timeout")

// ErrHandedOff is delivered on the Disconnected channel of a Conn whose
// underlying socket was taken over via Handoff; the Conn itself is no
// longer usable, but the socket lives on under its new owner.
var ErrHandedOff = errors.New("connection: handed off to new owner")

// DisconnectEvent reports why a connection left the Connected state.
type DisconnectEvent struct {
	Err error
}

// Options configures the lifecycle behavior of a Conn. Framing and
// dialing behavior are unaffected by Options; they only govern the state
// machine and inactivity timer.
type Options struct {
	// InactivityTimeout closes the connection if nothing is read or
	// written for this long. Zero disables the timer. It is ignored for
	// KindServer and KindPeerTransfer connections: the server connection
	// is kept alive by periodic pings at a layer above, and transfer
	// connections are naturally bursty (queued, paused, resumed) in ways
	// an idle timer would misread as death.
	InactivityTimeout time.Duration

	// Logger receives lifecycle diagnostics (inactivity timeouts,
	// handoffs). Defaults to logrus.StandardLogger() if nil.
	Logger *logrus.Logger
}

// Conn handles framed message I/O over a network connection, plus the
// state machine and identity bookkeeping layered on top of it. Messages
// are framed as [4-byte length][payload].
type Conn struct {
	id   ID
	kind Kind
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	wMu  sync.Mutex // serializes Write/WriteMessage so frames from concurrent callers never interleave

	sm  stateMachine
	log *logrus.Logger

	inactivityTimeout time.Duration
	activityMu        sync.Mutex
	activityTimer     *time.Timer

	disconnectOnce sync.Once
	disconnectedCh chan DisconnectEvent

	handedOff bool
}

// Dial connects to a Soulseek server. The returned Conn is of KindServer
// with no inactivity timeout, matching the reference client's own
// keep-alive-via-ping behavior for the server link.
func Dial(ctx context.Context, address string) (*Conn, error) {
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	c := NewConn(netConn)
	c.kind = KindServer
	return c, nil
}

// NewConn wraps an existing net.Conn, defaulting to KindPeerMessage with
// no inactivity timeout and the standard logger. Use NewConnWithOptions
// to configure a Kind and Options explicitly.
func NewConn(conn net.Conn) *Conn {
	return NewConnWithOptions(conn, KindPeerMessage, Options{})
}

// NewConnWithOptions wraps an existing net.Conn with an explicit Kind and
// Options, starting the inactivity timer if configured.
func NewConnWithOptions(conn net.Conn, kind Kind, opts Options) *Conn {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if kind == KindServer || kind == KindPeerTransfer {
		opts.InactivityTimeout = 0
	}
	c := &Conn{
		id:                uuid.New(),
		kind:              kind,
		conn:              conn,
		r:                 bufio.NewReader(conn),
		w:                 bufio.NewWriter(conn),
		log:               log,
		inactivityTimeout: opts.InactivityTimeout,
		disconnectedCh:    make(chan DisconnectEvent, 1),
	}
	c.sm.state = Connected
	if c.inactivityTimeout > 0 {
		c.activityMu.Lock()
		c.activityTimer = time.AfterFunc(c.inactivityTimeout, c.onInactivityTimeout)
		c.activityMu.Unlock()
	}
	return c
}

// ID returns the connection's opaque identity.
func (c *Conn) ID() ID { return c.id }

// Kind returns the connection's role.
func (c *Conn) Kind() Kind { return c.kind }

// State returns the connection's current lifecycle state.
func (c *Conn) State() State { return c.sm.current() }

// Disconnected returns a channel that receives exactly one
// DisconnectEvent when the connection leaves the Connected state,
// whether via Close, an inactivity timeout, or Handoff.
func (c *Conn) Disconnected() <-chan DisconnectEvent {
	return c.disconnectedCh
}

func (c *Conn) onInactivityTimeout() {
	c.log.WithFields(logrus.Fields{
		"connection_id": c.id,
		"kind":          c.kind.String(),
		"remote_addr":   c.conn.RemoteAddr(),
	}).Warn("connection: inactivity timeout")
	c.disconnect(ErrInactivityTimeout)
}

// resetActivity restarts the inactivity timer, called after every
// successful read or write. A no-op if no timeout is configured.
func (c *Conn) resetActivity() {
	if c.inactivityTimeout <= 0 {
		return
	}
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	if c.activityTimer != nil {
		c.activityTimer.Reset(c.inactivityTimeout)
	}
}

// disconnect performs the shared teardown for Close, inactivity timeout,
// and Handoff: it transitions to Disconnected exactly once and delivers
// err on the Disconnected channel.
func (c *Conn) disconnect(err error) {
	c.disconnectOnce.Do(func() {
		c.sm.forceTransition(Disconnected)
		c.activityMu.Lock()
		if c.activityTimer != nil {
			c.activityTimer.Stop()
		}
		c.activityMu.Unlock()
		select {
		case c.disconnectedCh <- DisconnectEvent{Err: err}:
		default:
		}
	})
}

// Handoff transfers ownership of the underlying net.Conn to a new owner
// and marks this Conn Disconnected without closing the socket. Used by
// the incoming-connection acceptor once it has classified a connection
// (peer message, transfer, or distributed) and wants to build a
// purpose-specific Conn around the same socket instead of tearing it
// down and reconnecting. After Handoff, this Conn's ReadMessage/
// WriteMessage/Close must not be called.
func (c *Conn) Handoff() net.Conn {
	c.handedOff = true
	c.disconnect(ErrHandedOff)
	return c.conn
}

// ReadMessage reads the next framed message.
// Returns the payload (without the length prefix).
func (c *Conn) ReadMessage() ([]byte, error) {
	var length uint32
	if err := binary.Read(c.r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("read message length: %w", err)
	}

	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes (max %d)", length, maxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return nil, fmt.Errorf("read message payload: %w", err)
	}

	c.resetActivity()
	return payload, nil
}

// Read reads raw, unframed bytes directly from the connection's buffered
// reader. Used for the handful of wire structures that aren't
// length-prefixed messages, such as the raw 4-byte remote token sent at
// the start of a transfer connection.
func (c *Conn) Read(p []byte) (int, error) {
	n, err := io.ReadFull(c.r, p)
	if err == nil {
		c.resetActivity()
	}
	return n, err
}

// Write writes raw, unframed bytes directly to the connection, flushing
// immediately. Used for the same handful of non-length-prefixed wire
// structures as Read: the remote transfer token and the download resume
// offset exchanged at the start of a transfer connection.
func (c *Conn) Write(p []byte) (int, error) {
	c.wMu.Lock()
	defer c.wMu.Unlock()
	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := c.w.Flush(); err != nil {
		return n, err
	}
	c.resetActivity()
	return n, nil
}

// WriteMessage writes a framed message, serialized against every other
// Write/WriteMessage on this connection so two callers can never
// interleave a length prefix with another caller's payload.
// Automatically prepends the 4-byte length prefix.
func (c *Conn) WriteMessage(payload []byte) error {
	c.wMu.Lock()
	defer c.wMu.Unlock()

	//nolint:gosec // Message payloads are always < 4GB
	length := uint32(len(payload))
	if err := binary.Write(c.w, binary.LittleEndian, length); err != nil {
		return fmt.Errorf("write message length: %w", err)
	}
	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("write message payload: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	c.resetActivity()
	return nil
}

// Close closes the underlying connection and transitions it to
// Disconnected. Safe to call multiple times.
func (c *Conn) Close() error {
	c.disconnect(nil)
	return c.conn.Close()
}

// SetDeadline sets read and write deadlines on the connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline sets the read deadline on the connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the connection.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
