package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/kcarretto/soulmesh/messages/peer"
	"github.com/kcarretto/soulmesh/messages/server"
	"github.com/kcarretto/soulmesh/protocol"
	"github.com/kcarretto/soulmesh/waitkey"
)

// keepaliveInterval is how often we send a ServerPing on our own
// initiative, independent of the server's inbound pings.
const keepaliveInterval = 30 * time.Second

// Login authenticates with the Soulseek server.
// Connect must be called first.
func (c *Client) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return errors.New("not connected")
	}
	if c.loggedIn {
		c.mu.Unlock()
		return errors.New("already logged in")
	}

	// Set deadline from context or use default message timeout
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = time.Now().Add(c.opts.MessageTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("set deadline: %w", err)
	}
	// Clear deadline once login completes, one way or another.
	defer func() { _ = c.conn.SetDeadline(time.Time{}) }()

	c.registerInternalHandlers()
	c.mu.Unlock()

	// Register the wait before the read loop starts, so the response
	// can't be dispatched and dropped before anyone is listening for it.
	key := waitkey.New(waitkey.Login)
	resultCh, release, err := c.loginWaits.Wait(ctx, key)
	if err != nil {
		return fmt.Errorf("register login wait: %w", err)
	}
	defer release()

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	go c.runReadLoop()
	go c.runKeepalive()

	// Build concatenated message: Login + SetListenPort
	// This prevents a race condition where peers see port 0.
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)

	loginReq := server.NewLoginRequest(username, password)
	loginReq.Encode(w)

	portReq := &server.SetListenPort{Port: c.opts.ListenPort}
	portReq.Encode(w)

	if err := w.Error(); err != nil {
		return fmt.Errorf("encode login: %w", err)
	}

	if err := c.WriteMessage(buf.Bytes()); err != nil {
		return fmt.Errorf("send login: %w", err)
	}

	result := <-resultCh
	if result.Err != nil {
		return fmt.Errorf("login: %w", result.Err)
	}

	resp := result.Value
	if !resp.Succeeded {
		return fmt.Errorf("login rejected: %s", resp.Message)
	}

	c.mu.Lock()
	c.username = username
	c.ipAddress = resp.IPAddress
	c.isSupporter = resp.IsSupporter
	c.loggedIn = true
	c.peerConnMgr.ourUsername = username
	c.mu.Unlock()

	// Send post-login configuration
	if err := c.sendPostLoginConfig(); err != nil {
		return fmt.Errorf("post-login config: %w", err)
	}

	if c.opts.EnableListener {
		if err := c.StartListener(); err != nil {
			return fmt.Errorf("start listener: %w", err)
		}
	}

	if c.distributedMgr != nil {
		c.startDistributedNetwork()
	}

	return nil
}

// handleLoginResponse decodes the server's login reply and delivers it to
// whoever is blocked in Login.
func (c *Client) handleLoginResponse(_ uint32, payload []byte) {
	resp, err := server.DecodeLoginResponse(protocol.NewReader(bytes.NewReader(payload)))
	if err != nil {
		c.loginWaits.Fail(waitkey.New(waitkey.Login), err)
		return
	}
	c.loginWaits.Complete(waitkey.New(waitkey.Login), resp)
}

// handleGetPeerAddressResponse decodes a GetPeerAddress reply, caches the
// resolved endpoint, and delivers it to whoever is waiting on it.
func (c *Client) handleGetPeerAddressResponse(_ uint32, payload []byte) {
	resp, err := server.DecodeGetPeerAddress(protocol.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return
	}
	c.endpoints.Set(resp.Username, fmt.Sprintf("%s:%d", resp.IPAddress, resp.Port))
	c.peerAddrWaits.Complete(waitkey.New(waitkey.GetPeerAddress, resp.Username), resp)
}

// startDistributedNetwork announces our child-acceptance preference and
// arms self-promotion to branch root if no parent shows up before
// NoParentGracePeriod elapses, per the distributed network's bootstrap
// sequence.
func (c *Client) startDistributedNetwork() {
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	(&server.AcceptChildren{Accept: c.opts.AcceptDistributedChildren}).Encode(w)
	if w.Error() == nil {
		_ = c.WriteMessage(buf.Bytes())
	}

	buf.Reset()
	w = protocol.NewWriter(&buf)
	(&server.HaveNoParents{HaveNoParents: true}).Encode(w)
	if w.Error() == nil {
		_ = c.WriteMessage(buf.Bytes())
	}

	c.distributedMgr.ScheduleRootPromotion(c.username)
}

// runKeepalive sends a ServerPing on our own initiative every
// keepaliveInterval, independent of the server's inbound pings.
func (c *Client) runKeepalive() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			var buf bytes.Buffer
			w := protocol.NewWriter(&buf)
			(&server.Ping{}).Encode(w)
			if w.Error() == nil {
				_ = c.WriteMessage(buf.Bytes())
			}
		}
	}
}

// registerInternalHandlers sets up handlers for messages the client processes internally.
func (c *Client) registerInternalHandlers() {
	// Login and GetPeerAddress replies correlate to a waiting caller via
	// their respective waitkey registries.
	c.router.Register(uint32(protocol.ServerLogin), c.handleLoginResponse)
	c.router.Register(uint32(protocol.ServerGetPeerAddress), c.handleGetPeerAddressResponse)

	// Handle embedded messages (server code 93) - these contain peer or
	// distributed messages relayed by the server.
	c.router.Register(uint32(protocol.ServerEmbeddedMessage), c.handleEmbeddedMessage)

	// Handle ping (server code 32) - echo back
	c.router.Register(uint32(protocol.ServerPing), c.handlePing)

	// Handle ConnectToPeer (server code 18) - connect to peers who have search results
	c.router.Register(uint32(protocol.ServerConnectToPeer), c.handleConnectToPeer)

	// Handle NetInfo (server code 102) - candidate distributed parents to seek
	c.router.Register(uint32(protocol.ServerNetInfo), c.handleNetInfo)

	// Handle chat room, private message, privilege, and status pushes
	c.router.Register(uint32(protocol.ServerSayInChatRoom), c.handleChatRoomMessage)
	c.router.Register(uint32(protocol.ServerPrivateMessage), c.handlePrivateMessage)
	c.router.Register(uint32(protocol.ServerNotifyPrivileges), c.handleNotifyPrivileges)
	c.router.Register(uint32(protocol.ServerGetStatus), c.handleUserStatusChanged)
	c.router.Register(uint32(protocol.ServerKickedFromServer), c.handleKickedFromServer)
}

// handleEmbeddedMessage processes an embedded message relayed by the
// server (server code 93). A leading 1-byte code identifies what follows:
// a full peer search response (code 9, delivered when we're acting as a
// branch root and the server relays a match to us directly), or a
// distributed-tree message that must be handled the same way a message
// read directly from our parent connection would be. The two spaces
// share small integer codes, so this can never be routed through the
// server-scope MessageRouter without colliding with unrelated server
// codes.
func (c *Client) handleEmbeddedMessage(_ uint32, payload []byte) {
	if len(payload) < 5 {
		return
	}

	embeddedPayload := payload[5:]
	if len(embeddedPayload) >= 4 {
		peerCode := binary.LittleEndian.Uint32(embeddedPayload[:4])
		if peerCode == uint32(protocol.PeerSearchResponse) {
			c.handleSearchResponse(embeddedPayload)
			return
		}
	}

	if c.distributedMgr == nil {
		return
	}
	if err := c.distributedMgr.HandleParentMessage(context.Background(), payload[4:], c.resolveDistributedSearch); err != nil {
		c.debugf("distributed: embedded message error: %v", err)
	}
}

// handleSearchResponse parses and delivers a search response to the appropriate channel.
// If no search is registered yet for the token, the raw payload is buffered
// briefly in case Search's registration is still in flight.
func (c *Client) handleSearchResponse(payload []byte) {
	resp, err := peer.DecodeSearchResponse(payload)
	if err != nil {
		return
	}

	if !c.searches.deliver(resp) {
		c.searchCache.Buffer(resp.Token, payload)
	}
}

// handlePing echoes ping messages back to the server.
func (c *Client) handlePing(_ uint32, _ []byte) {
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	(&server.Ping{}).Encode(w)
	if w.Error() == nil {
		_ = c.WriteMessage(buf.Bytes())
	}
}

// runReadLoop reads messages from the server and dispatches them.
func (c *Client) runReadLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		payload, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			c.loggedIn = false
			c.running = false
			c.disconnectErr = err
			close(c.disconnectedCh)
			c.mu.Unlock()

			// Close all active channels
			c.searches.closeAll()
			return
		}

		if len(payload) < 4 {
			continue
		}

		code := binary.LittleEndian.Uint32(payload[:4])
		c.router.Dispatch(code, payload)
	}
}

// sendPostLoginConfig sends configuration messages after successful login.
func (c *Client) sendPostLoginConfig() error {
	var buf bytes.Buffer

	// Set online status
	w := protocol.NewWriter(&buf)
	(&server.SetOnlineStatus{Status: server.StatusOnline}).Encode(w)
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := c.WriteMessage(buf.Bytes()); err != nil {
		return fmt.Errorf("send status: %w", err)
	}

	// Report shared files (always 0 directories and 0 files; the FileSharer's contents are not counted)
	buf.Reset()
	w = protocol.NewWriter(&buf)
	(&server.SharedFoldersAndFiles{Directories: 0, Files: 0}).Encode(w)
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode shares: %w", err)
	}
	if err := c.WriteMessage(buf.Bytes()); err != nil {
		return fmt.Errorf("send shares: %w", err)
	}

	return nil
}
