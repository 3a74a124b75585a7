package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kcarretto/soulmesh/connection"
	"github.com/kcarretto/soulmesh/distributed"
	"github.com/kcarretto/soulmesh/messages/peer"
	"github.com/kcarretto/soulmesh/messages/server"
	"github.com/kcarretto/soulmesh/protocol"
	"github.com/kcarretto/soulmesh/ratelimit"
	"github.com/kcarretto/soulmesh/waitkey"
)

// Client represents a Soulseek client connection.
type Client struct {
	opts            *Options
	conn            *connection.Conn
	router          *MessageRouter
	searches        *searchRegistry
	transfers       *TransferRegistry                                  // Unified transfer tracking
	listener        *Listener
	peerConnMgr     *peerConnManager                                   // Manages P-type connections to peers
	transferConnMgr *TransferConnectionManager                         // Manages F-type transfer connections
	solicitations   *waitkey.Registry[*connection.Conn]                // Connections WE solicited via ConnectToPeerRequest
	peerSolicits    *pendingPeerSolicits                               // Pending connections PEER solicited (from ConnectToPeer)
	loginWaits      *waitkey.Registry[*server.LoginResponse]           // Correlates the login handshake's reply
	peerAddrWaits   *waitkey.Registry[*server.GetPeerAddressResponse]  // Correlates GetPeerAddress replies
	endpoints       *UserEndpointCache                                 // Cached GetPeerAddress resolutions
	searchCache     *SearchResponseCache                               // Search responses that raced registration
	slots           *SlotManager                                       // Per-user and global upload/download slot accounting
	queueMgr        *QueueManager                                      // Upload queue ordering
	uploadProc      *uploadProcessor                                   // Background processor for queued uploads
	uploadLimiter   *ratelimit.Bucket                                  // Caps aggregate upload throughput, nil if unlimited
	downloadLimiter *ratelimit.Bucket                                  // Caps aggregate download throughput, nil if unlimited
	distributedMgr  *distributed.Manager                               // Distributed search-mesh membership, nil if disabled
	events          *eventBus
	mu              sync.Mutex

	// Read loop management
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	// State
	username    string
	ipAddress   net.IP
	isSupporter bool
	connected   bool
	loggedIn    bool

	// Disconnected channel - closed when connection is lost
	disconnectedCh chan struct{}
	disconnectErr  error
}

// New creates a new client with the given options.
// If opts is nil, DefaultOptions() is used.
func New(opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	c := &Client{
		opts:          opts,
		router:        NewMessageRouter(),
		searches:      newSearchRegistry(),
		transfers:     NewTransferRegistry(),
		solicitations: waitkey.NewRegistry[*connection.Conn](),
		peerSolicits:  newPendingPeerSolicits(),
		loginWaits:    waitkey.NewRegistry[*server.LoginResponse](),
		peerAddrWaits: waitkey.NewRegistry[*server.GetPeerAddressResponse](),
		endpoints:     newUserEndpointCache(opts.UserEndpointCacheTTL),
		searchCache:   newSearchResponseCache(),
		slots:         NewSlotManagerWithCleanup(opts.MaxConcurrentDownloads, opts.MaxConcurrentUploads, opts.SlotCleanupInterval, opts.SlotIdleThreshold),
		queueMgr:      NewQueueManager(),
		events:        newEventBus(),
	}
	c.peerConnMgr = newPeerConnManager(c)
	c.transferConnMgr = NewTransferConnectionManager(c)
	c.listener = newListener(c)
	c.uploadProc = newUploadProcessor(c, c.slots, c.queueMgr, c.transfers, opts.FileSharer)
	c.uploadProc.Start()

	if opts.StartingToken != 0 {
		atomic.StoreUint32(&searchToken, opts.StartingToken)
		atomic.StoreUint32(&transferToken, opts.StartingToken)
		atomic.StoreUint32(&peerConnToken, opts.StartingToken)
		atomic.StoreUint32(&transferSolicitToken, opts.StartingToken)
	}

	if opts.UploadRateLimit > 0 {
		c.uploadLimiter = ratelimit.NewBucket(opts.UploadRateLimit, time.Second)
	}
	if opts.DownloadRateLimit > 0 {
		c.downloadLimiter = ratelimit.NewBucket(opts.DownloadRateLimit, time.Second)
	}

	if opts.EnableDistributedNetwork {
		c.distributedMgr = newDistributedManager(c, opts)
		c.listener.SetDistributedManager(c.distributedMgr)
	}

	return c
}

// Router returns the message router for registering custom handlers.
func (c *Client) Router() *MessageRouter {
	return c.router
}

// Transfers returns the transfer registry for tracking downloads and uploads.
func (c *Client) Transfers() *TransferRegistry {
	return c.transfers
}

// Disconnected returns a channel that is closed when the client disconnects.
// The error can be retrieved with DisconnectError().
func (c *Client) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectedCh
}

// DisconnectError returns the error that caused the disconnect, if any.
func (c *Client) DisconnectError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectErr
}

// Connect establishes a connection to the Soulseek server.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return errors.New("already connected")
	}

	// Apply timeout from options if context doesn't have a deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	conn, err := connection.Dial(ctx, c.opts.ServerAddress)
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}

	c.conn = conn
	c.connected = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.disconnectedCh = make(chan struct{})
	c.disconnectErr = nil
	return nil
}

// Disconnect closes the connection to the server.
func (c *Client) Disconnect() error {
	c.mu.Lock()

	if !c.connected {
		c.mu.Unlock()
		return nil // Already disconnected
	}

	// Signal read loop to stop
	if c.running {
		close(c.stopCh)
	}

	err := c.conn.Close()
	c.conn = nil
	c.connected = false
	c.loggedIn = false
	c.running = false
	c.username = ""
	c.ipAddress = nil
	c.isSupporter = false

	c.mu.Unlock()

	// Close all active channels
	c.searches.closeAll()
	c.solicitations.CancelAll(errors.New("client disconnected"))
	c.loginWaits.CancelAll(errors.New("client disconnected"))
	c.peerAddrWaits.CancelAll(errors.New("client disconnected"))

	// Close peer connection manager
	c.peerConnMgr.Close()

	if c.distributedMgr != nil {
		_ = c.distributedMgr.Close()
	}
	if c.uploadLimiter != nil {
		c.uploadLimiter.Close()
	}
	if c.downloadLimiter != nil {
		c.downloadLimiter.Close()
	}

	// Wait for read loop to finish (outside lock to avoid deadlock)
	if c.doneCh != nil {
		<-c.doneCh
	}

	return err
}

// Connected returns true if connected to the server.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// LoggedIn returns true if authenticated with the server.
func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

// Username returns the logged-in username.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// IPAddress returns our public IP as seen by the server.
func (c *Client) IPAddress() net.IP {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ipAddress
}

// IsSupporter returns true if the user has purchased privileges.
func (c *Client) IsSupporter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isSupporter
}

// WriteMessage sends a raw message to the server.
// This is a low-level method; prefer using specific methods like Search.
func (c *Client) WriteMessage(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return errors.New("not connected")
	}

	return c.conn.WriteMessage(payload)
}

// StartListener starts the TCP listener for incoming peer connections.
// This is required for downloads to work when peers need to connect to us.
func (c *Client) StartListener() error {
	if c.opts.ListenPort == 0 {
		return errors.New("listen port not configured")
	}
	return c.listener.Start(c.opts.ListenPort)
}

// StopListener stops the TCP listener.
func (c *Client) StopListener() error {
	return c.listener.Stop()
}

// ListenerPort returns the port the listener is bound to, or 0 if not running.
func (c *Client) ListenerPort() int {
	return c.listener.Port()
}

// pendingPeerSolicit represents a pending connection that a PEER solicited.
// The server sent us ConnectToPeer telling us to connect to the peer,
// but the peer might connect to us first via PierceFirewall.
type pendingPeerSolicit struct {
	username string
	connType server.ConnectionType // "P", "F", or "D"
}

// pendingPeerSolicits tracks pending peer-solicited connections.
// When we receive ConnectToPeer from the server, we store the token and type here.
// When we receive PierceFirewall with a matching token, we know what type of connection it is.
type pendingPeerSolicits struct {
	mu      sync.Mutex
	pending map[uint32]pendingPeerSolicit // by token
}

func newPendingPeerSolicits() *pendingPeerSolicits {
	return &pendingPeerSolicits{
		pending: make(map[uint32]pendingPeerSolicit),
	}
}

// add registers a pending peer-solicited connection.
func (p *pendingPeerSolicits) add(token uint32, username string, connType server.ConnectionType) {
	p.mu.Lock()
	p.pending[token] = pendingPeerSolicit{username: username, connType: connType}
	p.mu.Unlock()
}

// get retrieves and removes a pending peer-solicited connection.
func (p *pendingPeerSolicits) get(token uint32) (pendingPeerSolicit, bool) {
	p.mu.Lock()
	solicit, ok := p.pending[token]
	if ok {
		delete(p.pending, token)
	}
	p.mu.Unlock()
	return solicit, ok
}

// handleIncomingPeerMessages reads and dispatches messages from an incoming peer connection.
func (c *Client) handleIncomingPeerMessages(conn *connection.Conn, username string) {
	for {
		// Set a read deadline for each message - 5 minutes to allow for queued transfers
		if err := conn.SetDeadline(time.Now().Add(5 * time.Minute)); err != nil {
			return
		}

		payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if len(payload) < 4 {
			continue
		}

		code := binary.LittleEndian.Uint32(payload[:4])

		// Handle peer messages
		switch code {
		case uint32(protocol.PeerSearchResponse):
			c.handleSearchResponse(payload)
			// Don't return - keep connection open for potential transfer messages

		case uint32(protocol.PeerTransferRequest):
			c.handleTransferRequest(payload, username, conn)

		case uint32(protocol.PeerQueueDownload):
			c.handleQueueDownload(payload, username, conn)

		case uint32(protocol.PeerTransferResponse):
			// Handle transfer response from peer
			// This is handled by the download flow directly

		case uint32(protocol.PeerPlaceInQueueResponse):
			c.handlePlaceInQueueResponse(payload, username)

		case uint32(protocol.PeerUploadDenied):
			c.handleUploadDenied(payload, username)

		case uint32(protocol.PeerUploadFailed):
			c.handleUploadFailed(payload, username)

		case uint32(protocol.PeerBrowseRequest):
			c.handleBrowseRequest(payload, username, conn)

		case uint32(protocol.PeerInfoRequest):
			c.handleInfoRequest(payload, username, conn)

		case uint32(protocol.PeerFolderContentsRequest):
			c.handleFolderContentsRequest(payload, username, conn)

		case uint32(protocol.PeerPlaceInQueueRequest):
			c.handlePlaceInQueueRequest(payload, username, conn)
		}
	}
}

// handleBrowseRequest answers a peer's request for our shared file
// listing via Options.BrowseResponseResolver. With no resolver
// configured, an empty listing is returned rather than nothing, since
// silence would leave the peer's browse UI stuck waiting.
func (c *Client) handleBrowseRequest(payload []byte, username string, conn *connection.Conn) {
	if _, err := peer.DecodeBrowseRequest(payload); err != nil {
		return
	}

	resp := &peer.BrowseResponse{}
	if c.opts.BrowseResponseResolver != nil {
		if r := c.opts.BrowseResponseResolver(username); r != nil {
			resp = r
		}
	}

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	if err := resp.Encode(w); err != nil {
		return
	}
	_ = conn.WriteMessage(buf.Bytes())
}

// handleInfoRequest answers a peer's request for our profile via
// Options.UserInfoResponseResolver.
func (c *Client) handleInfoRequest(payload []byte, username string, conn *connection.Conn) {
	if _, err := peer.DecodeInfoRequest(payload); err != nil {
		return
	}

	resp := &peer.InfoResponse{}
	if c.opts.UserInfoResponseResolver != nil {
		if r := c.opts.UserInfoResponseResolver(username); r != nil {
			resp = r
		}
	}

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	resp.Encode(w)
	if w.Error() != nil {
		return
	}
	_ = conn.WriteMessage(buf.Bytes())
}

// handleFolderContentsRequest answers a peer's request for a single
// folder's file listing via Options.DirectoryContentsResolver.
func (c *Client) handleFolderContentsRequest(payload []byte, username string, conn *connection.Conn) {
	req, err := peer.DecodeFolderContentsRequest(payload)
	if err != nil {
		return
	}

	var files []peer.File
	if c.opts.DirectoryContentsResolver != nil {
		files = c.opts.DirectoryContentsResolver(username, req.Folder)
	}

	resp := &peer.FolderContentsResponse{Token: req.Token, Folder: req.Folder, Files: files}
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	resp.Encode(w)
	if w.Error() != nil {
		return
	}
	_ = conn.WriteMessage(buf.Bytes())
}

// handlePlaceInQueueRequest answers a peer's queue-position query via
// Options.PlaceInQueueResponseResolver. With no resolver configured, no
// response is sent - unlike browse/info, silence here is the protocol's
// existing behavior for files we're not queuing.
func (c *Client) handlePlaceInQueueRequest(payload []byte, username string, conn *connection.Conn) {
	req, err := peer.DecodePlaceInQueueRequest(payload)
	if err != nil {
		return
	}
	if c.opts.PlaceInQueueResponseResolver == nil {
		return
	}

	place := c.opts.PlaceInQueueResponseResolver(username, req.Filename)
	resp := &peer.PlaceInQueueResponse{Filename: req.Filename, Place: place}
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	resp.Encode(w)
	if w.Error() != nil {
		return
	}
	_ = conn.WriteMessage(buf.Bytes())
}

// handlePlaceInQueueResponse handles queue position updates.
func (c *Client) handlePlaceInQueueResponse(payload []byte, username string) {
	resp, err := peer.DecodePlaceInQueueResponse(payload)
	if err != nil {
		return
	}

	tr, ok := c.transfers.GetByFile(username, resp.Filename, peer.TransferDownload)
	if ok {
		tr.SetQueuePosition(resp.Place)
	}
}

// handleUploadDenied handles upload denial messages.
func (c *Client) handleUploadDenied(payload []byte, username string) {
	denied, err := peer.DecodeUploadDenied(payload)
	if err != nil {
		return
	}

	tr, ok := c.transfers.GetByFile(username, denied.Filename, peer.TransferDownload)
	if ok {
		tr.mu.Lock()
		tr.Error = &TransferRejectedError{Reason: denied.Reason}
		tr.mu.Unlock()
		tr.SetState(TransferStateCompleted | TransferStateRejected)
		tr.emitProgress()
	}
}

// handleUploadFailed handles upload failure messages.
func (c *Client) handleUploadFailed(payload []byte, username string) {
	failed, err := peer.DecodeUploadFailed(payload)
	if err != nil {
		return
	}

	tr, ok := c.transfers.GetByFile(username, failed.Filename, peer.TransferDownload)
	if ok {
		tr.mu.Lock()
		tr.Error = &TransferFailedError{Username: username, Filename: failed.Filename}
		tr.mu.Unlock()
		tr.SetState(TransferStateCompleted | TransferStateErrored)
		tr.emitProgress()
	}
}
