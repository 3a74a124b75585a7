// Package distributed maintains this node's position in the Soulseek
// distributed search tree: the parent connection search requests flow
// down from, and the children search requests flood out to. Every node
// in the mesh eventually reaches every other node's search index by
// relaying, not by a central broadcast.
package distributed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kcarretto/soulmesh/connection"
	distmsg "github.com/kcarretto/soulmesh/messages/distributed"
	"github.com/kcarretto/soulmesh/messages/peer"
	"github.com/kcarretto/soulmesh/protocol"
	"github.com/kcarretto/soulmesh/waitkey"
)

// ErrChildLimitReached is returned by AddChild once ChildLimit children
// are already attached.
var ErrChildLimitReached = errors.New("distributed: child limit reached")

// ErrChildrenNotAccepted is returned by AddChild when AcceptChildren is false.
var ErrChildrenNotAccepted = errors.New("distributed: not accepting children")

// Candidate is a distributed-parent candidate as advertised by the
// server's NetInfo push.
type Candidate struct {
	Username string
	Address  string
}

// SearchResolver looks up local shared-file matches for a distributed
// search query, returning nil if there are no matches worth answering
// (the common case — most relayed searches don't match this node's
// share).
type SearchResolver func(ctx context.Context, req *distmsg.SearchRequest) *peer.SearchResponse

// SearchResponder delivers a resolver's non-empty match to the searching
// user, once HandleSearchRequest has confirmed there's something worth
// sending. The manager has no notion of peer connections, so locating
// (or establishing) the user's peer message connection and writing the
// SearchResponse frame to it is left entirely to the responder.
type SearchResponder func(ctx context.Context, req *distmsg.SearchRequest, resp *peer.SearchResponse)

// Dialer opens a direct TCP connection, matching connection.Dial's
// signature so tests can substitute a fake.
type Dialer func(ctx context.Context, addr string) (*connection.Conn, error)

// IndirectRequester solicits an indirect distributed connection via the
// server (a ConnectToPeerRequest of type "D") and waits for the peer to
// dial back.
type IndirectRequester func(ctx context.Context, username string) (*connection.Conn, error)

// Options configures a Manager.
type Options struct {
	// AcceptChildren enables AddChild; false rejects every child.
	AcceptChildren bool
	// ChildLimit caps the number of simultaneous children.
	ChildLimit int
	// NoParentGracePeriod is how long the node waits without a parent
	// before self-promoting to branch root.
	NoParentGracePeriod time.Duration
	Dialer              Dialer
	IndirectRequester   IndirectRequester
	Logger              *logrus.Logger

	// SearchResolver is offered every distributed search request relayed
	// down from the parent, to check for local shared-file matches.
	SearchResolver SearchResolver
	// SearchResponder is called with a SearchResolver's non-empty result,
	// to actually deliver it to the searching user (spec §4.7 step 3).
	SearchResponder SearchResponder

	// NotifyHaveNoParents is called with true as soon as the node starts
	// seeking a parent and false once one is adopted, so the owner can
	// keep the server's HaveNoParents flag in sync (spec §4.7).
	NotifyHaveNoParents func(haveNoParents bool)
	// NotifyParentIP is called with the adopted parent's address once a
	// parent connection is established.
	NotifyParentIP func(addr net.IP)
	// NotifyBranchLevel is called whenever this node's branch level
	// changes, so the owner can forward it to the server.
	NotifyBranchLevel func(level int32)
	// NotifyBranchRoot is called whenever this node's branch root
	// changes, so the owner can forward it to the server.
	NotifyBranchRoot func(username string)
}

// child tracks one attached distributed child connection.
type child struct {
	username string
	conn     *connection.Conn
}

// Manager owns this node's parent/child edges in the distributed tree
// and the search-request flooding that runs over them.
type Manager struct {
	opts Options
	log  *logrus.Logger

	solicits *waitkey.Registry[*connection.Conn]

	mu             sync.RWMutex
	parent         *connection.Conn
	parentUsername string
	branchLevel    int32
	branchRoot     string
	isRoot         bool
	children       map[connection.ID]*child

	// seen deduplicates search requests per upstream connection: the
	// mesh has no global broadcast ID, so a connection that relays the
	// same query twice (a cycle forming after a reconnect) is only
	// re-flooded once. This is a known, intentionally narrow dedup
	// scope — a single last-seen username:token key per connection, not a
	// cross-connection LRU — matching how the reference network
	// tolerates rare duplicate relays rather than paying for perfect
	// loop detection.
	seenMu sync.Mutex
	seen   map[connection.ID]string

	noParentTimer *time.Timer
	tokenCounter  uint32
}

// New constructs a Manager. Call Close when the node is shutting down.
func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.ChildLimit <= 0 {
		opts.ChildLimit = 10
	}
	if opts.NoParentGracePeriod <= 0 {
		opts.NoParentGracePeriod = 30 * time.Second
	}
	m := &Manager{
		opts:     opts,
		log:      log,
		solicits: waitkey.NewRegistry[*connection.Conn](),
		children: make(map[connection.ID]*child),
		seen:     make(map[connection.ID]string),
	}
	return m
}

// HasParent reports whether a parent connection is currently attached.
func (m *Manager) HasParent() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parent != nil
}

// BranchLevel returns this node's current depth in the tree.
func (m *Manager) BranchLevel() int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.branchLevel
}

// BranchRoot returns the username of the tree's root as currently known.
func (m *Manager) BranchRoot() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.branchRoot
}

// SeekParent races a direct dial against an indirect solicitation for
// each candidate in order, adopting the first one that succeeds and
// completes the branch-level/branch-root handshake. It returns once a
// parent is adopted or every candidate has been exhausted.
func (m *Manager) SeekParent(ctx context.Context, candidates []Candidate) error {
	if m.opts.NotifyHaveNoParents != nil {
		m.opts.NotifyHaveNoParents(true)
	}

	var lastErr error
	for _, cand := range candidates {
		conn, err := m.raceConnect(ctx, cand)
		if err != nil {
			lastErr = err
			m.log.WithFields(logrus.Fields{"candidate": cand.Username}).WithError(err).Debug("distributed: candidate failed")
			continue
		}
		if err := m.adoptParent(cand.Username, conn); err != nil {
			conn.Close()
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("distributed: no candidates")
	}
	return fmt.Errorf("seek parent: %w", lastErr)
}

// raceConnect attempts a direct dial and an indirect solicitation for
// cand simultaneously, returning whichever succeeds first, in the same
// style as the peer connection manager's own direct/indirect race.
func (m *Manager) raceConnect(ctx context.Context, cand Candidate) (*connection.Conn, error) {
	type result struct {
		conn *connection.Conn
		err  error
	}
	resultCh := make(chan result, 2)

	directCtx, cancelDirect := context.WithCancel(ctx)
	defer cancelDirect()
	indirectCtx, cancelIndirect := context.WithCancel(ctx)
	defer cancelIndirect()

	go func() {
		if m.opts.Dialer == nil {
			resultCh <- result{err: errors.New("no dialer configured")}
			return
		}
		conn, err := m.opts.Dialer(directCtx, cand.Address)
		select {
		case resultCh <- result{conn: conn, err: err}:
		case <-directCtx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()

	go func() {
		if m.opts.IndirectRequester == nil {
			resultCh <- result{err: errors.New("no indirect requester configured")}
			return
		}
		conn, err := m.opts.IndirectRequester(indirectCtx, cand.Username)
		select {
		case resultCh <- result{conn: conn, err: err}:
		case <-indirectCtx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()

	var firstErr error
	for range 2 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-resultCh:
			if r.err == nil && r.conn != nil {
				cancelDirect()
				cancelIndirect()
				return r.conn, nil
			}
			if firstErr == nil {
				firstErr = r.err
			}
		}
	}
	return nil, firstErr
}

// adoptParent installs conn as the current parent, replacing any
// previous one, and reads its BranchLevel/BranchRoot announcements.
func (m *Manager) adoptParent(username string, conn *connection.Conn) error {
	m.mu.Lock()
	old := m.parent
	m.parent = conn
	m.parentUsername = username
	m.isRoot = false
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	if m.noParentTimer != nil {
		m.noParentTimer.Stop()
	}

	if m.opts.NotifyHaveNoParents != nil {
		m.opts.NotifyHaveNoParents(false)
	}
	if m.opts.NotifyParentIP != nil {
		if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			m.opts.NotifyParentIP(net.ParseIP(host))
		}
	}

	m.log.WithField("parent", username).Info("distributed: adopted parent")

	go m.runParentLoop(conn)
	return nil
}

// runParentLoop reads messages from the parent connection until it
// closes or a newer parent replaces it, dispatching each one through
// HandleParentMessage.
func (m *Manager) runParentLoop(conn *connection.Conn) {
	ctx := context.Background()
	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			isCurrent := m.parent == conn
			if isCurrent {
				m.parent = nil
				m.parentUsername = ""
			}
			m.mu.Unlock()
			if isCurrent {
				m.log.WithError(err).Info("distributed: parent connection lost")
				if m.opts.NotifyHaveNoParents != nil {
					m.opts.NotifyHaveNoParents(true)
				}
			}
			return
		}

		if err := m.HandleParentMessage(ctx, payload, m.opts.SearchResolver); err != nil {
			m.log.WithError(err).Debug("distributed: parent message error")
		}
	}
}

// announceBranch pushes the current branch level/root to the owning
// client (for the server) and down to every attached child, called
// whenever either value changes.
func (m *Manager) announceBranch() {
	m.mu.RLock()
	level := m.branchLevel
	root := m.branchRoot
	m.mu.RUnlock()

	if m.opts.NotifyBranchLevel != nil {
		m.opts.NotifyBranchLevel(level)
	}
	if m.opts.NotifyBranchRoot != nil {
		m.opts.NotifyBranchRoot(root)
	}

	var levelBuf bytes.Buffer
	w := protocol.NewWriter(&levelBuf)
	(&distmsg.BranchLevel{Level: level}).Encode(w)
	if w.Error() == nil {
		m.broadcastToChildren(levelBuf.Bytes(), connection.ID{})
	}

	var rootBuf bytes.Buffer
	w = protocol.NewWriter(&rootBuf)
	(&distmsg.BranchRoot{Username: root}).Encode(w)
	if w.Error() == nil {
		m.broadcastToChildren(rootBuf.Bytes(), connection.ID{})
	}
}

// HandleParentMessage processes one message read from the parent
// connection: BranchLevel/BranchRoot updates our tree position;
// SearchRequest is flooded to children and offered to resolve.
func (m *Manager) HandleParentMessage(ctx context.Context, payload []byte, resolve SearchResolver) error {
	if len(payload) == 0 {
		return errors.New("distributed: empty message")
	}
	code := protocol.DistributedCode(payload[0])
	switch code {
	case protocol.DistributedBranchLevel:
		msg, err := distmsg.DecodeBranchLevel(payload)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.branchLevel = msg.Level + 1
		m.mu.Unlock()
		m.announceBranch()
		return nil
	case protocol.DistributedBranchRoot:
		msg, err := distmsg.DecodeBranchRoot(payload)
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.branchRoot = msg.Username
		m.mu.Unlock()
		m.announceBranch()
		return nil
	case protocol.DistributedSearchRequest:
		return m.HandleSearchRequest(ctx, m.parentID(), payload, resolve)
	case protocol.DistributedPing:
		return nil
	default:
		return nil
	}
}

func (m *Manager) parentID() connection.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.parent == nil {
		return connection.ID{}
	}
	return m.parent.ID()
}

// HandleSearchRequest deduplicates a search request against the last one
// seen on from, offers it to resolve for a local match, and floods it to
// every child except the one it may have arrived from.
func (m *Manager) HandleSearchRequest(ctx context.Context, from connection.ID, raw []byte, resolve SearchResolver) error {
	msg, err := distmsg.DecodeSearchRequest(raw)
	if err != nil {
		return fmt.Errorf("handle search request: %w", err)
	}

	dedupeKey := fmt.Sprintf("%s:%d", msg.Username, msg.Token)
	m.seenMu.Lock()
	if m.seen[from] == dedupeKey {
		m.seenMu.Unlock()
		return nil
	}
	m.seen[from] = dedupeKey
	m.seenMu.Unlock()

	if resolve != nil {
		if resp := resolve(ctx, msg); resp != nil && len(resp.Files) > 0 {
			if m.opts.SearchResponder != nil {
				m.opts.SearchResponder(ctx, msg, resp)
			}
		}
	}

	m.broadcastToChildren(raw, from)
	return nil
}

// broadcastToChildren writes raw to every child connection except
// exclude, dropping (and pruning) any child whose write fails.
func (m *Manager) broadcastToChildren(raw []byte, exclude connection.ID) {
	m.mu.RLock()
	targets := make([]*child, 0, len(m.children))
	for id, c := range m.children {
		if id == exclude {
			continue
		}
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if err := c.conn.WriteMessage(raw); err != nil {
			m.log.WithField("child", c.username).WithError(err).Debug("distributed: dropping unreachable child")
			m.removeChild(c.conn.ID())
		}
	}
}

// AddChild attaches conn as a distributed child under username, subject
// to AcceptChildren and ChildLimit.
func (m *Manager) AddChild(username string, conn *connection.Conn) error {
	if !m.opts.AcceptChildren {
		return ErrChildrenNotAccepted
	}

	m.mu.Lock()
	if len(m.children) >= m.opts.ChildLimit {
		m.mu.Unlock()
		return ErrChildLimitReached
	}
	m.children[conn.ID()] = &child{username: username, conn: conn}
	count := len(m.children)
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"child": username, "count": count}).Info("distributed: child attached")

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	(&distmsg.ChildDepth{Depth: 0}).Encode(w)
	if w.Error() == nil {
		_ = conn.WriteMessage(buf.Bytes())
	}
	return nil
}

// removeChild detaches a child connection, used both on explicit
// disconnect and on a failed broadcast write.
func (m *Manager) removeChild(id connection.ID) {
	m.mu.Lock()
	delete(m.children, id)
	m.mu.Unlock()
	m.seenMu.Lock()
	delete(m.seen, id)
	m.seenMu.Unlock()
}

// RemoveChild is the exported form of removeChild, for callers that
// observe a child connection's own Disconnected event.
func (m *Manager) RemoveChild(id connection.ID) {
	m.removeChild(id)
}

// ChildCount reports the number of currently attached children.
func (m *Manager) ChildCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.children)
}

// nextToken returns a locally unique token for outbound requests.
func (m *Manager) nextToken() uint32 {
	return atomic.AddUint32(&m.tokenCounter, 1)
}

// PromoteToRoot marks this node as its own branch root, called after
// NoParentGracePeriod elapses with no parent adopted. A root node has
// BranchLevel 0 and BranchRoot equal to its own username.
func (m *Manager) PromoteToRoot(username string) {
	m.mu.Lock()
	m.isRoot = true
	m.branchLevel = 0
	m.branchRoot = username
	m.mu.Unlock()
	m.log.WithField("username", username).Info("distributed: promoted to branch root")
	m.announceBranch()
}

// IsRoot reports whether this node has self-promoted to branch root.
func (m *Manager) IsRoot() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRoot
}

// ScheduleRootPromotion arms a timer that promotes this node to branch
// root if no parent has been adopted by the time it fires. adoptParent
// stops the timer once a parent is found.
func (m *Manager) ScheduleRootPromotion(username string) {
	m.mu.Lock()
	if m.noParentTimer != nil {
		m.noParentTimer.Stop()
	}
	m.noParentTimer = time.AfterFunc(m.opts.NoParentGracePeriod, func() {
		if !m.HasParent() {
			m.PromoteToRoot(username)
		}
	})
	m.mu.Unlock()
}

// Close tears down the parent and all child connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	parent := m.parent
	m.parent = nil
	children := m.children
	m.children = make(map[connection.ID]*child)
	if m.noParentTimer != nil {
		m.noParentTimer.Stop()
	}
	m.mu.Unlock()

	if parent != nil {
		parent.Close()
	}
	for _, c := range children {
		c.conn.Close()
	}
	m.solicits.CancelAll(errors.New("distributed: manager closed"))
	return nil
}
