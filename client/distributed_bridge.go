package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/kcarretto/soulmesh/connection"
	"github.com/kcarretto/soulmesh/distributed"
	distmsg "github.com/kcarretto/soulmesh/messages/distributed"
	"github.com/kcarretto/soulmesh/messages/peer"
	"github.com/kcarretto/soulmesh/messages/server"
	"github.com/kcarretto/soulmesh/protocol"
	"github.com/kcarretto/soulmesh/waitkey"
)

// newDistributedManager builds the distributed.Manager for this client,
// wiring its notifier callbacks back to the server messages that keep
// the server's view of our tree position current.
func newDistributedManager(c *Client, opts *Options) *distributed.Manager {
	return distributed.New(distributed.Options{
		AcceptChildren:      opts.AcceptDistributedChildren,
		ChildLimit:          opts.DistributedChildLimit,
		NoParentGracePeriod: opts.NoParentGracePeriod,
		Dialer:              connection.Dial,
		IndirectRequester:   c.connectDistributedIndirect,
		Logger:              opts.Logger,
		SearchResolver:      c.resolveDistributedSearch,
		SearchResponder:     c.respondDistributedSearch,
		NotifyHaveNoParents: c.sendHaveNoParents,
		NotifyParentIP:      c.sendParentIP,
		NotifyBranchLevel:   c.sendBranchLevel,
		NotifyBranchRoot:    c.sendBranchRoot,
	})
}

// resolveDistributedSearch offers a relayed distributed search request to
// Options.SearchResponseResolver, per spec §4.7 step 3. Returns nil (no
// match) if no resolver is configured.
func (c *Client) resolveDistributedSearch(_ context.Context, req *distmsg.SearchRequest) *peer.SearchResponse {
	if c.opts.SearchResponseResolver == nil {
		return nil
	}
	return c.opts.SearchResponseResolver(req.Username, req.Token, req.Query)
}

// respondDistributedSearch delivers a resolved local match to the
// searching user's peer message connection, resolving their address and
// connecting to them if we aren't already, matching how Search results
// are delivered to us by other peers in reverse.
func (c *Client) respondDistributedSearch(ctx context.Context, req *distmsg.SearchRequest, resp *peer.SearchResponse) {
	addr, err := c.getPeerAddress(ctx, req.Username)
	if err != nil {
		c.debugf("distributed: cannot resolve %s to deliver search match: %v", req.Username, err)
		return
	}

	conn, err := c.peerConnMgr.GetOrCreate(ctx, req.Username, addr)
	if err != nil {
		c.debugf("distributed: cannot connect to %s to deliver search match: %v", req.Username, err)
		return
	}

	resp.Username = c.Username()
	resp.Token = req.Token

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	if err := resp.Encode(w); err != nil {
		c.debugf("distributed: encode search response for %s: %v", req.Username, err)
		return
	}
	if err := conn.WriteMessage(buf.Bytes()); err != nil {
		c.debugf("distributed: send search response to %s: %v", req.Username, err)
	}
}

// connectDistributedIndirect solicits a D-type connection via the server,
// mirroring peerConnManager.connectIndirect for the distributed mesh.
func (c *Client) connectDistributedIndirect(ctx context.Context, username string) (*connection.Conn, error) {
	if c.ListenerPort() == 0 {
		return nil, errors.New("no listener running for indirect distributed connections")
	}

	solicitToken := atomic.AddUint32(&peerConnToken, 1)
	key := waitkey.New(waitkey.IndirectConnection, solicitToken)

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resultCh, release, err := c.solicitations.Wait(waitCtx, key)
	if err != nil {
		return nil, fmt.Errorf("register indirect wait: %w", err)
	}
	defer release()

	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	req := &server.ConnectToPeerRequest{
		Token:    solicitToken,
		Username: username,
		Type:     server.ConnectionTypeDistributed,
	}
	req.Encode(w)
	if err := w.Error(); err != nil {
		return nil, err
	}

	if err := c.WriteMessage(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("send connect request: %w", err)
	}

	result := <-resultCh
	if result.Err != nil {
		return nil, fmt.Errorf("indirect distributed connection: %w", result.Err)
	}
	return result.Value, nil
}

// sendHaveNoParents forwards the distributed manager's parent-seeking
// state to the server (spec §4.7).
func (c *Client) sendHaveNoParents(haveNoParents bool) {
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	(&server.HaveNoParents{HaveNoParents: haveNoParents}).Encode(w)
	if w.Error() == nil {
		_ = c.WriteMessage(buf.Bytes())
	}
}

// sendParentIP forwards our adopted parent's address to the server.
func (c *Client) sendParentIP(addr net.IP) {
	if addr == nil {
		return
	}
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	(&server.ParentIP{IPAddress: addr}).Encode(w)
	if w.Error() == nil {
		_ = c.WriteMessage(buf.Bytes())
	}
}

// sendBranchLevel forwards our current tree depth to the server.
func (c *Client) sendBranchLevel(level int32) {
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	(&server.BranchLevel{Level: level}).Encode(w)
	if w.Error() == nil {
		_ = c.WriteMessage(buf.Bytes())
	}
}

// sendBranchRoot forwards our current tree root to the server.
func (c *Client) sendBranchRoot(username string) {
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	(&server.BranchRoot{Username: username}).Encode(w)
	if w.Error() == nil {
		_ = c.WriteMessage(buf.Bytes())
	}
}

// handleNetInfo receives the server's candidate parent list and races a
// parent adoption against them in the background so the read loop isn't
// blocked on connect attempts.
func (c *Client) handleNetInfo(_ uint32, payload []byte) {
	if c.distributedMgr == nil {
		return
	}

	info, err := server.DecodeNetInfo(protocol.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return
	}

	candidates := make([]distributed.Candidate, 0, len(info.Candidates))
	for _, cand := range info.Candidates {
		candidates = append(candidates, distributed.Candidate{
			Username: cand.Username,
			Address:  fmt.Sprintf("%s:%d", cand.IPAddress.String(), cand.Port),
		})
	}

	go func() {
		if err := c.distributedMgr.SeekParent(context.Background(), candidates); err != nil {
			c.debugf("distributed: seek parent failed: %v", err)
		}
	}()
}
