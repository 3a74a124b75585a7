package server

import (
	"fmt"
	"net"

	"github.com/kcarretto/soulmesh/protocol"
)

// AcceptChildren tells the server whether we're willing to accept
// distributed child connections.
// Code 100.
type AcceptChildren struct {
	Accept bool
}

// Code returns the server message code.
func (m *AcceptChildren) Code() protocol.ServerCode {
	return protocol.ServerAcceptChildren
}

// Encode writes the AcceptChildren request.
func (m *AcceptChildren) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerAcceptChildren))
	if m.Accept {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// HaveNoParents tells the server whether we currently have a distributed
// parent connection, so it knows whether to solicit candidates for us.
// Code 71.
type HaveNoParents struct {
	HaveNoParents bool
}

// Code returns the server message code.
func (m *HaveNoParents) Code() protocol.ServerCode {
	return protocol.ServerHaveNoParents
}

// Encode writes the HaveNoParents request.
func (m *HaveNoParents) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerHaveNoParents))
	if m.HaveNoParents {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// ParentIP reports the IP address of our current distributed parent, used
// by the server to prefer candidates topologically close to it.
// Code 73.
type ParentIP struct {
	IPAddress net.IP
}

// Code returns the server message code.
func (m *ParentIP) Code() protocol.ServerCode {
	return protocol.ServerParentsIP
}

// Encode writes the ParentIP request.
func (m *ParentIP) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerParentsIP))
	protocol.WriteIP(w, m.IPAddress)
}

// BranchLevel reports our depth in the distributed tree to the server.
// Code 126.
type BranchLevel struct {
	Level int32
}

// Code returns the server message code.
func (m *BranchLevel) Code() protocol.ServerCode {
	return protocol.ServerBranchLevel
}

// Encode writes the BranchLevel request.
func (m *BranchLevel) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerBranchLevel))
	w.WriteUint32(uint32(m.Level)) //nolint:gosec // branch level is a small non-negative counter
}

// BranchRoot reports the username of our tree's root to the server.
// Code 127.
type BranchRoot struct {
	Username string
}

// Code returns the server message code.
func (m *BranchRoot) Code() protocol.ServerCode {
	return protocol.ServerBranchRoot
}

// Encode writes the BranchRoot request.
func (m *BranchRoot) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerBranchRoot))
	w.WriteString(m.Username)
}

// ChildDepth reports how many levels of children hang beneath us to the
// server, which uses it to advertise us as a parent candidate of known
// depth.
// Code 129.
type ChildDepth struct {
	Depth int32
}

// Code returns the server message code.
func (m *ChildDepth) Code() protocol.ServerCode {
	return protocol.ServerChildDepth
}

// Encode writes the ChildDepth request.
func (m *ChildDepth) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerChildDepth))
	w.WriteUint32(uint32(m.Depth)) //nolint:gosec // depth is a small non-negative counter
}

// NetInfo is pushed by the server with a batch of candidate distributed
// parents to try.
// Code 102.
type NetInfo struct {
	Candidates []NetInfoCandidate
}

// NetInfoCandidate is one entry in a NetInfo push.
type NetInfoCandidate struct {
	Username  string
	IPAddress net.IP
	Port      uint32
}

// DecodeNetInfo reads a NetInfo from the reader.
func DecodeNetInfo(r *protocol.Reader) (*NetInfo, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerNetInfo {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerNetInfo)
	}
	count := r.ReadUint32()
	candidates := make([]NetInfoCandidate, 0, count)
	for i := uint32(0); i < count; i++ {
		username := r.ReadString()
		ip := protocol.ReadIP(r)
		port := r.ReadUint32()
		candidates = append(candidates, NetInfoCandidate{Username: username, IPAddress: ip, Port: port})
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode net info: %w", err)
	}
	return &NetInfo{Candidates: candidates}, nil
}

// DistributedReset tells us to drop our parent and children and start
// tree formation over, typically after the server reshuffles the mesh.
// Code 130.
type DistributedReset struct{}

// DecodeDistributedReset verifies a DistributedReset payload.
func DecodeDistributedReset(r *protocol.Reader) (*DistributedReset, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerDistributedReset {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerDistributedReset)
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode distributed reset: %w", err)
	}
	return &DistributedReset{}, nil
}
