package peer

import (
	"bytes"
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// InfoRequest asks a peer for its user information (description, picture,
// share counts, privilege status).
// Code 15.
type InfoRequest struct{}

// Code returns the peer message code.
func (m *InfoRequest) Code() protocol.PeerCode {
	return protocol.PeerInfoRequest
}

// Encode writes the InfoRequest message.
func (m *InfoRequest) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.PeerInfoRequest))
}

// DecodeInfoRequest verifies an InfoRequest payload.
func DecodeInfoRequest(payload []byte) (*InfoRequest, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := r.ReadUint32()
	if code != uint32(protocol.PeerInfoRequest) {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.PeerInfoRequest)
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode info request: %w", err)
	}
	return &InfoRequest{}, nil
}

// InfoResponse answers an InfoRequest with the peer's profile.
// Code 16.
type InfoResponse struct {
	Description  string
	Picture      []byte
	HasPicture   bool
	UploadSlots  uint32
	QueueSize    uint32
	HasFreeSlots bool
}

// Code returns the peer message code.
func (m *InfoResponse) Code() protocol.PeerCode {
	return protocol.PeerInfoResponse
}

// Encode writes the InfoResponse message.
func (m *InfoResponse) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.PeerInfoResponse))
	w.WriteString(m.Description)
	if len(m.Picture) > 0 {
		w.WriteUint8(1)
		w.WriteUint32(uint32(len(m.Picture))) //nolint:gosec // pictures are always < 4GB
		w.WriteBytes(m.Picture)
	} else {
		w.WriteUint8(0)
	}
	w.WriteUint32(m.UploadSlots)
	w.WriteUint32(m.QueueSize)
	if m.HasFreeSlots {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// DecodeInfoResponse reads an InfoResponse from the payload.
func DecodeInfoResponse(payload []byte) (*InfoResponse, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := r.ReadUint32()
	if code != uint32(protocol.PeerInfoResponse) {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.PeerInfoResponse)
	}

	resp := &InfoResponse{
		Description: r.ReadString(),
	}
	resp.HasPicture = r.ReadUint8() == 1
	if resp.HasPicture {
		n := r.ReadUint32()
		resp.Picture = r.ReadBytes(int(n)) //nolint:gosec // picture sizes are bounded by protocol frame size
	}
	resp.UploadSlots = r.ReadUint32()
	resp.QueueSize = r.ReadUint32()
	resp.HasFreeSlots = r.ReadUint8() == 1

	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode info response: %w", err)
	}
	return resp, nil
}
