package peer

import (
	"bytes"
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// FolderContentsRequest asks a peer for the file listing of one folder,
// used to resolve a single directory without a full BrowseRequest.
// Code 36.
type FolderContentsRequest struct {
	Token  uint32
	Folder string
}

// Code returns the peer message code.
func (m *FolderContentsRequest) Code() protocol.PeerCode {
	return protocol.PeerFolderContentsRequest
}

// Encode writes the FolderContentsRequest message.
func (m *FolderContentsRequest) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.PeerFolderContentsRequest))
	w.WriteUint32(m.Token)
	w.WriteString(m.Folder)
}

// DecodeFolderContentsRequest reads a FolderContentsRequest from the payload.
func DecodeFolderContentsRequest(payload []byte) (*FolderContentsRequest, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := r.ReadUint32()
	if code != uint32(protocol.PeerFolderContentsRequest) {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.PeerFolderContentsRequest)
	}
	msg := &FolderContentsRequest{
		Token:  r.ReadUint32(),
		Folder: r.ReadString(),
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode folder contents request: %w", err)
	}
	return msg, nil
}

// FolderContentsResponse answers a FolderContentsRequest.
// Code 37.
type FolderContentsResponse struct {
	Token  uint32
	Folder string
	Files  []File
}

// Code returns the peer message code.
func (m *FolderContentsResponse) Code() protocol.PeerCode {
	return protocol.PeerFolderContentsResp
}

// Encode writes the FolderContentsResponse message.
func (m *FolderContentsResponse) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.PeerFolderContentsResp))
	w.WriteUint32(m.Token)
	w.WriteString(m.Folder)
	w.WriteUint32(uint32(len(m.Files))) //nolint:gosec // file counts are small
	for i := range m.Files {
		EncodeFile(w, &m.Files[i])
	}
}

// DecodeFolderContentsResponse reads a FolderContentsResponse from the payload.
func DecodeFolderContentsResponse(payload []byte) (*FolderContentsResponse, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := r.ReadUint32()
	if code != uint32(protocol.PeerFolderContentsResp) {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.PeerFolderContentsResp)
	}
	msg := &FolderContentsResponse{
		Token:  r.ReadUint32(),
		Folder: r.ReadString(),
	}
	fileCount := r.ReadUint32()
	msg.Files = make([]File, 0, fileCount)
	for range fileCount {
		msg.Files = append(msg.Files, DecodeFile(r))
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode folder contents response: %w", err)
	}
	return msg, nil
}
