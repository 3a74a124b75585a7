package peer

import (
	"bytes"
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// BrowseRequest asks a peer for its complete shared file listing.
// Code 4.
type BrowseRequest struct{}

// Code returns the peer message code.
func (m *BrowseRequest) Code() protocol.PeerCode {
	return protocol.PeerBrowseRequest
}

// Encode writes the BrowseRequest message.
func (m *BrowseRequest) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.PeerBrowseRequest))
}

// DecodeBrowseRequest verifies a BrowseRequest payload.
func DecodeBrowseRequest(payload []byte) (*BrowseRequest, error) {
	r := protocol.NewReader(bytes.NewReader(payload))
	code := r.ReadUint32()
	if code != uint32(protocol.PeerBrowseRequest) {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.PeerBrowseRequest)
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode browse request: %w", err)
	}
	return &BrowseRequest{}, nil
}

// BrowseFolder is one directory entry in a BrowseResponse.
type BrowseFolder struct {
	Name  string
	Files []File
}

// BrowseResponse is a peer's complete shared file listing, zlib
// compressed on the wire the same way SearchResponse is.
// Code 5.
type BrowseResponse struct {
	Folders       []BrowseFolder
	LockedFolders []BrowseFolder
}

// Code returns the peer message code.
func (m *BrowseResponse) Code() protocol.PeerCode {
	return protocol.PeerBrowseResponse
}

// Encode writes the compressed BrowseResponse message.
func (m *BrowseResponse) Encode(w *protocol.Writer) error {
	var body bytes.Buffer
	bw := protocol.NewWriter(&body)
	encodeFolders(bw, m.Folders)
	encodeFolders(bw, m.LockedFolders)
	if err := bw.Error(); err != nil {
		return fmt.Errorf("encode browse response: %w", err)
	}

	compressed, err := protocol.Compress(body.Bytes())
	if err != nil {
		return fmt.Errorf("compress browse response: %w", err)
	}

	w.WriteUint32(uint32(protocol.PeerBrowseResponse))
	w.WriteBytes(compressed)
	return w.Error()
}

func encodeFolders(w *protocol.Writer, folders []BrowseFolder) {
	w.WriteUint32(uint32(len(folders))) //nolint:gosec // folder counts are small
	for _, folder := range folders {
		w.WriteString(folder.Name)
		w.WriteUint32(uint32(len(folder.Files))) //nolint:gosec // file counts are small
		for i := range folder.Files {
			EncodeFile(w, &folder.Files[i])
		}
	}
}

// DecodeBrowseResponse parses a compressed BrowseResponse.
// The data should include the 4-byte message code prefix.
func DecodeBrowseResponse(data []byte) (*BrowseResponse, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data too short: %d bytes", len(data))
	}

	decompressed, err := protocol.Decompress(data[4:])
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	r := protocol.NewReader(bytes.NewReader(decompressed))
	resp := &BrowseResponse{
		Folders: decodeFolders(r),
	}
	if r.Error() == nil {
		resp.LockedFolders = decodeFolders(r)
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode browse response: %w", err)
	}
	return resp, nil
}

func decodeFolders(r *protocol.Reader) []BrowseFolder {
	count := r.ReadUint32()
	folders := make([]BrowseFolder, 0, count)
	for range count {
		name := r.ReadString()
		fileCount := r.ReadUint32()
		files := make([]File, 0, fileCount)
		for range fileCount {
			files = append(files, DecodeFile(r))
		}
		folders = append(folders, BrowseFolder{Name: name, Files: files})
	}
	return folders
}
