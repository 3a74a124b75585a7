package server

import (
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// KickedFromServer is pushed when another connection logs in with our
// username, forcibly ending this session.
// Code 41.
type KickedFromServer struct{}

// DecodeKickedFromServer verifies a KickedFromServer payload.
func DecodeKickedFromServer(r *protocol.Reader) (*KickedFromServer, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerKickedFromServer {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerKickedFromServer)
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode kicked from server: %w", err)
	}
	return &KickedFromServer{}, nil
}
