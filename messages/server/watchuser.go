package server

import (
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// WatchUser subscribes to status updates for a user: online/away/offline
// transitions arrive as unsolicited GetUserStatus messages thereafter.
// Code 5.
type WatchUser struct {
	Username string
}

// Code returns the server message code.
func (m *WatchUser) Code() protocol.ServerCode {
	return protocol.ServerWatchUser
}

// Encode writes the WatchUser request.
func (m *WatchUser) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerWatchUser))
	w.WriteString(m.Username)
}

// WatchUserResponse is the server's initial reply to WatchUser, reporting
// the user's status at subscription time.
type WatchUserResponse struct {
	Username     string
	Exists       bool
	Status       UserPresence
	AverageSpeed uint32
	UploadCount  int64
	FileCount    uint32
	DirCount     uint32
}

// DecodeWatchUserResponse reads a WatchUserResponse from the reader.
func DecodeWatchUserResponse(r *protocol.Reader) (*WatchUserResponse, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerWatchUser {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerWatchUser)
	}
	resp := &WatchUserResponse{
		Username: r.ReadString(),
		Exists:   r.ReadUint8() == 1,
	}
	if resp.Exists {
		resp.Status = UserPresence(r.ReadUint32())
		resp.AverageSpeed = r.ReadUint32()
		resp.UploadCount = int64(r.ReadUint64()) //nolint:gosec // upload counts are always positive
		resp.FileCount = r.ReadUint32()
		resp.DirCount = r.ReadUint32()
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode watch user response: %w", err)
	}
	return resp, nil
}

// UnwatchUser cancels a prior WatchUser subscription.
// Code 6.
type UnwatchUser struct {
	Username string
}

// Code returns the server message code.
func (m *UnwatchUser) Code() protocol.ServerCode {
	return protocol.ServerUnwatchUser
}

// Encode writes the UnwatchUser request.
func (m *UnwatchUser) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerUnwatchUser))
	w.WriteString(m.Username)
}

// GetUserStatus requests a one-off status lookup, distinct from the
// ongoing WatchUser subscription.
// Code 7.
type GetUserStatus struct {
	Username string
}

// Code returns the server message code.
func (m *GetUserStatus) Code() protocol.ServerCode {
	return protocol.ServerGetStatus
}

// Encode writes the GetUserStatus request.
func (m *GetUserStatus) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerGetStatus))
	w.WriteString(m.Username)
}

// GetUserStatusResponse is the server's reply, and is also pushed
// unsolicited for any watched user whose status changes.
type GetUserStatusResponse struct {
	Username     string
	Status       UserPresence
	IsPrivileged bool
}

// DecodeGetUserStatusResponse reads a GetUserStatusResponse from the reader.
func DecodeGetUserStatusResponse(r *protocol.Reader) (*GetUserStatusResponse, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerGetStatus {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerGetStatus)
	}
	resp := &GetUserStatusResponse{
		Username:     r.ReadString(),
		Status:       UserPresence(r.ReadUint32()),
		IsPrivileged: r.ReadUint8() == 1,
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode get user status response: %w", err)
	}
	return resp, nil
}
