package server

import (
	"fmt"

	"github.com/kcarretto/soulmesh/protocol"
)

// JoinRoom requests membership in a chat room.
// Code 14.
type JoinRoom struct {
	Room string
}

// Code returns the server message code.
func (m *JoinRoom) Code() protocol.ServerCode {
	return protocol.ServerJoinRoom
}

// Encode writes the JoinRoom request.
func (m *JoinRoom) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerJoinRoom))
	w.WriteString(m.Room)
}

// LeaveRoom requests to leave a chat room.
// Code 15.
type LeaveRoom struct {
	Room string
}

// Code returns the server message code.
func (m *LeaveRoom) Code() protocol.ServerCode {
	return protocol.ServerLeaveRoom
}

// Encode writes the LeaveRoom request.
func (m *LeaveRoom) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerLeaveRoom))
	w.WriteString(m.Room)
}

// SayInChatRoom sends a message to a joined chat room.
// Code 13.
type SayInChatRoom struct {
	Room    string
	Message string
}

// Code returns the server message code.
func (m *SayInChatRoom) Code() protocol.ServerCode {
	return protocol.ServerSayInChatRoom
}

// Encode writes the SayInChatRoom message.
func (m *SayInChatRoom) Encode(w *protocol.Writer) {
	w.WriteUint32(uint32(protocol.ServerSayInChatRoom))
	w.WriteString(m.Room)
	w.WriteString(m.Message)
}

// ChatRoomMessage is the unsolicited broadcast of another user's
// SayInChatRoom, pushed to every member of the room.
type ChatRoomMessage struct {
	Room     string
	Username string
	Message  string
}

// DecodeChatRoomMessage reads a ChatRoomMessage from the reader.
func DecodeChatRoomMessage(r *protocol.Reader) (*ChatRoomMessage, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerSayInChatRoom {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerSayInChatRoom)
	}
	msg := &ChatRoomMessage{
		Room:     r.ReadString(),
		Username: r.ReadString(),
		Message:  r.ReadString(),
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode chat room message: %w", err)
	}
	return msg, nil
}

// RoomList is the server's catalog of public rooms and their occupancy,
// sent once after login.
// Code 64.
type RoomList struct {
	Rooms      []string
	UserCounts []uint32
}

// DecodeRoomList reads a RoomList from the reader.
func DecodeRoomList(r *protocol.Reader) (*RoomList, error) {
	code := r.ReadUint32()
	if protocol.ServerCode(code) != protocol.ServerRoomList {
		return nil, fmt.Errorf("unexpected code %d, expected %d", code, protocol.ServerRoomList)
	}
	count := r.ReadUint32()
	rooms := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		rooms = append(rooms, r.ReadString())
	}
	countCounts := r.ReadUint32()
	counts := make([]uint32, 0, countCounts)
	for i := uint32(0); i < countCounts; i++ {
		counts = append(counts, r.ReadUint32())
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("decode room list: %w", err)
	}
	return &RoomList{Rooms: rooms, UserCounts: counts}, nil
}
