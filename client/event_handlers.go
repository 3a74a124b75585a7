package client

import (
	"bytes"

	"github.com/kcarretto/soulmesh/messages/server"
	"github.com/kcarretto/soulmesh/protocol"
)

// handleChatRoomMessage publishes a room broadcast as EventRoomMessage.
func (c *Client) handleChatRoomMessage(_ uint32, payload []byte) {
	msg, err := server.DecodeChatRoomMessage(protocol.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return
	}
	c.events.publish(Event{Kind: EventRoomMessage, Payload: msg})
}

// handlePrivateMessage publishes an inbound private message as
// EventPrivateMessage and, if configured, acknowledges it so the server
// doesn't redeliver it on the next login.
func (c *Client) handlePrivateMessage(_ uint32, payload []byte) {
	msg, err := server.DecodePrivateMessage(protocol.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return
	}
	c.events.publish(Event{Kind: EventPrivateMessage, Payload: msg})

	if c.opts.AutoAcknowledgePrivateMessages {
		var buf bytes.Buffer
		w := protocol.NewWriter(&buf)
		(&server.AcknowledgePrivateMessage{ID: msg.ID}).Encode(w)
		if w.Error() == nil {
			_ = c.WriteMessage(buf.Bytes())
		}
	}
}

// handleNotifyPrivileges publishes a privilege gift as
// EventPrivilegeNotification and, if configured, asks the server to
// confirm our updated privilege balance.
func (c *Client) handleNotifyPrivileges(_ uint32, payload []byte) {
	msg, err := server.DecodeNotifyPrivileges(protocol.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return
	}
	c.events.publish(Event{Kind: EventPrivilegeNotification, Payload: msg})

	if c.opts.AutoAcknowledgePrivilegeNotifications {
		var buf bytes.Buffer
		w := protocol.NewWriter(&buf)
		(&server.CheckPrivileges{}).Encode(w)
		if w.Error() == nil {
			_ = c.WriteMessage(buf.Bytes())
		}
	}
}

// handleUserStatusChanged publishes a watched user's status transition as
// EventUserStatusChanged.
func (c *Client) handleUserStatusChanged(_ uint32, payload []byte) {
	msg, err := server.DecodeGetUserStatusResponse(protocol.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return
	}
	c.events.publish(Event{Kind: EventUserStatusChanged, Payload: msg})
}

// handleKickedFromServer publishes a diagnostic when another login has
// taken over our session; the read loop's next ReadMessage call will
// observe the resulting disconnect.
func (c *Client) handleKickedFromServer(_ uint32, payload []byte) {
	if _, err := server.DecodeKickedFromServer(protocol.NewReader(bytes.NewReader(payload))); err != nil {
		return
	}
	c.warnf("kicked from server: another login took over this session")
}
