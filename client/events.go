package client

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EventKind identifies the category of an Event.
type EventKind int

// Event kinds published on Client.Events().
const (
	EventDiagnostic EventKind = iota
	EventRoomMessage
	EventPrivateMessage
	EventPrivilegeNotification
	EventUserStatusChanged
)

// Event is a single item published on Client.Events(). Payload's concrete
// type depends on Kind:
//
//	EventDiagnostic            -> DiagnosticEvent
//	EventRoomMessage           -> *server.ChatRoomMessage
//	EventPrivateMessage        -> *server.PrivateMessage
//	EventPrivilegeNotification -> *server.NotifyPrivileges
//	EventUserStatusChanged     -> *server.GetUserStatusResponse
type Event struct {
	Kind    EventKind
	Payload any
}

// DiagnosticEvent carries an internal diagnostic at or above
// Options.MinimumDiagnosticLevel, mirroring what gets logged via Logger.
type DiagnosticEvent struct {
	Level   DiagnosticLevel
	Message string
	Fields  map[string]any
}

// eventBus is a single-consumer broadcast point for Client.Events(). It
// never blocks a caller: if nobody is listening, or the listener falls
// behind, events are dropped rather than buffered without bound.
type eventBus struct {
	ch chan Event
}

func newEventBus() *eventBus {
	return &eventBus{ch: make(chan Event, 256)}
}

// publish delivers an event, dropping it silently if the channel is full.
func (b *eventBus) publish(ev Event) {
	select {
	case b.ch <- ev:
	default:
	}
}

func (b *eventBus) close() {
	close(b.ch)
}

// Events returns a channel of internal client events (diagnostics, room
// messages, private messages, privilege notifications). Every call returns
// the same channel; when several goroutines receive from it, each event is
// delivered to only one of them.
func (c *Client) Events() <-chan Event {
	return c.events.ch
}

// emitDiagnostic logs and publishes a diagnostic event if lvl meets the
// configured minimum.
func (c *Client) emitDiagnostic(lvl DiagnosticLevel, msg string, fields map[string]any) {
	if lvl > c.opts.MinimumDiagnosticLevel {
		return
	}

	logFields := make(logrus.Fields, len(fields))
	for k, v := range fields {
		logFields[k] = v
	}

	entry := c.opts.Logger.WithFields(logFields)
	switch lvl {
	case DiagnosticLevelWarn:
		entry.Warn(msg)
	case DiagnosticLevelDebug:
		entry.Debug(msg)
	default:
		entry.Info(msg)
	}

	c.events.publish(Event{Kind: EventDiagnostic, Payload: DiagnosticEvent{Level: lvl, Message: msg, Fields: fields}})
}

// debugf is a formatting convenience over emitDiagnostic at debug level.
func (c *Client) debugf(format string, args ...any) {
	c.emitDiagnostic(DiagnosticLevelDebug, fmt.Sprintf(format, args...), nil)
}

// warnf is a formatting convenience over emitDiagnostic at warn level.
func (c *Client) warnf(format string, args ...any) {
	c.emitDiagnostic(DiagnosticLevelWarn, fmt.Sprintf(format, args...), nil)
}
