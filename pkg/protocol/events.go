package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound event names.
const (
	EventGroupJoin           = "group:join"
	EventGroupLeave          = "group:leave"
	EventScheduleSlotJoin    = "scheduleSlot:join"
	EventScheduleSlotLeave   = "scheduleSlot:leave"
	EventScheduleSubscribe   = "schedule:subscribe"
	EventScheduleUnsubscribe = "schedule:unsubscribe"
	EventScheduleSlotUpdated = "schedule:slot:updated"
	EventTypingStart         = "typing:start"
	EventTypingStop          = "typing:stop"
	EventHeartbeat           = "heartbeat"
)

// Outbound event names.
const (
	EventConnected         = "connected"
	EventUserJoined        = "user:joined"
	EventUserLeft          = "user:left"
	EventUserTyping        = "user:typing"
	EventUserStoppedTyping = "user:stopped_typing"
	EventSlotUpdate        = "schedule:slot:updated"
	EventCapacityFull      = "scheduleSlot:capacity:full"
	EventCapacityWarning   = "scheduleSlot:capacity:warning"
	EventConflictDetected  = "conflict:detected"
	EventNotification      = "notification"
	EventError             = "error"
	EventHeartbeatAck      = "heartbeat-ack"
)

// Envelope is the wire shape of every message in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals an event name and payload value into wire bytes.
func Encode(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %q payload: %w", event, err)
		}
		raw = b
	}
	msg, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %q envelope: %w", event, err)
	}
	return msg, nil
}

// Connected is sent once per connection after the initial room setup.
type Connected struct {
	UserID    string   `json:"userId"`
	Groups    []string `json:"groups"`
	Timestamp int64    `json:"timestamp"`
}

// Presence carries group join/leave notices to the other room members.
type Presence struct {
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
}

// Typing carries typing start/stop notices to the other slot-room members.
type Typing struct {
	UserID         string `json:"userId"`
	ScheduleSlotID string `json:"scheduleSlotId"`
}

// CapacityFull is broadcast when a slot has no seats left.
type CapacityFull struct {
	ScheduleSlotID string `json:"scheduleSlotId"`
	Message        string `json:"message"`
}

// CapacityWarning is broadcast when a slot is down to its last seat.
type CapacityWarning struct {
	ScheduleSlotID string `json:"scheduleSlotId"`
	AvailableSeats int    `json:"availableSeats"`
	Message        string `json:"message"`
}

// ConflictDetected is delivered to each affected user's personal room.
type ConflictDetected struct {
	ScheduleSlotID string   `json:"scheduleSlotId"`
	ConflictType   string   `json:"conflictType"`
	AffectedUsers  []string `json:"affectedUsers"`
	Message        string   `json:"message"`
}

// Notification is a generic user-targeted notice.
type Notification struct {
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HeartbeatAck echoes liveness probes with the server clock.
type HeartbeatAck struct {
	Timestamp int64 `json:"timestamp"`
}
