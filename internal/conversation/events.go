// ABOUTME: Room event types published to connected operator clients
// ABOUTME: Each event carries the minimal payload needed to update a client view

package conversation

import (
	"time"

	"github.com/2389/leadflow/internal/store"
)

// EventName identifies the kind of room event.
type EventName string

const (
	EventNewMessage            EventName = "new-message"
	EventConversationUpdated   EventName = "conversation-updated"
	EventConversationDeleted   EventName = "conversation-deleted"
	EventInstanceStatusChanged EventName = "instance-status-changed"
)

// SessionsRoom is the room key for session lifecycle events; conversation
// events use the conversation ID as their room key.
const SessionsRoom = "sessions"

// Event is a single fan-out event delivered to room subscribers.
type Event struct {
	ID        string    `json:"id"`
	Name      EventName `json:"name"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// MessagePayload is the payload of a new-message event.
type MessagePayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	Seq            int64     `json:"seq"`
	Type           string    `json:"type"`
	Content        string    `json:"content"`
	Sender         string    `json:"sender"`
	SenderName     string    `json:"sender_name"`
	Delivery       string    `json:"delivery,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationPayload is the payload of conversation-updated and
// conversation-deleted events.
type ConversationPayload struct {
	ConversationID string `json:"conversation_id"`
	LeadID         string `json:"lead_id"`
	Status         string `json:"status,omitempty"`
}

// InstancePayload is the payload of an instance-status-changed event.
type InstancePayload struct {
	InstanceName string `json:"instance_name"`
	State        string `json:"state"`
	BoundAddress string `json:"bound_address,omitempty"`
	Active       bool   `json:"active"`
}

func messagePayload(msg *store.Message) MessagePayload {
	p := MessagePayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		Seq:            msg.Seq,
		Type:           string(msg.Type),
		Content:        msg.Content,
		Sender:         string(msg.Sender),
		SenderName:     msg.SenderName,
		Timestamp:      msg.Timestamp,
	}
	if msg.Sender == store.RoleAgent {
		p.Delivery = string(msg.Delivery)
	}
	return p
}
