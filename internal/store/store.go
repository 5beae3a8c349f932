// ABOUTME: Store interface and data types for leadflow persistence
// ABOUTME: Defines Lead, Conversation, Message, Session structs and sentinel errors

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write collides with a unique constraint,
// e.g. creating a lead whose address is already registered.
var ErrConflict = errors.New("conflict")

// ErrInvalidTransition is returned when a conversation status change is not
// allowed by the transition table.
var ErrInvalidTransition = errors.New("invalid status transition")

// Tier is a lead classification tier derived from its score.
type Tier string

const (
	TierHot     Tier = "hot"
	TierWarm    Tier = "warm"
	TierCold    Tier = "cold"
	TierDiscard Tier = "discard"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleBot   Role = "bot"
	RoleAgent Role = "agent"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive      ConversationStatus = "active"
	StatusPaused      ConversationStatus = "paused"
	StatusCompleted   ConversationStatus = "completed"
	StatusTransferred ConversationStatus = "transferred"
)

// MessageType categorizes message payloads.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeDocument MessageType = "document"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
)

// DeliveryState tracks outbound delivery for agent replies.
// Inbound messages are always "delivered".
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryFailed    DeliveryState = "delivery_failed"
)

// SessionState is the connection state of a messaging-channel instance.
type SessionState string

const (
	SessionClose      SessionState = "close"
	SessionConnecting SessionState = "connecting"
	SessionOpen       SessionState = "open"
)

// Lead is a tracked contact progressing through the qualification funnel.
// Address is globally unique and immutable after creation.
type Lead struct {
	ID                 string
	Address            string
	DisplayName        string
	Score              int // 0-100
	Classification     Tier
	HasQualifyingClaim bool
	Eligible           bool
	HighUrgency        bool
	DocumentsComplete  bool
	LastInteractionAt  *time.Time
	CreatedAt          time.Time
}

// LeadFlags carries operator edits to a lead's eligibility flags.
// Nil fields are left unchanged.
type LeadFlags struct {
	HasQualifyingClaim *bool
	Eligible           *bool
	HighUrgency        *bool
	DocumentsComplete  *bool
}

// Conversation is the engagement state for one lead. The message ledger
// lives in its own table keyed by (conversation_id, seq).
type Conversation struct {
	ID            string
	LeadID        string
	ChannelID     string
	Status        ConversationStatus
	BotEnabled    bool
	AssignedAgent *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is one entry in a conversation's append-only ledger.
// Content and sender are immutable once appended; only the read flag
// and the delivery state may change afterwards.
type Message struct {
	ID                string
	ConversationID    string
	Seq               int64
	Type              MessageType
	Content           string
	Sender            Role
	SenderName        string
	Read              bool
	ProviderMessageID *string
	Delivery          DeliveryState
	Timestamp         time.Time
}

// Session is a live binding between a channel instance and a contact address.
type Session struct {
	InstanceName  string
	State         SessionState
	BoundAddress  string
	ProfileName   string
	ProfilePicURL string
	Active        bool
	UpdatedAt     time.Time
}

// Store defines the persistence interface backing all leadflow services.
type Store interface {
	// Leads
	CreateLead(ctx context.Context, lead *Lead) error
	GetLead(ctx context.Context, id string) (*Lead, error)
	GetLeadByAddress(ctx context.Context, address string) (*Lead, error)
	UpdateLeadFlags(ctx context.Context, leadID string, flags LeadFlags) (*Lead, error)
	UpdateClassification(ctx context.Context, leadID string, prev, next Tier, rec *AuditRecord) (bool, error)
	UpdateScore(ctx context.Context, leadID string, prevScore, newScore int, prevTier, newTier Tier, rec *AuditRecord) (bool, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByLead(ctx context.Context, leadID string) (*Conversation, error)
	SetConversationStatus(ctx context.Context, id string, next ConversationStatus, allowedPrev []ConversationStatus, rec *AuditRecord) error
	DeleteConversation(ctx context.Context, id string, deletedAt time.Time) error

	// Messages
	AppendMessage(ctx context.Context, msg *Message, reactivate bool) (int64, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	MarkMessagesRead(ctx context.Context, conversationID string, sender Role) (int64, error)
	CountUnread(ctx context.Context, conversationID string, sender Role) (int, error)
	SetMessageDelivery(ctx context.Context, messageID string, state DeliveryState, providerMessageID *string) error

	// Sessions
	ConnectSession(ctx context.Context, session *Session) ([]string, error)
	DisconnectSession(ctx context.Context, instanceName string) error
	GetSession(ctx context.Context, instanceName string) (*Session, error)
	GetOpenSessionByAddress(ctx context.Context, address string) (*Session, error)
	AnyOpenSession(ctx context.Context) (*Session, error)

	// Audit ledger
	AppendAudit(ctx context.Context, rec *AuditRecord) (string, error)
	ListAudit(ctx context.Context, leadID string, stream AuditStream, limit, offset int) ([]AuditRecord, error)
	CountAudit(ctx context.Context, leadID string, stream AuditStream) (int, error)
	AuditTotals(ctx context.Context, leadID string) (map[AuditStream]int, error)

	// API tokens
	CreateAPIToken(ctx context.Context, token *APIToken) error
	GetAPIToken(ctx context.Context, id string) (*APIToken, error)

	// Close releases any resources held by the store
	Close() error
}
