// ABOUTME: Service is the central layer for conversation state and the message ledger
// ABOUTME: All messages flow through here - durable append first, then classify, then broadcast

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/leadflow/internal/store"
)

// ErrEmptyContent is returned when a message has no content.
var ErrEmptyContent = errors.New("message content is empty")

// ErrDeliveryFailed is returned when the outbound provider send failed.
// The reply is retained locally marked delivery_failed so an operator can
// retry explicitly.
var ErrDeliveryFailed = errors.New("outbound delivery failed")

// Store defines what the service needs from persistence.
type Store interface {
	CreateLead(ctx context.Context, lead *store.Lead) error
	GetLead(ctx context.Context, id string) (*store.Lead, error)
	GetLeadByAddress(ctx context.Context, address string) (*store.Lead, error)

	CreateConversation(ctx context.Context, conv *store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	GetConversationByLead(ctx context.Context, leadID string) (*store.Conversation, error)
	SetConversationStatus(ctx context.Context, id string, next store.ConversationStatus, allowedPrev []store.ConversationStatus, rec *store.AuditRecord) error
	DeleteConversation(ctx context.Context, id string, deletedAt time.Time) error

	AppendMessage(ctx context.Context, msg *store.Message, reactivate bool) (int64, error)
	ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID string, sender store.Role) (int64, error)
	CountUnread(ctx context.Context, conversationID string, sender store.Role) (int, error)
	SetMessageDelivery(ctx context.Context, messageID string, state store.DeliveryState, providerMessageID *string) error
}

// Deliverer sends text to the external messaging provider. Owned by the
// excluded outbound wrapper; the service only needs this one call.
type Deliverer interface {
	SendText(ctx context.Context, channelInstance, address, text string) (providerMessageID string, err error)
}

// Rescorer recomputes a lead's score after inbound activity.
type Rescorer interface {
	Rescore(ctx context.Context, leadID string, actor store.ActorKind, reason string) (bool, error)
}

// Service coordinates conversation operations: durable writes first, then
// classification, then room broadcast. Appends to a single conversation are
// serialized by a per-conversation mutex so ledger order matches broadcast
// order.
type Service struct {
	store       Store
	broadcaster *Broadcaster
	deliverer   Deliverer
	rescorer    Rescorer
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // conversationID -> append lock
}

// New creates a conversation service. Deliverer and rescorer may be nil
// (replies then fail delivery, inbound messages skip rescoring).
func New(st Store, broadcaster *Broadcaster, deliverer Deliverer, rescorer Rescorer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		broadcaster: broadcaster,
		deliverer:   deliverer,
		rescorer:    rescorer,
		logger:      logger.With("component", "conversation"),
		locks:       make(map[string]*sync.Mutex),
	}
}

// convLock returns the append mutex for a conversation, creating it on first
// use. Locks are never evicted; the map is bounded by live conversations.
func (s *Service) convLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[conversationID] = lock
	}
	return lock
}

// allowedPrev maps a target status to the statuses that may enter it.
// Nothing leaves completed.
var allowedPrev = map[store.ConversationStatus][]store.ConversationStatus{
	store.StatusActive:      {store.StatusPaused},
	store.StatusPaused:      {store.StatusActive},
	store.StatusTransferred: {store.StatusActive, store.StatusPaused},
	store.StatusCompleted:   {store.StatusActive, store.StatusPaused, store.StatusTransferred},
}

// InboundMessage is an external chat message arriving for a contact address.
type InboundMessage struct {
	Address           string
	DisplayName       string
	ChannelID         string
	Type              store.MessageType
	Content           string
	SenderName        string
	ProviderMessageID string
	Timestamp         time.Time
}

// HandleInbound records an inbound user message, creating the lead and its
// conversation on first contact. After the durable append the lead is
// rescored and the message is broadcast to the conversation room.
func (s *Service) HandleInbound(ctx context.Context, in *InboundMessage) (*store.Message, error) {
	if in.Content == "" {
		return nil, ErrEmptyContent
	}

	lead, err := s.ensureLead(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("lead resolution failed: %w", err)
	}
	conv, err := s.ensureConversation(ctx, lead.ID, in.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("conversation resolution failed: %w", err)
	}

	msg, err := s.AppendMessage(ctx, conv.ID, &AppendRequest{
		Type:              in.Type,
		Content:           in.Content,
		Sender:            store.RoleUser,
		SenderName:        in.SenderName,
		ProviderMessageID: in.ProviderMessageID,
		Timestamp:         in.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	// Message is durable; a rescore failure must not fail the inbound path.
	if s.rescorer != nil {
		if _, err := s.rescorer.Rescore(ctx, lead.ID, store.ActorAI, "inbound message"); err != nil {
			s.logger.Error("rescore after inbound failed", "error", err, "lead_id", lead.ID)
		}
	}

	return msg, nil
}

// AppendRequest contains everything needed to append one message.
type AppendRequest struct {
	Type              store.MessageType
	Content           string
	Sender            store.Role
	SenderName        string
	ProviderMessageID string
	Timestamp         time.Time // server time assigned when zero
	Delivery          store.DeliveryState
}

// AppendMessage validates and appends a message to the conversation ledger.
// User- and agent-authored messages reactivate a paused conversation; bot
// messages do not. The new-message event is published only after the append
// is durable, in append order.
func (s *Service) AppendMessage(ctx context.Context, conversationID string, req *AppendRequest) (*store.Message, error) {
	if req.Content == "" {
		return nil, ErrEmptyContent
	}

	msgType := req.Type
	if msgType == "" {
		msgType = store.MessageTypeText
	}
	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	delivery := req.Delivery
	if delivery == "" {
		delivery = store.DeliveryDelivered
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Type:           msgType,
		Content:        req.Content,
		Sender:         req.Sender,
		SenderName:     req.SenderName,
		Delivery:       delivery,
		Timestamp:      timestamp,
	}
	if req.ProviderMessageID != "" {
		msg.ProviderMessageID = &req.ProviderMessageID
	}

	reactivate := req.Sender != store.RoleBot

	lock := s.convLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	seq, err := s.store.AppendMessage(ctx, msg, reactivate)
	if err != nil {
		return nil, err
	}
	msg.Seq = seq
	s.publish(conversationID, EventNewMessage, messagePayload(msg))

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"seq", seq,
		"sender", msg.Sender,
	)
	return msg, nil
}

// SendReply appends an agent reply as pending, attempts outbound delivery,
// and records the outcome. On provider failure the reply is kept with
// delivery_failed and ErrDeliveryFailed is returned; local state is never
// corrupted by a failed send.
func (s *Service) SendReply(ctx context.Context, conversationID, channelInstance, agentName, text string) (*store.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	lead, err := s.store.GetLead(ctx, conv.LeadID)
	if err != nil {
		return nil, err
	}

	// Record first, then act: the pending reply is durable before the
	// provider is contacted.
	msg, err := s.AppendMessage(ctx, conversationID, &AppendRequest{
		Type:       store.MessageTypeText,
		Content:    text,
		Sender:     store.RoleAgent,
		SenderName: agentName,
		Delivery:   store.DeliveryPending,
	})
	if err != nil {
		return nil, err
	}

	if s.deliverer == nil {
		if err := s.store.SetMessageDelivery(ctx, msg.ID, store.DeliveryFailed, nil); err != nil {
			s.logger.Error("failed to mark delivery state", "error", err, "message_id", msg.ID)
		}
		msg.Delivery = store.DeliveryFailed
		return msg, fmt.Errorf("%w: no deliverer configured", ErrDeliveryFailed)
	}

	providerID, sendErr := s.deliverer.SendText(ctx, channelInstance, lead.Address, text)
	if sendErr != nil {
		if err := s.store.SetMessageDelivery(ctx, msg.ID, store.DeliveryFailed, nil); err != nil {
			s.logger.Error("failed to mark delivery state", "error", err, "message_id", msg.ID)
		}
		msg.Delivery = store.DeliveryFailed
		s.logger.Warn("outbound delivery failed",
			"conversation_id", conversationID,
			"message_id", msg.ID,
			"error", sendErr,
		)
		return msg, fmt.Errorf("%w: %v", ErrDeliveryFailed, sendErr)
	}

	if err := s.store.SetMessageDelivery(ctx, msg.ID, store.DeliveryDelivered, &providerID); err != nil {
		s.logger.Error("failed to mark delivery state", "error", err, "message_id", msg.ID)
	}
	msg.Delivery = store.DeliveryDelivered
	msg.ProviderMessageID = &providerID
	return msg, nil
}

// MarkRead sets the read flag on all unread messages from the given sender
// role. Idempotent: re-invoking with nothing unread is a no-op success.
func (s *Service) MarkRead(ctx context.Context, conversationID string, sender store.Role) error {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return err
	}
	_, err := s.store.MarkMessagesRead(ctx, conversationID, sender)
	return err
}

// UnreadCount returns the number of unread messages from the given sender role.
func (s *Service) UnreadCount(ctx context.Context, conversationID string, sender store.Role) (int, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, conversationID, sender)
}

// SetStatus moves a conversation to next per the transition table. A handoff
// to transferred appends a transfer-stream audit record in the same
// transaction as the status write. Publishes conversation-updated.
func (s *Service) SetStatus(ctx context.Context, conversationID string, next store.ConversationStatus, actor store.ActorKind, reason string) error {
	prev, ok := allowedPrev[next]
	if !ok {
		return fmt.Errorf("%w: unknown status %s", store.ErrInvalidTransition, next)
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	// The store stamps Previous from the status it matched inside the
	// transaction; the value read here may already be stale.
	var rec *store.AuditRecord
	if next == store.StatusTransferred {
		rec = &store.AuditRecord{
			LeadID: conv.LeadID,
			Stream: store.StreamTransfer,
			New:    string(next),
			Reason: reason,
			Actor:  actor,
		}
	}

	if err := s.store.SetConversationStatus(ctx, conversationID, next, prev, rec); err != nil {
		return err
	}

	s.publish(conversationID, EventConversationUpdated, ConversationPayload{
		ConversationID: conversationID,
		LeadID:         conv.LeadID,
		Status:         string(next),
	})

	s.logger.Info("conversation status changed",
		"conversation_id", conversationID,
		"status", next,
		"actor", actor,
	)
	return nil
}

// Delete removes a conversation and its ledger, stamping the owning lead's
// last interaction with the deletion time. The lead survives.
func (s *Service) Delete(ctx context.Context, conversationID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteConversation(ctx, conversationID, time.Now().UTC()); err != nil {
		return err
	}

	s.publish(conversationID, EventConversationDeleted, ConversationPayload{
		ConversationID: conversationID,
		LeadID:         conv.LeadID,
	})

	s.logger.Info("conversation deleted", "conversation_id", conversationID, "lead_id", conv.LeadID)
	return nil
}

// Snapshot is the cheap reconcile-on-reconnect read path: the conversation
// plus its full ledger. Clients that missed broadcast events while offline
// re-fetch this instead of replaying.
type Snapshot struct {
	Conversation *store.Conversation
	Messages     []*store.Message
}

// GetSnapshot returns the current snapshot for a conversation.
func (s *Service) GetSnapshot(ctx context.Context, conversationID string) (*Snapshot, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Conversation: conv, Messages: messages}, nil
}

// ensureLead resolves the lead for an address, creating it on first contact.
func (s *Service) ensureLead(ctx context.Context, in *InboundMessage) (*store.Lead, error) {
	lead, err := s.store.GetLeadByAddress(ctx, in.Address)
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	lead = &store.Lead{
		ID:             uuid.New().String(),
		Address:        in.Address,
		DisplayName:    in.DisplayName,
		Classification: store.TierDiscard,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateLead(ctx, lead); err != nil {
		// Another request may have created the lead between our lookup
		// and insert attempt.
		if errors.Is(err, store.ErrConflict) {
			existing, lookupErr := s.store.GetLeadByAddress(ctx, in.Address)
			if lookupErr == nil {
				s.logger.Debug("found existing lead after race", "lead_id", existing.ID)
				return existing, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, err
	}
	s.logger.Info("lead created", "lead_id", lead.ID, "address", lead.Address)
	return lead, nil
}

// ensureConversation resolves the lead's conversation, creating one on first message.
func (s *Service) ensureConversation(ctx context.Context, leadID, channelID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversationByLead(ctx, leadID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	conv = &store.Conversation{
		ID:         uuid.New().String(),
		LeadID:     leadID,
		ChannelID:  channelID,
		Status:     store.StatusActive,
		BotEnabled: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrConflict) {
			existing, lookupErr := s.store.GetConversationByLead(ctx, leadID)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, err
	}
	s.logger.Debug("conversation created", "conversation_id", conv.ID, "lead_id", leadID)
	return conv, nil
}

// publish emits a room event. Publishing never blocks the write path; a nil
// broadcaster (tests) is a no-op.
func (s *Service) publish(room string, name EventName, payload any) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(room, &Event{
		ID:        uuid.New().String(),
		Name:      name,
		Room:      room,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, "")
}
