// ABOUTME: Session matcher resolving which channel instance serves a contact address
// ABOUTME: Supersede-on-connect keeps exactly one open session per address

package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/leadflow/internal/conversation"
	"github.com/2389/leadflow/internal/store"
)

// SessionStore defines what the matcher needs from persistence.
type SessionStore interface {
	ConnectSession(ctx context.Context, session *store.Session) ([]string, error)
	DisconnectSession(ctx context.Context, instanceName string) error
	GetSession(ctx context.Context, instanceName string) (*store.Session, error)
	GetOpenSessionByAddress(ctx context.Context, address string) (*store.Session, error)
	AnyOpenSession(ctx context.Context) (*store.Session, error)
}

// Publisher emits session lifecycle events to the sessions room.
type Publisher interface {
	Publish(room string, event *conversation.Event, excludeSubID string)
}

// Match is a resolved session. IsMatched is false when the fallback path
// served the request: messages may then route through the wrong channel
// identity and callers must warn the operator rather than treat it as an
// exact match.
type Match struct {
	Session   *store.Session
	IsMatched bool
}

// Matcher resolves active sessions for lead addresses.
type Matcher struct {
	store     SessionStore
	publisher Publisher
	logger    *slog.Logger
}

// NewMatcher creates a matcher. Publisher may be nil (no events emitted).
func NewMatcher(st SessionStore, publisher Publisher, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		store:     st,
		publisher: publisher,
		logger:    logger.With("component", "session"),
	}
}

// ResolveActiveSession returns the session bound to the address that is
// active and open. Returns store.ErrNotFound when no exact match exists;
// callers wanting the fallback use ResolveAnyActiveSession explicitly.
func (m *Matcher) ResolveActiveSession(ctx context.Context, address string) (*Match, error) {
	sess, err := m.store.GetOpenSessionByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	return &Match{Session: sess, IsMatched: true}, nil
}

// ResolveAnyActiveSession returns an arbitrary open session with
// IsMatched=false. This is the deliberate fallback policy: the caller gets
// a usable channel but must surface that it may carry the wrong identity.
func (m *Matcher) ResolveAnyActiveSession(ctx context.Context) (*Match, error) {
	sess, err := m.store.AnyOpenSession(ctx)
	if err != nil {
		return nil, err
	}
	m.logger.Warn("fallback session match",
		"instance", sess.InstanceName,
		"bound_address", sess.BoundAddress,
	)
	return &Match{Session: sess, IsMatched: false}, nil
}

// Resolve looks up the exact session for an address, falling back to any
// open session when allowed. Returns store.ErrNotFound if nothing is open.
func (m *Matcher) Resolve(ctx context.Context, address string, fallback bool) (*Match, error) {
	match, err := m.ResolveActiveSession(ctx, address)
	if err == nil {
		return match, nil
	}
	if !errors.Is(err, store.ErrNotFound) || !fallback {
		return nil, err
	}
	return m.ResolveAnyActiveSession(ctx)
}

// Connect marks an instance open and bound to an address, superseding any
// other session holding the same address. Emits instance-status-changed for
// the connected instance and for each superseded one.
func (m *Matcher) Connect(ctx context.Context, instanceName, address, profileName, profilePicURL string) (*store.Session, error) {
	sess := &store.Session{
		InstanceName:  instanceName,
		State:         store.SessionOpen,
		BoundAddress:  address,
		ProfileName:   profileName,
		ProfilePicURL: profilePicURL,
		Active:        true,
	}

	superseded, err := m.store.ConnectSession(ctx, sess)
	if err != nil {
		return nil, err
	}

	for _, name := range superseded {
		m.logger.Info("session superseded", "instance", name, "by", instanceName, "address", address)
		m.publishInstance(&conversation.InstancePayload{
			InstanceName: name,
			State:        string(store.SessionClose),
			Active:       false,
		})
	}

	m.publishInstance(&conversation.InstancePayload{
		InstanceName: instanceName,
		State:        string(store.SessionOpen),
		BoundAddress: address,
		Active:       true,
	})

	m.logger.Info("session connected", "instance", instanceName, "address", address)
	return sess, nil
}

// Disconnect marks an instance closed and inactive.
func (m *Matcher) Disconnect(ctx context.Context, instanceName string) error {
	if err := m.store.DisconnectSession(ctx, instanceName); err != nil {
		return err
	}

	m.publishInstance(&conversation.InstancePayload{
		InstanceName: instanceName,
		State:        string(store.SessionClose),
		Active:       false,
	})

	m.logger.Info("session disconnected", "instance", instanceName)
	return nil
}

func (m *Matcher) publishInstance(payload *conversation.InstancePayload) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(conversation.SessionsRoom, &conversation.Event{
		ID:        uuid.New().String(),
		Name:      conversation.EventInstanceStatusChanged,
		Room:      conversation.SessionsRoom,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, "")
}
