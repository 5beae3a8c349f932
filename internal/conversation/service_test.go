// ABOUTME: Tests for the conversation service
// ABOUTME: Covers inbound flow, append ordering, status machine, delivery outcomes and deletion

package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/leadflow/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestService(t *testing.T, st *store.SQLiteStore) *Service {
	t.Helper()
	return New(st, NewBroadcaster(nil), nil, nil, nil)
}

// fakeDeliverer records sends and returns a canned result.
type fakeDeliverer struct {
	providerID string
	err        error
	sent       []string
}

func (f *fakeDeliverer) SendText(ctx context.Context, channelInstance, address, text string) (string, error) {
	f.sent = append(f.sent, text)
	if f.err != nil {
		return "", f.err
	}
	return f.providerID, nil
}

// fakeRescorer records rescore invocations.
type fakeRescorer struct {
	calls []string
	err   error
}

func (f *fakeRescorer) Rescore(ctx context.Context, leadID string, actor store.ActorKind, reason string) (bool, error) {
	f.calls = append(f.calls, leadID)
	return true, f.err
}

func seedConversation(t *testing.T, st *store.SQLiteStore, convID, leadID, address string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.CreateLead(ctx, &store.Lead{
		ID:             leadID,
		Address:        address,
		DisplayName:    "Test Lead",
		Classification: store.TierDiscard,
		CreatedAt:      time.Now().UTC(),
	}))
	now := time.Now().UTC()
	require.NoError(t, st.CreateConversation(ctx, &store.Conversation{
		ID:         convID,
		LeadID:     leadID,
		ChannelID:  "channel-1",
		Status:     store.StatusActive,
		BotEnabled: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

func TestHandleInbound_FirstContactCreatesLeadAndConversation(t *testing.T) {
	st := newTestStore(t)
	rescorer := &fakeRescorer{}
	svc := New(st, nil, nil, rescorer, nil)
	ctx := context.Background()

	msg, err := svc.HandleInbound(ctx, &InboundMessage{
		Address:     "5511999995001",
		DisplayName: "Alice",
		ChannelID:   "channel-1",
		Content:     "hi, I was in an accident",
		SenderName:  "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, store.RoleUser, msg.Sender)

	lead, err := st.GetLeadByAddress(ctx, "5511999995001")
	require.NoError(t, err)
	assert.Equal(t, "Alice", lead.DisplayName)
	assert.Equal(t, store.TierDiscard, lead.Classification)

	conv, err := st.GetConversationByLead(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, conv.Status)
	assert.True(t, conv.BotEnabled)

	// Lead is rescored after the durable append
	assert.Equal(t, []string{lead.ID}, rescorer.calls)
}

func TestHandleInbound_SecondMessageReusesConversation(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	first, err := svc.HandleInbound(ctx, &InboundMessage{
		Address: "5511999995002", ChannelID: "channel-1", Content: "first",
	})
	require.NoError(t, err)

	second, err := svc.HandleInbound(ctx, &InboundMessage{
		Address: "5511999995002", ChannelID: "channel-1", Content: "second",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, int64(2), second.Seq)
}

func TestHandleInbound_RescoreFailureDoesNotFailAppend(t *testing.T) {
	st := newTestStore(t)
	rescorer := &fakeRescorer{err: errors.New("scoring backend down")}
	svc := New(st, nil, nil, rescorer, nil)

	msg, err := svc.HandleInbound(context.Background(), &InboundMessage{
		Address: "5511999995003", ChannelID: "channel-1", Content: "hello",
	})
	require.NoError(t, err, "message durability must not depend on scoring")
	assert.NotNil(t, msg)
}

func TestAppendMessage_EmptyContentRejected(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)

	seedConversation(t, st, "conv-1", "lead-1", "5511999995004")

	_, err := svc.AppendMessage(context.Background(), "conv-1", &AppendRequest{
		Sender: store.RoleUser,
	})
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestAppendMessage_Defaults(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)

	seedConversation(t, st, "conv-2", "lead-2", "5511999995005")

	before := time.Now().UTC()
	msg, err := svc.AppendMessage(context.Background(), "conv-2", &AppendRequest{
		Content: "hello",
		Sender:  store.RoleUser,
	})
	require.NoError(t, err)

	assert.Equal(t, store.MessageTypeText, msg.Type)
	assert.Equal(t, store.DeliveryDelivered, msg.Delivery)
	assert.False(t, msg.Timestamp.Before(before), "server timestamp assigned when absent")
}

func TestAppendMessage_UserReactivatesPaused(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-3", "lead-3", "5511999995006")
	require.NoError(t, svc.SetStatus(ctx, "conv-3", store.StatusPaused, store.ActorManual, "stepping away"))

	_, err := svc.AppendMessage(ctx, "conv-3", &AppendRequest{Content: "back again", Sender: store.RoleUser})
	require.NoError(t, err)

	conv, err := st.GetConversation(ctx, "conv-3")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, conv.Status)
}

func TestAppendMessage_BotDoesNotReactivatePaused(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-4", "lead-4", "5511999995007")
	require.NoError(t, svc.SetStatus(ctx, "conv-4", store.StatusPaused, store.ActorManual, "paused"))

	_, err := svc.AppendMessage(ctx, "conv-4", &AppendRequest{Content: "scheduled reminder", Sender: store.RoleBot})
	require.NoError(t, err)

	conv, err := st.GetConversation(ctx, "conv-4")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPaused, conv.Status, "bot activity must not reopen a paused conversation")
}

func TestAppendMessage_PublishesInAppendOrder(t *testing.T) {
	st := newTestStore(t)
	broadcaster := NewBroadcaster(nil)
	defer broadcaster.Close()
	svc := New(st, broadcaster, nil, nil, nil)
	ctx := context.Background()

	seedConversation(t, st, "conv-5", "lead-5", "5511999995008")

	ch, _ := broadcaster.Subscribe(ctx, "conv-5")

	for i := range 5 {
		_, err := svc.AppendMessage(ctx, "conv-5", &AppendRequest{
			Content: "msg",
			Sender:  store.RoleUser,
		})
		require.NoError(t, err, "append %d", i)
	}

	for want := int64(1); want <= 5; want++ {
		select {
		case event := <-ch:
			payload, ok := event.Payload.(MessagePayload)
			require.True(t, ok)
			assert.Equal(t, want, payload.Seq, "events must arrive in ledger order")
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event seq %d", want)
		}
	}
}

func TestSendReply_NoDelivererMarksFailed(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-6", "lead-6", "5511999995009")

	msg, err := svc.SendReply(ctx, "conv-6", "instance-a", "Agent Ana", "we received your claim")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	require.NotNil(t, msg)
	assert.Equal(t, store.DeliveryFailed, msg.Delivery)

	// The reply is retained in the ledger despite the failure
	messages, err := st.ListMessages(ctx, "conv-6")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, store.DeliveryFailed, messages[0].Delivery)
	assert.Equal(t, store.RoleAgent, messages[0].Sender)
}

func TestSendReply_ProviderFailureKeepsMessage(t *testing.T) {
	st := newTestStore(t)
	deliverer := &fakeDeliverer{err: errors.New("provider timeout")}
	svc := New(st, nil, deliverer, nil, nil)
	ctx := context.Background()

	seedConversation(t, st, "conv-7", "lead-7", "5511999995010")

	msg, err := svc.SendReply(ctx, "conv-7", "instance-a", "Agent Ana", "checking in")
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	require.NotNil(t, msg)
	assert.Equal(t, store.DeliveryFailed, msg.Delivery)
	assert.Len(t, deliverer.sent, 1)
}

func TestSendReply_Success(t *testing.T) {
	st := newTestStore(t)
	deliverer := &fakeDeliverer{providerID: "provider-123"}
	svc := New(st, nil, deliverer, nil, nil)
	ctx := context.Background()

	seedConversation(t, st, "conv-8", "lead-8", "5511999995011")

	msg, err := svc.SendReply(ctx, "conv-8", "instance-a", "Agent Ana", "your claim is approved")
	require.NoError(t, err)
	assert.Equal(t, store.DeliveryDelivered, msg.Delivery)
	require.NotNil(t, msg.ProviderMessageID)
	assert.Equal(t, "provider-123", *msg.ProviderMessageID)

	messages, err := st.ListMessages(ctx, "conv-8")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, store.DeliveryDelivered, messages[0].Delivery)
}

func TestSetStatus_CompletedIsTerminal(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-9", "lead-9", "5511999995012")

	require.NoError(t, svc.SetStatus(ctx, "conv-9", store.StatusCompleted, store.ActorManual, "resolved"))

	for _, next := range []store.ConversationStatus{store.StatusActive, store.StatusPaused, store.StatusTransferred} {
		err := svc.SetStatus(ctx, "conv-9", next, store.ActorManual, "reopen attempt")
		assert.ErrorIs(t, err, store.ErrInvalidTransition, "completed -> %s must be rejected", next)
	}
}

func TestSetStatus_TransferWritesAuditRecord(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-10", "lead-10", "5511999995013")

	require.NoError(t, svc.SetStatus(ctx, "conv-10", store.StatusTransferred, store.ActorHuman, "requested human agent"))

	records, err := st.ListAudit(ctx, "lead-10", store.StreamTransfer, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "active", records[0].Previous)
	assert.Equal(t, "transferred", records[0].New)
	assert.Equal(t, store.ActorHuman, records[0].Actor)
}

func TestSetStatus_PauseResume(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-11", "lead-11", "5511999995014")

	require.NoError(t, svc.SetStatus(ctx, "conv-11", store.StatusPaused, store.ActorManual, "pause"))
	require.NoError(t, svc.SetStatus(ctx, "conv-11", store.StatusActive, store.ActorManual, "resume"))

	conv, err := st.GetConversation(ctx, "conv-11")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, conv.Status)
}

func TestMarkRead_Idempotent(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-12", "lead-12", "5511999995015")
	for range 3 {
		_, err := svc.AppendMessage(ctx, "conv-12", &AppendRequest{Content: "ping", Sender: store.RoleUser})
		require.NoError(t, err)
	}

	count, err := svc.UnreadCount(ctx, "conv-12", store.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, svc.MarkRead(ctx, "conv-12", store.RoleUser))
	require.NoError(t, svc.MarkRead(ctx, "conv-12", store.RoleUser), "repeat must be a no-op success")

	count, err = svc.UnreadCount(ctx, "conv-12", store.RoleUser)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMarkRead_ConversationNotFound(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)

	err := svc.MarkRead(context.Background(), "ghost", store.RoleUser)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_KeepsLead(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-13", "lead-13", "5511999995016")
	_, err := svc.AppendMessage(ctx, "conv-13", &AppendRequest{Content: "bye", Sender: store.RoleUser})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "conv-13"))

	_, err = st.GetConversation(ctx, "conv-13")
	assert.ErrorIs(t, err, store.ErrNotFound)

	lead, err := st.GetLead(ctx, "lead-13")
	require.NoError(t, err, "lead record survives conversation deletion")
	require.NotNil(t, lead.LastInteractionAt)
}

func TestGetSnapshot(t *testing.T) {
	st := newTestStore(t)
	svc := newTestService(t, st)
	ctx := context.Background()

	seedConversation(t, st, "conv-14", "lead-14", "5511999995017")
	for i := range 3 {
		_, err := svc.AppendMessage(ctx, "conv-14", &AppendRequest{Content: "msg", Sender: store.RoleUser})
		require.NoError(t, err, "append %d", i)
	}

	snap, err := svc.GetSnapshot(ctx, "conv-14")
	require.NoError(t, err)
	assert.Equal(t, "conv-14", snap.Conversation.ID)
	require.Len(t, snap.Messages, 3)
	for i, msg := range snap.Messages {
		assert.Equal(t, int64(i+1), msg.Seq)
	}
}
