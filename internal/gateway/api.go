// ABOUTME: HTTP API handlers for the conversation, scoring, audit and session surfaces
// ABOUTME: Room events stream to clients via SSE; error kinds map to stable status codes

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/leadflow/internal/auth"
	"github.com/2389/leadflow/internal/conversation"
	"github.com/2389/leadflow/internal/scoring"
	"github.com/2389/leadflow/internal/session"
	"github.com/2389/leadflow/internal/store"
)

// AppendMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type AppendMessageRequest struct {
	Type              string `json:"type,omitempty"`
	Content           string `json:"content"`
	Sender            string `json:"sender"`
	SenderName        string `json:"sender_name"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`

	// Deliver routes agent replies through the outbound provider.
	Deliver         bool   `json:"deliver,omitempty"`
	ChannelInstance string `json:"channel_instance,omitempty"`
}

// MessageResponse is the JSON representation of a stored message.
type MessageResponse struct {
	ID                string `json:"id"`
	ConversationID    string `json:"conversation_id"`
	Seq               int64  `json:"seq"`
	Type              string `json:"type"`
	Content           string `json:"content"`
	Sender            string `json:"sender"`
	SenderName        string `json:"sender_name"`
	Read              bool   `json:"read"`
	Delivery          string `json:"delivery"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Timestamp         string `json:"timestamp"`
}

// InboundRequest is the JSON request body for POST /api/inbound.
type InboundRequest struct {
	Address           string `json:"address"`
	DisplayName       string `json:"display_name,omitempty"`
	ChannelID         string `json:"channel_id"`
	Type              string `json:"type,omitempty"`
	Content           string `json:"content"`
	SenderName        string `json:"sender_name,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// StatusRequest is the JSON request body for POST /api/conversations/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ConversationResponse is the JSON representation of a conversation.
type ConversationResponse struct {
	ID            string `json:"id"`
	LeadID        string `json:"lead_id"`
	ChannelID     string `json:"channel_id"`
	Status        string `json:"status"`
	BotEnabled    bool   `json:"bot_enabled"`
	AssignedAgent string `json:"assigned_agent,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// SnapshotResponse is the JSON response for GET /api/conversations/{id}.
type SnapshotResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Messages     []MessageResponse    `json:"messages"`
}

// AuditRecordResponse is the JSON representation of one audit record.
type AuditRecordResponse struct {
	ID        string         `json:"id"`
	LeadID    string         `json:"lead_id"`
	Stream    string         `json:"stream"`
	Previous  string         `json:"previous"`
	New       string         `json:"new"`
	Reason    string         `json:"reason"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// AuditListResponse is the JSON response for GET /api/leads/{id}/audit.
type AuditListResponse struct {
	Records []AuditRecordResponse `json:"records"`
	Total   int                   `json:"total"`
	Totals  map[string]int        `json:"totals"`
}

// SessionResponse is the JSON response for session resolution.
type SessionResponse struct {
	InstanceName  string `json:"instance_name"`
	State         string `json:"state"`
	BoundAddress  string `json:"bound_address"`
	ProfileName   string `json:"profile_name,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`
	Active        bool   `json:"active"`
	IsMatched     bool   `json:"is_matched"`
}

// ConnectSessionRequest is the JSON request body for POST /api/sessions/{name}/connect.
type ConnectSessionRequest struct {
	Address       string `json:"address"`
	ProfileName   string `json:"profile_name,omitempty"`
	ProfilePicURL string `json:"profile_pic_url,omitempty"`
}

// RescoreRequest is the JSON request body for POST /api/leads/{id}/rescore.
type RescoreRequest struct {
	Reason string `json:"reason,omitempty"`
}

// LeadResponse is the JSON representation of a lead.
type LeadResponse struct {
	ID                 string `json:"id"`
	Address            string `json:"address"`
	DisplayName        string `json:"display_name,omitempty"`
	Score              int    `json:"score"`
	Classification     string `json:"classification"`
	HasQualifyingClaim bool   `json:"has_qualifying_claim"`
	Eligible           bool   `json:"eligible"`
	HighUrgency        bool   `json:"high_urgency"`
	DocumentsComplete  bool   `json:"documents_complete"`
	LastInteractionAt  string `json:"last_interaction_at,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// LeadUpdateRequest is the JSON request body for PATCH /api/leads/{id}.
// Omitted flags are left unchanged.
type LeadUpdateRequest struct {
	HasQualifyingClaim *bool  `json:"has_qualifying_claim,omitempty"`
	Eligible           *bool  `json:"eligible,omitempty"`
	HighUrgency        *bool  `json:"high_urgency,omitempty"`
	DocumentsComplete  *bool  `json:"documents_complete,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// Gateway wires the HTTP surface to the core services.
type Gateway struct {
	conversations *conversation.Service
	broadcaster   *conversation.Broadcaster
	engine        *scoring.Engine
	sessions      *session.Matcher
	store         store.Store
	verifier      auth.TokenVerifier
	logger        *slog.Logger
}

// New creates a Gateway.
func New(conversations *conversation.Service, broadcaster *conversation.Broadcaster, engine *scoring.Engine, sessions *session.Matcher, st store.Store, verifier auth.TokenVerifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		conversations: conversations,
		broadcaster:   broadcaster,
		engine:        engine,
		sessions:      sessions,
		store:         st,
		verifier:      verifier,
		logger:        logger.With("component", "gateway"),
	}
}

// Routes returns the HTTP handler with all API routes registered.
// Everything under /api requires a verified actor token.
func (g *Gateway) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", g.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/inbound", g.handleInbound)
	api.HandleFunc("POST /api/conversations/{id}/messages", g.handleAppendMessage)
	api.HandleFunc("POST /api/conversations/{id}/status", g.handleSetStatus)
	api.HandleFunc("GET /api/conversations/{id}/unread", g.handleUnreadCount)
	api.HandleFunc("POST /api/conversations/{id}/read", g.handleMarkRead)
	api.HandleFunc("GET /api/conversations/{id}/events", g.handleEvents)
	api.HandleFunc("GET /api/conversations/{id}", g.handleSnapshot)
	api.HandleFunc("DELETE /api/conversations/{id}", g.handleDeleteConversation)
	api.HandleFunc("GET /api/leads/{id}", g.handleGetLead)
	api.HandleFunc("PATCH /api/leads/{id}", g.handleUpdateLead)
	api.HandleFunc("GET /api/leads/{id}/audit", g.handleAudit)
	api.HandleFunc("POST /api/leads/{id}/rescore", g.handleRescore)
	api.HandleFunc("GET /api/sessions/resolve", g.handleResolveSession)
	api.HandleFunc("POST /api/sessions/{name}/connect", g.handleConnectSession)
	api.HandleFunc("POST /api/sessions/{name}/disconnect", g.handleDisconnectSession)

	mux.Handle("/api/", auth.HTTPAuthMiddleware(g.verifier, g.store)(api))
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *Gateway) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.ChannelID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "address and channel_id are required")
		return
	}

	msg, err := g.conversations.HandleInbound(r.Context(), &conversation.InboundMessage{
		Address:           req.Address,
		DisplayName:       req.DisplayName,
		ChannelID:         req.ChannelID,
		Type:              store.MessageType(req.Type),
		Content:           req.Content,
		SenderName:        req.SenderName,
		ProviderMessageID: req.ProviderMessageID,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, messageResponse(msg))
}

func (g *Gateway) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req AppendMessageRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Agent replies with delivery requested go through the outbound path.
	if req.Deliver && store.Role(req.Sender) == store.RoleAgent {
		msg, err := g.conversations.SendReply(r.Context(), conversationID, req.ChannelInstance, req.SenderName, req.Content)
		if err != nil && !errors.Is(err, conversation.ErrDeliveryFailed) {
			g.writeError(w, err)
			return
		}
		status := http.StatusCreated
		if errors.Is(err, conversation.ErrDeliveryFailed) {
			status = http.StatusBadGateway
		}
		g.writeJSON(w, status, messageResponse(msg))
		return
	}

	msg, err := g.conversations.AppendMessage(r.Context(), conversationID, &conversation.AppendRequest{
		Type:              store.MessageType(req.Type),
		Content:           req.Content,
		Sender:            store.Role(req.Sender),
		SenderName:        req.SenderName,
		ProviderMessageID: req.ProviderMessageID,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, messageResponse(msg))
}

func (g *Gateway) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req StatusRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := store.ActorManual
	if a := auth.ActorFromContext(r.Context()); a != nil && a.Role == "service" {
		actor = store.ActorSystem
	}

	if err := g.conversations.SetStatus(r.Context(), conversationID, store.ConversationStatus(req.Status), actor, req.Reason); err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]string{"status": req.Status})
}

func (g *Gateway) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	role := store.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = store.RoleUser
	}

	count, err := g.conversations.UnreadCount(r.Context(), conversationID, role)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")
	role := store.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = store.RoleUser
	}

	if err := g.conversations.MarkRead(r.Context(), conversationID, role); err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (g *Gateway) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	snap, err := g.conversations.GetSnapshot(r.Context(), conversationID)
	if err != nil {
		g.writeError(w, err)
		return
	}

	resp := SnapshotResponse{
		Conversation: conversationResponse(snap.Conversation),
		Messages:     make([]MessageResponse, 0, len(snap.Messages)),
	}
	for _, msg := range snap.Messages {
		resp.Messages = append(resp.Messages, messageResponse(msg))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	if err := g.conversations.Delete(r.Context(), conversationID); err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (g *Gateway) handleAudit(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")

	stream := store.AuditStream(r.URL.Query().Get("stream"))
	if stream == "" {
		stream = store.StreamAll
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))

	records, err := g.store.ListAudit(r.Context(), leadID, stream, limit, skip)
	if err != nil {
		g.writeError(w, err)
		return
	}
	total, err := g.store.CountAudit(r.Context(), leadID, stream)
	if err != nil {
		g.writeError(w, err)
		return
	}
	totals, err := g.store.AuditTotals(r.Context(), leadID)
	if err != nil {
		g.writeError(w, err)
		return
	}

	resp := AuditListResponse{
		Records: make([]AuditRecordResponse, 0, len(records)),
		Total:   total,
		Totals:  make(map[string]int, len(totals)),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, AuditRecordResponse{
			ID:        rec.ID,
			LeadID:    rec.LeadID,
			Stream:    string(rec.Stream),
			Previous:  rec.Previous,
			New:       rec.New,
			Reason:    rec.Reason,
			Actor:     string(rec.Actor),
			Metadata:  rec.Metadata,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	for stream, count := range totals {
		resp.Totals[string(stream)] = count
	}
	g.writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := g.store.GetLead(r.Context(), r.PathValue("id"))
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, leadResponse(lead))
}

// handleUpdateLead applies operator edits to a lead's eligibility flags and
// rescores it from the new flag values. The score change lands in the
// score audit stream via the rescore.
func (g *Gateway) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")

	var req LeadUpdateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.HasQualifyingClaim == nil && req.Eligible == nil && req.HighUrgency == nil && req.DocumentsComplete == nil {
		g.sendJSONError(w, http.StatusBadRequest, "no eligibility flags provided")
		return
	}

	lead, err := g.store.UpdateLeadFlags(r.Context(), leadID, store.LeadFlags{
		HasQualifyingClaim: req.HasQualifyingClaim,
		Eligible:           req.Eligible,
		HighUrgency:        req.HighUrgency,
		DocumentsComplete:  req.DocumentsComplete,
	})
	if err != nil {
		g.writeError(w, err)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "eligibility flags updated"
	}
	actor := store.ActorManual
	if a := auth.ActorFromContext(r.Context()); a != nil && a.Role == "service" {
		actor = store.ActorSystem
	}

	changed, err := g.engine.Rescore(r.Context(), leadID, actor, reason)
	if err != nil {
		g.writeError(w, err)
		return
	}
	if changed {
		lead, err = g.store.GetLead(r.Context(), leadID)
		if err != nil {
			g.writeError(w, err)
			return
		}
	}
	g.writeJSON(w, http.StatusOK, leadResponse(lead))
}

func (g *Gateway) handleRescore(w http.ResponseWriter, r *http.Request) {
	leadID := r.PathValue("id")

	var req RescoreRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r.Body, &req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual rescore"
	}

	actor := store.ActorManual
	if a := auth.ActorFromContext(r.Context()); a != nil && a.Role == "service" {
		actor = store.ActorSystem
	}

	changed, err := g.engine.Rescore(r.Context(), leadID, actor, reason)
	if err != nil {
		g.writeError(w, err)
		return
	}

	lead, err := g.store.GetLead(r.Context(), leadID)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"changed":        changed,
		"score":          lead.Score,
		"classification": string(lead.Classification),
	})
}

func (g *Gateway) handleResolveSession(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		g.sendJSONError(w, http.StatusBadRequest, "address is required")
		return
	}
	fallback := r.URL.Query().Get("fallback") == "true"

	match, err := g.sessions.Resolve(r.Context(), address, fallback)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, sessionResponse(match))
}

func (g *Gateway) handleConnectSession(w http.ResponseWriter, r *http.Request) {
	instanceName := r.PathValue("name")

	var req ConnectSessionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" {
		g.sendJSONError(w, http.StatusBadRequest, "address is required")
		return
	}

	sess, err := g.sessions.Connect(r.Context(), instanceName, req.Address, req.ProfileName, req.ProfilePicURL)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, sessionResponse(&session.Match{Session: sess, IsMatched: true}))
}

func (g *Gateway) handleDisconnectSession(w http.ResponseWriter, r *http.Request) {
	instanceName := r.PathValue("name")

	if err := g.sessions.Disconnect(r.Context(), instanceName); err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleEvents streams room events for a conversation via SSE. Clients that
// disconnect miss events published while offline and reconcile with the
// snapshot endpoint on reconnect.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	// Verify the room exists before holding the connection open
	if _, err := g.conversations.GetSnapshot(r.Context(), conversationID); err != nil {
		g.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, subID := g.broadcaster.Subscribe(r.Context(), conversationID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "subscribed", map[string]string{"room": conversationID, "sub_id": subID})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			g.writeSSEEvent(w, string(event.Name), event)
			flusher.Flush()
		}
	}
}

// writeError maps core error kinds to transport status codes. Callers never
// need to parse free text: the kind decides the status.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, conversation.ErrEmptyContent):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrInvalidTransition):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrConflict):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrDeliveryFailed):
		g.sendJSONError(w, http.StatusBadGateway, err.Error())
	default:
		g.logger.Error("internal error", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "storage unavailable")
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(r io.Reader, dst any) error {
	if err := json.NewDecoder(r).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func messageResponse(msg *store.Message) MessageResponse {
	resp := MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Seq:            msg.Seq,
		Type:           string(msg.Type),
		Content:        msg.Content,
		Sender:         string(msg.Sender),
		SenderName:     msg.SenderName,
		Read:           msg.Read,
		Delivery:       string(msg.Delivery),
		Timestamp:      msg.Timestamp.Format(time.RFC3339Nano),
	}
	if msg.ProviderMessageID != nil {
		resp.ProviderMessageID = *msg.ProviderMessageID
	}
	return resp
}

func leadResponse(lead *store.Lead) LeadResponse {
	resp := LeadResponse{
		ID:                 lead.ID,
		Address:            lead.Address,
		DisplayName:        lead.DisplayName,
		Score:              lead.Score,
		Classification:     string(lead.Classification),
		HasQualifyingClaim: lead.HasQualifyingClaim,
		Eligible:           lead.Eligible,
		HighUrgency:        lead.HighUrgency,
		DocumentsComplete:  lead.DocumentsComplete,
		CreatedAt:          lead.CreatedAt.Format(time.RFC3339),
	}
	if lead.LastInteractionAt != nil {
		resp.LastInteractionAt = lead.LastInteractionAt.Format(time.RFC3339)
	}
	return resp
}

func conversationResponse(conv *store.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:         conv.ID,
		LeadID:     conv.LeadID,
		ChannelID:  conv.ChannelID,
		Status:     string(conv.Status),
		BotEnabled: conv.BotEnabled,
		CreatedAt:  conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  conv.UpdatedAt.Format(time.RFC3339),
	}
	if conv.AssignedAgent != nil {
		resp.AssignedAgent = *conv.AssignedAgent
	}
	return resp
}

func sessionResponse(match *session.Match) SessionResponse {
	return SessionResponse{
		InstanceName:  match.Session.InstanceName,
		State:         string(match.Session.State),
		BoundAddress:  match.Session.BoundAddress,
		ProfileName:   match.Session.ProfileName,
		ProfilePicURL: match.Session.ProfilePicURL,
		Active:        match.Session.Active,
		IsMatched:     match.IsMatched,
	}
}
