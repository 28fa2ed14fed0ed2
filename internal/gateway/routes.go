package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soyeahso/duet/internal/chatsync"
	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/twin"
)

const (
	// storeCallTimeout bounds RPCs that read from the document store.
	storeCallTimeout = 30 * time.Second
	// twinCallTimeout is the maximum duration for drafting a twin reply.
	twinCallTimeout = 2 * time.Minute
)

// Replier drafts and sends AI twin replies.
type Replier interface {
	Draft(ctx context.Context, conversationID string) (twin.Draft, error)
	Reply(ctx context.Context, conversationID string) (domain.Message, error)
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up all JSON-RPC method handlers.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("conversations.list", s.rpcConversationsList)
	s.Handle("conversations.open", s.rpcConversationsOpen)
	s.Handle("conversations.read", s.rpcConversationsRead)
	s.Handle("conversations.subscribe", s.rpcConversationsSubscribe)
	s.Handle("conversations.unsubscribe", s.rpcConversationsUnsubscribe)
	s.Handle("messages.load", s.rpcMessagesLoad)
	s.Handle("messages.get", s.rpcMessagesGet)
	s.Handle("messages.send", s.rpcMessagesSend)
	s.Handle("twin.reply", s.rpcTwinReply)
}

// errorShape maps synchronizer errors to wire errors. Remote failures carry
// the user-facing notification text, never the transport error.
func errorShape(err error) ErrorShape {
	var (
		idErr    *domain.InvalidIdentifierError
		notFound *domain.ActiveGroupNotFoundError
		readErr  *domain.RemoteReadError
		writeErr *domain.RemoteWriteError
	)
	switch {
	case errors.As(err, &idErr):
		return ErrorShape{Code: "invalid_identifier", Message: idErr.Error()}
	case errors.As(err, &notFound):
		return ErrorShape{Code: "not_found", Message: notFound.Error()}
	case errors.As(err, &readErr):
		return ErrorShape{Code: "load_failed", Message: chatsync.NotificationText(readErr.Category()), Retryable: true}
	case errors.As(err, &writeErr):
		return ErrorShape{Code: "send_failed", Message: chatsync.NotificationText(writeErr.Category()), Retryable: true}
	case errors.Is(err, chatsync.ErrEmptyMessage):
		return ErrorShape{Code: "invalid_params", Message: "content is required"}
	case errors.Is(err, twin.ErrNothingToReply):
		return ErrorShape{Code: "nothing_to_reply", Message: err.Error()}
	case errors.Is(err, chatsync.ErrClosed):
		return ErrorShape{Code: "unavailable", Message: "synchronizer is shutting down"}
	default:
		return ErrorShape{Code: "internal", Message: "internal error"}
	}
}

func (s *Server) rpcHealth(rc *RequestContext) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
		Self:    s.sync.Self().DID,
		Twin:    s.twin != nil,
	}
	if !s.startedAt.IsZero() {
		resp.UptimeMs = time.Since(s.startedAt).Milliseconds()
	}
	rc.Respond(resp)
}

func (s *Server) rpcConversationsList(rc *RequestContext) {
	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()

	headers, err := s.sync.ListConversations(ctx)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"conversations": headers})
}

type openParams struct {
	DID         string `json:"did"`
	DisplayName string `json:"displayName,omitempty"`
}

func (s *Server) rpcConversationsOpen(rc *RequestContext) {
	var p openParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.DID == "" {
		rc.RespondError("invalid_params", "did is required")
		return
	}

	header, err := s.sync.Open(domain.Participant{DID: p.DID, DisplayName: p.DisplayName})
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"conversation": header})
}

type conversationParams struct {
	ConversationID string `json:"conversationId"`
}

// conversationID decodes and checks the conversationId param.
func (rc *RequestContext) conversationID() (string, bool) {
	var p conversationParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return "", false
	}
	if p.ConversationID == "" {
		rc.RespondError("invalid_params", "conversationId is required")
		return "", false
	}
	return p.ConversationID, true
}

func (s *Server) rpcConversationsRead(rc *RequestContext) {
	id, ok := rc.conversationID()
	if !ok {
		return
	}
	if err := s.sync.MarkRead(id); err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"conversationId": id, "unreadCount": 0})
}

type subscribeParams struct {
	ConversationIDs []string `json:"conversationIds"`
}

func (rc *RequestContext) subscribeParams() ([]string, bool) {
	var p subscribeParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return nil, false
	}
	if len(p.ConversationIDs) == 0 {
		rc.RespondError("invalid_params", "conversationIds is required")
		return nil, false
	}
	return p.ConversationIDs, true
}

// rpcConversationsSubscribe narrows the events pushed to this connection to
// the given conversations. Unknown ids are rejected.
func (s *Server) rpcConversationsSubscribe(rc *RequestContext) {
	ids, ok := rc.subscribeParams()
	if !ok {
		return
	}
	for _, id := range ids {
		if _, err := s.sync.Conversation(id); err != nil {
			rc.Fail(err)
			return
		}
	}
	rc.Respond(map[string]any{"conversationIds": rc.Client.Subscribe(ids...)})
}

func (s *Server) rpcConversationsUnsubscribe(rc *RequestContext) {
	ids, ok := rc.subscribeParams()
	if !ok {
		return
	}
	rc.Respond(map[string]any{"conversationIds": rc.Client.Unsubscribe(ids...)})
}

type loadParams struct {
	ConversationID   string `json:"conversationId"`
	ConversationName string `json:"conversationName,omitempty"`
}

// messagesPayload is the response of messages.load and messages.get.
type messagesPayload struct {
	ConversationID string           `json:"conversationId"`
	State          string           `json:"state"`
	LoadedAt       *time.Time       `json:"loadedAt,omitempty"`
	Messages       []domain.Message `json:"messages"`
}

// messages reports a conversation's messages with the load state of the
// given cache key. An empty name is the id-only key. messages.get reports
// the key the conversation was last loaded under.
func (s *Server) messages(id, name string) (messagesPayload, error) {
	conv, err := s.sync.Conversation(id)
	if err != nil {
		return messagesPayload{}, err
	}
	state, at := s.sync.LoadState(id, name)
	p := messagesPayload{ConversationID: id, State: state.String(), Messages: conv.Messages}
	if p.Messages == nil {
		p.Messages = []domain.Message{}
	}
	if !at.IsZero() {
		p.LoadedAt = &at
	}
	return p, nil
}

func (s *Server) rpcMessagesLoad(rc *RequestContext) {
	var p loadParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.ConversationID == "" {
		rc.RespondError("invalid_params", "conversationId is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
	defer cancel()

	if err := s.sync.LoadMessages(ctx, p.ConversationID, p.ConversationName); err != nil {
		rc.Fail(err)
		return
	}
	payload, err := s.messages(p.ConversationID, p.ConversationName)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(payload)
}

func (s *Server) rpcMessagesGet(rc *RequestContext) {
	id, ok := rc.conversationID()
	if !ok {
		return
	}
	payload, err := s.messages(id, s.sync.LoadedName(id))
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(payload)
}

type sendParams struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

func (s *Server) rpcMessagesSend(rc *RequestContext) {
	var p sendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.ConversationID == "" {
		rc.RespondError("invalid_params", "conversationId is required")
		return
	}

	self := s.sync.Self()
	msg, err := s.sync.SendMessage(context.Background(), p.ConversationID, p.Content, domain.SenderContext{
		DID:         self.DID,
		DisplayName: self.DisplayName,
	})
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"message": msg})
}

type twinReplyParams struct {
	ConversationID string `json:"conversationId"`
	DryRun         bool   `json:"dryRun,omitempty"`
}

func (s *Server) rpcTwinReply(rc *RequestContext) {
	if s.twin == nil {
		rc.RespondError("unavailable", "twin is not enabled")
		return
	}

	var p twinReplyParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.ConversationID == "" {
		rc.RespondError("invalid_params", "conversationId is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), twinCallTimeout)
	defer cancel()

	if p.DryRun {
		d, err := s.twin.Draft(ctx, p.ConversationID)
		if err != nil {
			rc.Fail(err)
			return
		}
		rc.Respond(map[string]any{"draft": d})
		return
	}

	msg, err := s.twin.Reply(ctx, p.ConversationID)
	if err != nil {
		rc.Fail(err)
		return
	}
	rc.Respond(map[string]any{"message": msg})
}
