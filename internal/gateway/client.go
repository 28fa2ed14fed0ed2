package gateway

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/duet/internal/chatsync"
	"github.com/soyeahso/duet/internal/logging"
	"github.com/soyeahso/duet/internal/metrics"
	"github.com/soyeahso/duet/internal/twin"
)

// Client is one authenticated UI connection.
//
// A client that has not subscribed to any conversation receives the events
// of every conversation. Once it subscribes, conversation events are
// filtered to its subscriptions; account-wide events (a notification
// without a conversation) always reach it.
type Client struct {
	ConnID      string
	Info        ClientInfo
	AuthMethod  string
	ConnectedAt time.Time

	conn   *websocket.Conn
	mu     sync.Mutex // serializes writes
	closed bool

	subMu sync.RWMutex
	subs  map[string]bool
}

// NewClient wraps a connection that completed the handshake.
func NewClient(conn *websocket.Conn, info ClientInfo, auth AuthResult) *Client {
	return &Client{
		ConnID:      uuid.New().String(),
		Info:        info,
		AuthMethod:  auth.Method,
		ConnectedAt: time.Now(),
		conn:        conn,
		subs:        make(map[string]bool),
	}
}

// Subscribe adds conversation ids to the client's subscriptions and
// returns the resulting set.
func (c *Client) Subscribe(ids ...string) []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]bool)
	}
	for _, id := range ids {
		if id != "" {
			c.subs[id] = true
		}
	}
	return c.subscriptionsLocked()
}

// Unsubscribe removes conversation ids. Removing the last one returns the
// client to receiving every conversation.
func (c *Client) Unsubscribe(ids ...string) []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, id := range ids {
		delete(c.subs, id)
	}
	return c.subscriptionsLocked()
}

// Subscriptions returns the subscribed conversation ids, sorted.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return c.subscriptionsLocked()
}

func (c *Client) subscriptionsLocked() []string {
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Wants reports whether an event for conversationID should reach the
// client. An empty id marks an account-wide event.
func (c *Client) Wants(conversationID string) bool {
	if conversationID == "" {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[conversationID]
}

// Send writes a frame to the client. Safe for concurrent use.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame)
}

// SendEvent sends a named event with payload.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the socket.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// conversationOf returns the conversation a synchronizer or twin event
// belongs to, or "" for account-wide events.
func conversationOf(data any) string {
	switch p := data.(type) {
	case chatsync.ConversationUpdate:
		return p.Conversation.ID
	case chatsync.MessagesLoaded:
		return p.ConversationID
	case chatsync.StatusChange:
		return p.ConversationID
	case chatsync.Notification:
		return p.ConversationID
	case twin.Draft:
		return p.ConversationID
	}
	return ""
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	metrics.GatewayClientsActive.Set(float64(len(r.clients)))
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	metrics.GatewayClientsActive.Set(float64(len(r.clients)))
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Publish encodes an event once and sends it to every client that wants
// its conversation. It returns the number of clients it reached.
func (r *ClientRegistry) Publish(event string, data any, seq int64) int {
	frame, err := NewEvent(event, data, seq)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encoding event failed")
		return 0
	}
	conversationID := conversationOf(data)

	r.mu.RLock()
	defer r.mu.RUnlock()
	delivered := 0
	for _, c := range r.clients {
		if !c.Wants(conversationID) {
			continue
		}
		if err := c.Send(frame); err != nil {
			r.log.Warn().Err(err).Str("connId", c.ConnID).Str("event", event).Msg("event send failed")
			continue
		}
		delivered++
	}
	metrics.GatewayEventsTotal.WithLabelValues(event).Add(float64(delivered))
	return delivered
}

// CloseAll closes and removes all clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
	metrics.GatewayClientsActive.Set(0)
}
