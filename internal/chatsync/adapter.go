package chatsync

import (
	"context"
	"fmt"
	"sort"

	"github.com/soyeahso/duet/internal/docstore"
	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/logging"
)

// DedupeMode selects the key conversation headers are collapsed on.
type DedupeMode string

const (
	// DedupeByID keeps one header per conversation id.
	DedupeByID DedupeMode = "id"
	// DedupeByName keeps one header per conversation name, merging distinct
	// ids that render the same label.
	DedupeByName DedupeMode = "name"
)

// Remote is the read/write surface the synchronizer needs from the store.
type Remote interface {
	WriteMessage(ctx context.Context, msg domain.Message, conversationID, senderDID, senderName, conversationName string) error
	WriteHeader(ctx context.Context, header domain.ConversationHeader) error
	QueryMessages(ctx context.Context, conversationID, conversationName string) ([]domain.Message, error)
	ListConversations(ctx context.Context) ([]domain.ConversationHeader, error)
}

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	MessageSchema string
	GroupSchema   string
	// SelfDID tags written headers and scopes ListConversations.
	SelfDID  string
	DedupeBy DedupeMode
}

// Adapter converts between local chat state and store documents.
type Adapter struct {
	store docstore.Store
	cfg   AdapterConfig
	log   *logging.Logger
}

var _ Remote = (*Adapter)(nil)

// NewAdapter creates an adapter over store.
func NewAdapter(store docstore.Store, cfg AdapterConfig, log *logging.Logger) *Adapter {
	if cfg.DedupeBy == "" {
		cfg.DedupeBy = DedupeByID
	}
	return &Adapter{store: store, cfg: cfg, log: log.Sub("adapter")}
}

// WriteMessage stores msg tagged with the conversation id and name.
func (a *Adapter) WriteMessage(ctx context.Context, msg domain.Message, conversationID, senderDID, senderName, conversationName string) error {
	msg.SenderDID = senderDID
	msg.SenderName = senderName
	doc := ToDocument(msg, conversationID, conversationName)

	id, err := a.store.Create(ctx, a.cfg.MessageSchema, doc)
	if err != nil {
		return &domain.RemoteWriteError{Op: "create message", Err: err}
	}
	a.log.Debug().
		Str("conversationId", conversationID).
		Str("messageId", msg.ID).
		Str("docId", id).
		Msg("message written")
	return nil
}

// WriteHeader stores a conversation header owned by the local user.
func (a *Adapter) WriteHeader(ctx context.Context, header domain.ConversationHeader) error {
	if _, err := a.store.Create(ctx, a.cfg.GroupSchema, toGroupDocument(header, a.cfg.SelfDID)); err != nil {
		return &domain.RemoteWriteError{Op: "create conversation header", Err: err}
	}
	return nil
}

// QueryMessages returns the stored messages of a conversation ordered by
// timestamp. The name narrows the query when given. Every returned document
// is checked against the full key since the store's filtering is coarse.
func (a *Adapter) QueryMessages(ctx context.Context, conversationID, conversationName string) ([]domain.Message, error) {
	filter := docstore.Filter{"groupId": conversationID}
	if conversationName != "" {
		filter["groupName"] = conversationName
	}

	records, err := a.store.Query(ctx, a.cfg.MessageSchema, filter, docstore.QueryOptions{})
	if err != nil {
		return nil, &domain.RemoteReadError{Op: "query messages", Err: err}
	}

	msgs := make([]domain.Message, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		var doc MessageDocument
		if err := rec.Decode(&doc); err != nil {
			a.log.Warn().Err(err).Str("docId", rec.ID).Msg("skipping undecodable message document")
			continue
		}
		if doc.DocID == "" {
			doc.DocID = rec.ID
		}
		if doc.GroupID != conversationID || (conversationName != "" && doc.GroupName != conversationName) {
			a.log.Debug().Str("docId", rec.ID).Str("groupId", doc.GroupID).Msg("discarding document outside conversation")
			continue
		}
		m := FromDocument(doc)
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		msgs = append(msgs, m)
	}
	domain.SortMessages(msgs)
	return msgs, nil
}

// ListConversations returns the local user's conversation headers, one per
// dedupe key, keeping the most recently updated. Newest first.
func (a *Adapter) ListConversations(ctx context.Context) ([]domain.ConversationHeader, error) {
	records, err := a.store.Query(ctx, a.cfg.GroupSchema, docstore.Filter{"ownerDid": a.cfg.SelfDID}, docstore.QueryOptions{})
	if err != nil {
		return nil, &domain.RemoteReadError{Op: "list conversations", Err: err}
	}

	latest := make(map[string]domain.ConversationHeader)
	for _, rec := range records {
		var doc GroupDocument
		if err := rec.Decode(&doc); err != nil {
			a.log.Warn().Err(err).Str("docId", rec.ID).Msg("skipping undecodable conversation header")
			continue
		}
		if doc.OwnerDID != a.cfg.SelfDID || doc.GroupID == "" {
			continue
		}
		h := fromGroupDocument(doc)
		key := a.dedupeKey(h)
		if prev, ok := latest[key]; !ok || h.UpdatedAt.After(prev.UpdatedAt) {
			latest[key] = h
		}
	}

	headers := make([]domain.ConversationHeader, 0, len(latest))
	for _, h := range latest {
		headers = append(headers, h)
	}
	sortHeaders(headers)
	return headers, nil
}

func (a *Adapter) dedupeKey(h domain.ConversationHeader) string {
	if a.cfg.DedupeBy == DedupeByName {
		return h.Name
	}
	return h.ID
}

func sortHeaders(headers []domain.ConversationHeader) {
	sort.SliceStable(headers, func(i, j int) bool {
		if headers[i].UpdatedAt.Equal(headers[j].UpdatedAt) {
			return headers[i].ID < headers[j].ID
		}
		return headers[i].UpdatedAt.After(headers[j].UpdatedAt)
	})
}

// ParseDedupeMode validates a sync.dedupeBy config value.
func ParseDedupeMode(s string) (DedupeMode, error) {
	switch DedupeMode(s) {
	case "", DedupeByID:
		return DedupeByID, nil
	case DedupeByName:
		return DedupeByName, nil
	}
	return "", fmt.Errorf("unknown dedupe mode %q", s)
}
