// Package chatsync keeps local two-party chat state in step with the remote
// document store: deterministic conversation ids, a load-once cache per
// conversation key, optimistic sends and debounced reconciliation.
package chatsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/hooks"
	"github.com/soyeahso/duet/internal/identity"
	"github.com/soyeahso/duet/internal/logging"
	"github.com/soyeahso/duet/internal/metrics"
)

// ErrClosed is returned by operations on a closed Synchronizer.
var ErrClosed = errors.New("chatsync: synchronizer closed")

// ErrEmptyMessage is returned when sending blank content.
var ErrEmptyMessage = errors.New("chatsync: message content is empty")

// Options configures a Synchronizer.
type Options struct {
	Self domain.Participant
	// ReconcileDelay is the debounce between a send and the reload that
	// reconciles it. Zero reconciles on the next timer tick.
	ReconcileDelay     time.Duration
	MaxConcurrentLoads int
	Validator          *identity.Validator
	Now                func() time.Time
}

// Synchronizer owns the local conversation state of one user.
type Synchronizer struct {
	remote Remote
	hooks  *hooks.Manager
	log    *logging.Logger
	opts   Options

	mu            sync.Mutex
	conversations map[string]*domain.Conversation
	// loadedName is the conversation name of the key each conversation was
	// last loaded under; reconciles and refreshes reload that key.
	loadedName map[string]string
	cache      *messageCache
	timers     map[string]*time.Timer
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Synchronizer for opts.Self.
func New(remote Remote, hm *hooks.Manager, log *logging.Logger, opts Options) (*Synchronizer, error) {
	if opts.Validator == nil {
		opts.Validator = identity.NewValidator()
	}
	if err := opts.Validator.Validate(opts.Self.DID); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxConcurrentLoads <= 0 {
		opts.MaxConcurrentLoads = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		remote:        remote,
		hooks:         hm,
		log:           log.Sub("chatsync"),
		opts:          opts,
		conversations: make(map[string]*domain.Conversation),
		loadedName:    make(map[string]string),
		cache:         newMessageCache(),
		timers:        make(map[string]*time.Timer),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Self returns the local participant.
func (s *Synchronizer) Self() domain.Participant {
	return s.opts.Self
}

// Open returns the conversation with peer, creating it locally if needed.
// Nothing is persisted until the first message is written.
func (s *Synchronizer) Open(peer domain.Participant) (domain.ConversationHeader, error) {
	id, err := s.opts.Validator.ConversationID(s.opts.Self.DID, peer.DID)
	if err != nil {
		return domain.ConversationHeader{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ConversationHeader{}, ErrClosed
	}
	conv, ok := s.conversations[id]
	if !ok {
		conv = &domain.Conversation{
			ID:           id,
			Name:         identity.DeriveConversationName(s.opts.Self.DID, s.opts.Self.DisplayName, peer.DID, peer.DisplayName),
			Participants: []domain.Participant{s.opts.Self, peer},
			UpdatedAt:    s.opts.Now().UTC(),
		}
		s.conversations[id] = conv
	}
	header := conv.Header()
	s.mu.Unlock()

	if !ok {
		s.log.Info().Str("conversationId", id).Str("peer", peer.DID).Msg("conversation opened")
		s.emit(hooks.EventConversationUpdated, ConversationUpdate{Conversation: header})
	}
	return header, nil
}

// ListConversations fetches the user's conversation headers, merges them
// into local state and returns every known conversation, newest first.
func (s *Synchronizer) ListConversations(ctx context.Context) ([]domain.ConversationHeader, error) {
	remote, err := s.remote.ListConversations(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("listing conversations failed")
		s.notify(domain.CategoryConnection, "")
		return nil, err
	}

	s.mu.Lock()
	for _, h := range remote {
		conv, ok := s.conversations[h.ID]
		if !ok {
			s.conversations[h.ID] = &domain.Conversation{
				ID:           h.ID,
				Name:         h.Name,
				Participants: h.Participants,
				LastMessage:  h.LastMessage,
				UnreadCount:  h.UnreadCount,
				UpdatedAt:    h.UpdatedAt,
			}
			continue
		}
		if h.UpdatedAt.After(conv.UpdatedAt) {
			conv.LastMessage = h.LastMessage
			conv.UpdatedAt = h.UpdatedAt
		}
	}
	headers := make([]domain.ConversationHeader, 0, len(s.conversations))
	for _, c := range s.conversations {
		headers = append(headers, c.Header())
	}
	s.mu.Unlock()

	sortHeaders(headers)
	return headers, nil
}

// Conversation returns a copy of a known conversation.
func (s *Synchronizer) Conversation(id string) (domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, &domain.ActiveGroupNotFoundError{ConversationID: id}
	}
	out := *conv
	out.Participants = append([]domain.Participant(nil), conv.Participants...)
	out.Messages = append([]domain.Message(nil), conv.Messages...)
	return out, nil
}

// Messages returns a copy of a conversation's current message sequence.
func (s *Synchronizer) Messages(id string) ([]domain.Message, error) {
	conv, err := s.Conversation(id)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// MarkRead clears a conversation's unread count.
func (s *Synchronizer) MarkRead(id string) error {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return &domain.ActiveGroupNotFoundError{ConversationID: id}
	}
	changed := conv.UnreadCount != 0
	conv.UnreadCount = 0
	header := conv.Header()
	s.mu.Unlock()

	if changed {
		s.emit(hooks.EventConversationUpdated, ConversationUpdate{Conversation: header})
	}
	return nil
}

// LoadState reports the cache state of a conversation key and when it last
// finished loading.
func (s *Synchronizer) LoadState(id, name string) (LoadState, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.CacheKey(id, name)
	return s.cache.state(key), s.cache.loadedAt(key)
}

// LoadMessages loads a conversation's messages once per key. While a load
// for the key is in flight, or after it has completed, further calls return
// immediately without a remote read; Invalidate forces a reload. On failure
// the key returns to NotLoaded and the RemoteReadError is returned.
func (s *Synchronizer) LoadMessages(ctx context.Context, id, name string) error {
	key := domain.CacheKey(id, name)
	log := s.log.With("conversationId", id).With("cacheKey", key)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.conversations[id]; !ok {
		s.mu.Unlock()
		return &domain.ActiveGroupNotFoundError{ConversationID: id}
	}
	gen, state, ok := s.cache.begin(key)
	s.mu.Unlock()
	if !ok {
		log.Debug().Stringer("state", state).Msg("load skipped")
		metrics.RecordCacheLoad("skipped")
		return nil
	}

	msgs, err := s.remote.QueryMessages(ctx, id, name)

	s.mu.Lock()
	if err != nil {
		s.cache.fail(key, gen)
		s.mu.Unlock()
		log.Error().Err(err).Msg("loading messages failed")
		metrics.RecordCacheLoad("failed")
		s.notify(domain.CategoryLoad, id)
		return err
	}
	prev, hadPrev, current := s.cache.finish(key, gen, msgs, s.opts.Now())
	conv, exists := s.conversations[id]
	if !current || !exists {
		s.mu.Unlock()
		log.Debug().Msg("discarding stale load result")
		metrics.RecordCacheLoad("stale")
		return nil
	}
	s.mergeLocked(conv, name, msgs, prev, hadPrev)
	loaded := MessagesLoaded{
		ConversationID:   id,
		ConversationName: name,
		Messages:         append([]domain.Message(nil), conv.Messages...),
	}
	header := conv.Header()
	s.mu.Unlock()

	log.Debug().Int("count", len(msgs)).Msg("messages loaded")
	metrics.RecordCacheLoad("loaded")
	s.emit(hooks.EventMessagesLoaded, loaded)
	s.emit(hooks.EventConversationUpdated, ConversationUpdate{Conversation: header})
	return nil
}

// mergeLocked replaces conv's messages with the remote sequence, keeping
// local pending and failed messages the remote does not have yet.
func (s *Synchronizer) mergeLocked(conv *domain.Conversation, name string, remote, prev []domain.Message, hadPrev bool) {
	_, loadedBefore := s.loadedName[conv.ID]
	if hadPrev || loadedBefore {
		seen := make(map[string]bool, len(prev)+len(conv.Messages))
		for _, m := range prev {
			seen[m.ID] = true
		}
		for _, m := range conv.Messages {
			seen[m.ID] = true
		}
		for _, m := range remote {
			if !seen[m.ID] && m.SenderDID != s.opts.Self.DID {
				conv.UnreadCount++
			}
		}
	}
	s.loadedName[conv.ID] = name

	inRemote := make(map[string]bool, len(remote))
	for _, m := range remote {
		inRemote[m.ID] = true
	}
	merged := append([]domain.Message(nil), remote...)
	for _, m := range conv.Messages {
		if m.Local() && !inRemote[m.ID] {
			merged = append(merged, m)
		}
	}
	domain.SortMessages(merged)
	conv.Messages = merged

	if n := len(merged); n > 0 {
		last := merged[n-1]
		conv.LastMessage = last.Content
		if last.Timestamp.After(conv.UpdatedAt) {
			conv.UpdatedAt = last.Timestamp
		}
	}
}

// LoadedName returns the conversation name of the key id was last loaded
// under. It is "" (the id-only key) when id was never loaded.
func (s *Synchronizer) LoadedName(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedName[id]
}

// Invalidate returns a conversation key to NotLoaded. An in-flight load for
// the key finishes but its result is discarded.
func (s *Synchronizer) Invalidate(id, name string) {
	s.mu.Lock()
	s.cache.invalidate(domain.CacheKey(id, name))
	s.mu.Unlock()
}

// SendMessage appends a pending message to the conversation before
// returning, writes it in the background and schedules a reconciling reload.
// A failed write leaves the message visible with status failed.
func (s *Synchronizer) SendMessage(ctx context.Context, id, content string, sender domain.SenderContext) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if sender.DID == "" {
		sender.DID = s.opts.Self.DID
		if sender.DisplayName == "" {
			sender.DisplayName = s.opts.Self.DisplayName
		}
	}
	if err := s.opts.Validator.Validate(sender.DID); err != nil {
		return domain.Message{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Message{}, ErrClosed
	}
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return domain.Message{}, &domain.ActiveGroupNotFoundError{ConversationID: id}
	}
	if _, member := conv.Participant(sender.DID); !member {
		s.mu.Unlock()
		return domain.Message{}, &domain.InvalidIdentifierError{Identifier: sender.DID, Reason: "sender is not a participant of the conversation"}
	}
	msg := domain.Message{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Content:       content,
		SenderDID:     sender.DID,
		SenderName:    sender.DisplayName,
		Timestamp:     s.opts.Now().UTC().Truncate(time.Millisecond),
		IsAIGenerated: sender.IsAIGenerated,
		Status:        domain.StatusPending,
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastMessage = content
	if msg.Timestamp.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.Timestamp
	}
	name := conv.Name
	header := conv.Header()
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info().Str("conversationId", id).Str("messageId", msg.ID).Bool("ai", msg.IsAIGenerated).Msg("message queued")
	s.emit(hooks.EventConversationUpdated, ConversationUpdate{Conversation: header})

	go s.write(msg, id, name, header)
	s.scheduleReconcile(id)
	return msg, nil
}

func (s *Synchronizer) write(msg domain.Message, id, name string, header domain.ConversationHeader) {
	defer s.wg.Done()
	log := s.log.With("conversationId", id).With("messageId", msg.ID)

	status := domain.StatusConfirmed
	err := s.remote.WriteMessage(s.ctx, msg, id, msg.SenderDID, msg.SenderName, name)
	if err != nil {
		status = domain.StatusFailed
		log.Error().Err(err).Msg("message write failed")
	} else if herr := s.remote.WriteHeader(s.ctx, header); herr != nil {
		log.Warn().Err(herr).Msg("conversation header write failed")
	}

	s.setStatus(id, msg.ID, status)
	metrics.RecordSend(string(status), msg.IsAIGenerated)
	s.emit(hooks.EventMessageStatus, StatusChange{ConversationID: id, MessageID: msg.ID, Status: status})
	if err != nil {
		s.notify(domain.CategorySend, id)
	}
}

func (s *Synchronizer) setStatus(id, msgID string, status domain.MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return
	}
	for i := range conv.Messages {
		// a reconcile may already have replaced it with the confirmed remote copy
		if conv.Messages[i].ID == msgID && conv.Messages[i].Status == domain.StatusPending {
			conv.Messages[i].Status = status
			return
		}
	}
}

// scheduleReconcile (re)starts the conversation's reconcile timer.
func (s *Synchronizer) scheduleReconcile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	if prev, ok := s.timers[id]; ok && prev.Stop() {
		s.wg.Done()
	}
	var t *time.Timer
	t = time.AfterFunc(s.opts.ReconcileDelay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.timers[id] == t {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		s.reconcile(id)
	})
	s.timers[id] = t
}

func (s *Synchronizer) reconcile(id string) {
	s.mu.Lock()
	_, ok := s.conversations[id]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	// each side files its messages under its own name, so a conversation
	// never loaded by name reconciles under the id-only key
	name := s.loadedName[id]
	s.cache.invalidate(domain.CacheKey(id, name))
	s.mu.Unlock()

	metrics.ReconcilesTotal.Inc()
	s.log.Debug().Str("conversationId", id).Msg("reconciling")
	// failures are logged and notified by LoadMessages
	_ = s.LoadMessages(s.ctx, id, name)
}

// RefreshAll invalidates and reloads every known conversation under the key
// it was last loaded with, with bounded concurrency. All loads run; the first error is returned.
func (s *Synchronizer) RefreshAll(ctx context.Context) error {
	type target struct{ id, name string }

	s.mu.Lock()
	targets := make([]target, 0, len(s.conversations))
	for id := range s.conversations {
		name := s.loadedName[id]
		s.cache.invalidate(domain.CacheKey(id, name))
		targets = append(targets, target{id, name})
	}
	s.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrentLoads)
	for _, t := range targets {
		g.Go(func() error {
			return s.LoadMessages(ctx, t.id, t.name)
		})
	}
	return g.Wait()
}

// Wait blocks until background writes and scheduled reconciles finish.
func (s *Synchronizer) Wait() {
	s.wg.Wait()
}

// Close cancels pending reconciles and in-flight writes and waits for
// background work to stop.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Synchronizer) emit(event string, data any) {
	if s.hooks != nil {
		s.hooks.Emit(s.ctx, event, data)
	}
}

func (s *Synchronizer) notify(cat domain.FailureCategory, conversationID string) {
	s.emit(hooks.EventNotify, newNotification(cat, conversationID))
}
