// Package twin drafts chat replies in the user's voice with an LLM and
// sends them marked as AI generated.
package twin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/duet/internal/domain"
	"github.com/soyeahso/duet/internal/hooks"
	"github.com/soyeahso/duet/internal/llm"
	"github.com/soyeahso/duet/internal/logging"
	"github.com/soyeahso/duet/internal/metrics"
	"github.com/soyeahso/duet/internal/profile"
)

// ErrNothingToReply is returned when a conversation has no message from
// the peer yet.
var ErrNothingToReply = errors.New("twin: no message from the other person to reply to")

const followUpPrompt = "(No reply yet. Write a short follow-up.)"

// Conversations is the part of the synchronizer the twin needs.
type Conversations interface {
	Self() domain.Participant
	Conversation(id string) (domain.Conversation, error)
	SendMessage(ctx context.Context, id, content string, sender domain.SenderContext) (domain.Message, error)
}

// Profiles looks up profile details for the persona.
type Profiles interface {
	GetProfile(ctx context.Context, did string) (*profile.Profile, error)
}

// Options configures a Twin.
type Options struct {
	// Persona overrides the persona built from the user's profile.
	Persona   string
	History   int
	MaxTokens int
}

// Draft is a generated reply.
type Draft struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Model          string `json:"model,omitempty"`
}

// Twin drafts replies for the local user.
type Twin struct {
	conv     Conversations
	client   llm.Client
	profiles Profiles
	hooks    *hooks.Manager
	log      *logging.Logger
	opts     Options
}

// New creates a Twin. profiles and hm may be nil.
func New(conv Conversations, client llm.Client, profiles Profiles, hm *hooks.Manager, log *logging.Logger, opts Options) *Twin {
	if opts.History <= 0 {
		opts.History = 20
	}
	return &Twin{conv: conv, client: client, profiles: profiles, hooks: hm, log: log.Sub("twin"), opts: opts}
}

// Draft generates a reply for the conversation without sending it.
func (t *Twin) Draft(ctx context.Context, conversationID string) (Draft, error) {
	conv, err := t.conv.Conversation(conversationID)
	if err != nil {
		return Draft{}, err
	}
	self := t.conv.Self()
	peer, _ := conv.Peer(self.DID)

	turns := buildTurns(conv.Messages, self.DID, t.opts.History)
	if len(turns) == 0 {
		return Draft{}, ErrNothingToReply
	}

	req := llm.CompletionRequest{
		System:    t.systemPrompt(ctx, self, peer),
		Messages:  turns,
		MaxTokens: t.opts.MaxTokens,
	}
	resp, err := t.client.Complete(ctx, req)
	if err != nil {
		metrics.TwinRepliesTotal.WithLabelValues(t.client.Name(), "error").Inc()
		t.log.Error().Err(err).Str("conversationId", conversationID).Msg("twin completion failed")
		return Draft{}, fmt.Errorf("draft reply: %w", err)
	}

	content := strings.Trim(strings.TrimSpace(resp.Content), `"`)
	if content == "" {
		metrics.TwinRepliesTotal.WithLabelValues(t.client.Name(), "empty").Inc()
		return Draft{}, errors.New("twin: model returned an empty reply")
	}
	metrics.TwinRepliesTotal.WithLabelValues(t.client.Name(), "ok").Inc()

	d := Draft{ConversationID: conversationID, Content: content, Model: resp.Model}
	t.log.Info().
		Str("conversationId", conversationID).
		Str("model", resp.Model).
		Int("outputTokens", resp.Usage.OutputTokens).
		Msg("reply drafted")
	if t.hooks != nil {
		t.hooks.Emit(ctx, hooks.EventTwinDrafted, d)
	}
	return d, nil
}

// Reply drafts a reply and sends it as the local user, marked AI generated.
func (t *Twin) Reply(ctx context.Context, conversationID string) (domain.Message, error) {
	d, err := t.Draft(ctx, conversationID)
	if err != nil {
		return domain.Message{}, err
	}
	self := t.conv.Self()
	return t.conv.SendMessage(ctx, conversationID, d.Content, domain.SenderContext{
		DID:           self.DID,
		DisplayName:   self.DisplayName,
		IsAIGenerated: true,
	})
}

func (t *Twin) systemPrompt(ctx context.Context, self, peer domain.Participant) string {
	selfName := nameOr(self.DisplayName, "the user")
	peerName := nameOr(peer.DisplayName, "their match")

	var b strings.Builder
	fmt.Fprintf(&b, "You are writing as %s in a dating app chat with %s.\n", selfName, peerName)
	fmt.Fprintf(&b, "Reply with one short, natural message in %s's voice. Output only the message text.\n", selfName)
	if persona := t.persona(ctx, self.DID); persona != "" {
		fmt.Fprintf(&b, "\nAbout %s:\n%s\n", selfName, persona)
	}
	return b.String()
}

func (t *Twin) persona(ctx context.Context, did string) string {
	if t.opts.Persona != "" {
		return t.opts.Persona
	}
	if t.profiles == nil {
		return ""
	}
	p, err := t.profiles.GetProfile(ctx, did)
	if err != nil {
		if !errors.Is(err, profile.ErrNotFound) {
			t.log.Warn().Err(err).Msg("profile lookup failed, drafting without persona")
		}
		return ""
	}

	var lines []string
	if p.Bio != "" {
		lines = append(lines, "Bio: "+p.Bio)
	}
	if len(p.Interests) > 0 {
		lines = append(lines, "Interests: "+strings.Join(p.Interests, ", "))
	}
	if p.Location != "" {
		lines = append(lines, "Lives in: "+p.Location)
	}
	for _, pr := range p.Prompts {
		lines = append(lines, fmt.Sprintf("%s %s", pr.Question, pr.Answer))
	}
	return strings.Join(lines, "\n")
}

// buildTurns maps the last history messages onto alternating turns: the
// peer speaks as user, the local user as assistant. Failed messages are
// left out. The result starts with a user turn and ends with one.
func buildTurns(msgs []domain.Message, self string, history int) []llm.Message {
	var kept []domain.Message
	for _, m := range msgs {
		if m.Status != domain.StatusFailed {
			kept = append(kept, m)
		}
	}
	if len(kept) > history {
		kept = kept[len(kept)-history:]
	}

	var turns []llm.Message
	for _, m := range kept {
		role := llm.RoleUser
		if m.SenderDID == self {
			role = llm.RoleAssistant
		}
		if len(turns) == 0 && role == llm.RoleAssistant {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n" + m.Content
			continue
		}
		turns = append(turns, llm.Message{Role: role, Content: m.Content})
	}
	if n := len(turns); n > 0 && turns[n-1].Role == llm.RoleAssistant {
		turns = append(turns, llm.Message{Role: llm.RoleUser, Content: followUpPrompt})
	}
	return turns
}

func nameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
