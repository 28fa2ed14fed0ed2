package domain

import "time"

// Participant is one side of a conversation.
type Participant struct {
	DID         string `json:"did"`
	DisplayName string `json:"displayName"`
}

// Conversation is the locally held state of a two-party chat.
type Conversation struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Participants []Participant `json:"participants"`
	LastMessage  string        `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Messages     []Message     `json:"messages"`
}

// Header returns the list view of the conversation.
func (c *Conversation) Header() ConversationHeader {
	return ConversationHeader{
		ID:           c.ID,
		Name:         c.Name,
		Participants: append([]Participant(nil), c.Participants...),
		LastMessage:  c.LastMessage,
		UnreadCount:  c.UnreadCount,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Peer returns the participant that is not self. If self is not a
// participant the first participant is returned.
func (c *Conversation) Peer(self string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.DID != self {
			return p, true
		}
	}
	return Participant{}, false
}

// Participant returns the participant with the given DID.
func (c *Conversation) Participant(did string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.DID == did {
			return p, true
		}
	}
	return Participant{}, false
}

// ConversationHeader summarizes a conversation for list views.
type ConversationHeader struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Participants []Participant `json:"participants"`
	LastMessage  string        `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// CacheKey is the composite key used to track message loads.
func CacheKey(conversationID, conversationName string) string {
	return conversationID + ":" + conversationName
}
