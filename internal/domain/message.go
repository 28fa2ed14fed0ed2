package domain

import (
	"sort"
	"time"
)

// MessageStatus tracks whether a locally created message has reached the
// remote document store.
type MessageStatus string

const (
	// StatusPending marks a message shown locally whose remote write is in flight.
	StatusPending MessageStatus = "pending"
	// StatusConfirmed marks a message known to exist in the remote store.
	StatusConfirmed MessageStatus = "confirmed"
	// StatusFailed marks a message whose remote write failed. It stays visible
	// and is not retried automatically.
	StatusFailed MessageStatus = "failed"
)

// Message is a single chat message within a conversation.
type Message struct {
	ID            string        `json:"id"`
	Content       string        `json:"content"`
	SenderDID     string        `json:"senderDid"`
	SenderName    string        `json:"senderName"`
	Timestamp     time.Time     `json:"timestamp"`
	IsAIGenerated bool          `json:"isAiGenerated"`
	Status        MessageStatus `json:"status"`
}

// Local reports whether the message exists only in local state.
func (m Message) Local() bool {
	return m.Status == StatusPending || m.Status == StatusFailed
}

// SortMessages orders messages by timestamp ascending, breaking ties by ID.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// SenderContext describes who is sending a message.
type SenderContext struct {
	DID           string `json:"did"`
	DisplayName   string `json:"displayName"`
	IsAIGenerated bool   `json:"isAiGenerated,omitempty"`
}
