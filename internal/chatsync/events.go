package chatsync

import "github.com/soyeahso/duet/internal/domain"

// Event payloads emitted through the hook manager.

// ConversationUpdate carries the new header of a changed conversation.
type ConversationUpdate struct {
	Conversation domain.ConversationHeader `json:"conversation"`
}

// MessagesLoaded carries the message sequence published by a load.
type MessagesLoaded struct {
	ConversationID   string           `json:"conversationId"`
	ConversationName string           `json:"conversationName"`
	Messages         []domain.Message `json:"messages"`
}

// StatusChange reports a sent message becoming confirmed or failed.
type StatusChange struct {
	ConversationID string               `json:"conversationId"`
	MessageID      string               `json:"messageId"`
	Status         domain.MessageStatus `json:"status"`
}

// Notification is a user-facing failure report. It never carries raw
// transport errors.
type Notification struct {
	Category       domain.FailureCategory `json:"category"`
	Message        string                 `json:"message"`
	ConversationID string                 `json:"conversationId,omitempty"`
}

var notificationText = map[domain.FailureCategory]string{
	domain.CategoryConnection: "Couldn't reach your data store. Check your connection.",
	domain.CategoryLoad:       "Couldn't load messages. They will be retried when you reopen the chat.",
	domain.CategorySend:       "Your message was not saved. It is still shown here but only on this device.",
}

func newNotification(cat domain.FailureCategory, conversationID string) Notification {
	return Notification{Category: cat, Message: notificationText[cat], ConversationID: conversationID}
}

// NotificationText returns the user-facing message for a failure category.
func NotificationText(cat domain.FailureCategory) string {
	return notificationText[cat]
}
